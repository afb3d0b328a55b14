package entity

import (
	"database/sql"

	"github.com/prizeloop/backend/pkg/enum"
)

type PayoutType string

var (
	PayoutWinnerPrize    = enum.New(PayoutType("winner_prize"))
	PayoutCreatorRevenue = enum.New(PayoutType("creator_revenue"))
	PayoutRefund         = enum.New(PayoutType("refund"))
)

type PayoutStatusType string

var (
	PayoutPending    = enum.New(PayoutStatusType("pending"))
	PayoutProcessing = enum.New(PayoutStatusType("processing"))
	PayoutSucceeded  = enum.New(PayoutStatusType("succeeded"))
	PayoutFailed     = enum.New(PayoutStatusType("failed"))
)

// Payout is one logical money movement out of escrow. A failed payout is
// never retried in place; a retry is a new Payout with the next attempt
// number and therefore a fresh idempotency key.
type Payout struct {
	Base

	GiveawayID string   `gorm:"index"`
	Giveaway   Giveaway `gorm:"foreignKey:GiveawayID"`

	RecipientID string `gorm:"index"`

	// EntryID is set for refunds only.
	EntryID sql.NullString

	Type   PayoutType
	Amount int64
	Status PayoutStatusType `gorm:"index"`

	IdempotencyKey string `gorm:"uniqueIndex"`
	AttemptNumber  int

	// ExternalReference is the processor transfer or refund id.
	ExternalReference sql.NullString `gorm:"index"`

	FailureReason string
}
