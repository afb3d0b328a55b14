package entity

import (
	"time"

	"github.com/prizeloop/backend/pkg/enum"
)

type GiveawayStatusType string

var (
	GiveawayDraft           = enum.New(GiveawayStatusType("draft"))
	GiveawayPendingApproval = enum.New(GiveawayStatusType("pending_approval"))
	GiveawayActive          = enum.New(GiveawayStatusType("active"))
	GiveawayFrozen          = enum.New(GiveawayStatusType("frozen"))
	GiveawayCompleted       = enum.New(GiveawayStatusType("completed"))
	GiveawayRejected        = enum.New(GiveawayStatusType("rejected"))
	GiveawayCancelled       = enum.New(GiveawayStatusType("cancelled"))
)

type Giveaway struct {
	Base

	CreatorID string `gorm:"index"`
	Title     string
	Status    GiveawayStatusType `gorm:"index"`

	// All amounts are minor units (cents).
	EntryCost   int64
	PrizeAmount int64

	MaxEntries     int
	CountedEntries int

	ClosesAt time.Time `gorm:"index"`
}
