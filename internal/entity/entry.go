package entity

import (
	"database/sql"

	"github.com/prizeloop/backend/pkg/enum"
)

type EntryPaymentStatusType string

var (
	EntryPaymentPending   = enum.New(EntryPaymentStatusType("pending"))
	EntryPaymentCompleted = enum.New(EntryPaymentStatusType("completed"))
	EntryPaymentRefunded  = enum.New(EntryPaymentStatusType("refunded"))

	// EntryPaymentNotRequired marks AMOE entries, which are eligible for
	// the draw without a payment.
	EntryPaymentNotRequired = enum.New(EntryPaymentStatusType("not_required"))
)

type Entry struct {
	Base

	GiveawayID string   `gorm:"index"`
	Giveaway   Giveaway `gorm:"foreignKey:GiveawayID"`

	UserID      string `gorm:"index"`
	TicketCount int

	PaymentStatus EntryPaymentStatusType `gorm:"index"`

	// PaymentReference is the processor's payment id. It is unique so a
	// redelivered payment.captured webhook cannot confirm twice.
	PaymentReference sql.NullString `gorm:"uniqueIndex"`
}

// Eligible reports whether this entry participates in the winner
// selection snapshot.
func (e *Entry) Eligible() bool {
	return e.PaymentStatus == EntryPaymentCompleted || e.PaymentStatus == EntryPaymentNotRequired
}
