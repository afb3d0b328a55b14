package entity

import "github.com/prizeloop/backend/pkg/enum"

// EscrowAccount is the double-entry balance of one giveaway. The
// repository maintains the invariant
//
//	AvailableAmount + ReservedAmount + PaidOut == GrossCollected
//
// on every mutation; a violation halts the account.
type EscrowAccount struct {
	Base

	GiveawayID string   `gorm:"uniqueIndex"`
	Giveaway   Giveaway `gorm:"foreignKey:GiveawayID"`

	GrossCollected  int64
	AvailableAmount int64
	ReservedAmount  int64
	PaidOut         int64

	Halted bool
}

type ReservationStatusType string

var (
	ReservationHeld     = enum.New(ReservationStatusType("held"))
	ReservationCaptured = enum.New(ReservationStatusType("captured"))
	ReservationReleased = enum.New(ReservationStatusType("released"))
)

// EscrowReservation earmarks available funds for a payout until the
// processor confirms or denies the transfer.
type EscrowReservation struct {
	Base

	GiveawayID string `gorm:"index"`
	PayoutID   string `gorm:"uniqueIndex"`
	Amount     int64

	Status ReservationStatusType
}
