package entity

import "time"

// FairnessCommitment is the commit half of the commit-reveal scheme. The
// hash is public from the moment it is created; the raw seed never leaves
// the database until the giveaway closes.
type FairnessCommitment struct {
	Base

	GiveawayID string   `gorm:"uniqueIndex"`
	Giveaway   Giveaway `gorm:"foreignKey:GiveawayID"`

	ServerSeed     string `json:"-"`
	ServerSeedHash string
}

// TicketRange assigns an entry a half-open range [Start, End) of the
// ticket space. Ranges in a snapshot are contiguous and cover
// [0, TotalTickets).
type TicketRange struct {
	EntryID string `json:"entry_id"`
	UserID  string `json:"user_id"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// EntrySnapshot freezes the ordered eligible entries of a giveaway at
// close time. It is built exactly once per giveaway.
type EntrySnapshot struct {
	Base

	GiveawayID string   `gorm:"uniqueIndex"`
	Giveaway   Giveaway `gorm:"foreignKey:GiveawayID"`

	TotalTickets int64
	ContentHash  string
	Ranges       Array[TicketRange]
	TakenAt      time.Time
}

// FairnessProof records one winner derivation. Proofs are never deleted;
// a forced reselection inserts the next revision and marks the previous
// one superseded.
type FairnessProof struct {
	Base

	GiveawayID string `gorm:"index:idx_fairness_proof_giveaway_revision,unique"`
	Revision   int    `gorm:"index:idx_fairness_proof_giveaway_revision,unique"`

	ServerSeed         string
	ServerSeedHash     string
	CombinedEntropy    string
	DerivedRandomValue uint64
	TotalTickets       int64

	WinnerEntryID string
	WinnerUserID  string

	Superseded bool
	Reason     string

	ComputedAt time.Time
}
