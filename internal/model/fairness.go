package model

import "time"

type TicketRange struct {
	EntryID string `json:"entry_id"`
	UserID  string `json:"user_id"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

type EntrySnapshot struct {
	GiveawayID   string        `json:"giveaway_id"`
	TotalTickets int64         `json:"total_tickets"`
	ContentHash  string        `json:"content_hash"`
	Ranges       []TicketRange `json:"ranges"`
	TakenAt      time.Time     `json:"taken_at"`
}

type FairnessProof struct {
	GiveawayID         string    `json:"giveaway_id"`
	Revision           int       `json:"revision"`
	ServerSeed         string    `json:"server_seed"`
	ServerSeedHash     string    `json:"server_seed_hash"`
	CombinedEntropy    string    `json:"combined_entropy"`
	DerivedRandomValue uint64    `json:"derived_random_value"`
	TotalTickets       int64     `json:"total_tickets"`
	WinnerEntryID      string    `json:"winner_entry_id"`
	WinnerUserID       string    `json:"winner_user_id"`
	Superseded         bool      `json:"superseded"`
	Reason             string    `json:"reason,omitempty"`
	ComputedAt         time.Time `json:"computed_at"`
}

type GetFairnessCommitmentRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type GetFairnessCommitmentResponse struct {
	GiveawayID     string    `json:"giveaway_id"`
	ServerSeedHash string    `json:"server_seed_hash"`
	CommittedAt    time.Time `json:"committed_at"`
}

type GetFairnessProofRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type GetFairnessProofResponse struct {
	Proof    FairnessProof `json:"proof"`
	Snapshot EntrySnapshot `json:"snapshot"`
}

type GetFairnessProofHistoryRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type GetFairnessProofHistoryResponse struct {
	Proofs []FairnessProof `json:"proofs"`
}

type VerifyFairnessProofRequest struct {
	GiveawayID string `json:"giveaway_id"`
	Revision   int    `json:"revision"`
}

type VerifyFairnessProofResponse struct {
	Valid bool          `json:"valid"`
	Proof FairnessProof `json:"proof"`
}
