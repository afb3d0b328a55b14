package model

import "time"

type Payout struct {
	ID                string    `json:"id"`
	GiveawayID        string    `json:"giveaway_id"`
	RecipientID       string    `json:"recipient_id"`
	EntryID           string    `json:"entry_id,omitempty"`
	Type              string    `json:"type"`
	Amount            int64     `json:"amount"`
	Status            string    `json:"status"`
	AttemptNumber     int       `json:"attempt_number"`
	ExternalReference string    `json:"external_reference,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type GetPayoutsRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type GetPayoutsResponse struct {
	Payouts []Payout `json:"payouts"`
}
