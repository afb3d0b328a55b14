package model

import "time"

type Giveaway struct {
	ID             string    `json:"id"`
	CreatorID      string    `json:"creator_id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	EntryCost      int64     `json:"entry_cost"`
	PrizeAmount    int64     `json:"prize_amount"`
	MaxEntries     int       `json:"max_entries"`
	CountedEntries int       `json:"counted_entries"`
	ClosesAt       time.Time `json:"closes_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type Entry struct {
	ID            string    `json:"id"`
	GiveawayID    string    `json:"giveaway_id"`
	UserID        string    `json:"user_id"`
	TicketCount   int       `json:"ticket_count"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateGiveawayRequest struct {
	Title       string    `json:"title"`
	EntryCost   int64     `json:"entry_cost"`
	PrizeAmount int64     `json:"prize_amount"`
	MaxEntries  int       `json:"max_entries"`
	ClosesAt    time.Time `json:"closes_at"`
}

type CreateGiveawayResponse struct {
	ID string `json:"id"`
}

type SubmitGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type SubmitGiveawayResponse struct{}

type GetGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type GetGiveawayResponse struct {
	Giveaway Giveaway `json:"giveaway"`
}

type GetListGiveawayRequest struct {
	Status string `json:"status"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type GetListGiveawayResponse struct {
	Giveaways []Giveaway `json:"giveaways"`
}

type CloseGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type CloseGiveawayResponse struct {
	Proof FairnessProof `json:"proof"`
}

type GetMyEntriesRequest struct{}

type GetMyEntriesResponse struct {
	Entries []Entry `json:"entries"`
}
