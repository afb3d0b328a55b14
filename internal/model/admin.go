package model

import "time"

type AccessToken struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type ApproveGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
}

type ApproveGiveawayResponse struct{}

type RejectGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
	Reason     string `json:"reason"`
}

type RejectGiveawayResponse struct{}

type FreezeGiveawayRequest struct {
	GiveawayID string `json:"giveaway_id"`
	Reason     string `json:"reason"`
}

type FreezeGiveawayResponse struct{}

type ForceReselectRequest struct {
	GiveawayID string `json:"giveaway_id"`
	Reason     string `json:"reason"`
}

type ForceReselectResponse struct {
	Proof FairnessProof `json:"proof"`
}

type AdminRefundRequest struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

type AdminRefundResponse struct {
	Payout Payout `json:"payout"`
}

type GetAuditLogsRequest struct {
	ActorID string `json:"actor_id"`
	Target  string `json:"target"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
}

type AuditLog struct {
	ID        int64          `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	OldState  map[string]any `json:"old_state,omitempty"`
	NewState  map[string]any `json:"new_state,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type GetAuditLogsResponse struct {
	Logs []AuditLog `json:"logs"`
}

type EscrowAccount struct {
	GiveawayID      string `json:"giveaway_id"`
	GrossCollected  int64  `json:"gross_collected"`
	AvailableAmount int64  `json:"available_amount"`
	ReservedAmount  int64  `json:"reserved_amount"`
	PaidOut         int64  `json:"paid_out"`
	Halted          bool   `json:"halted"`
}

type GetHaltedEscrowsRequest struct{}

type GetHaltedEscrowsResponse struct {
	Accounts []EscrowAccount `json:"accounts"`
}
