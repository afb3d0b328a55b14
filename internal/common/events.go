package common

// TopicGiveawayEvents is the kafka topic the notification subsystem
// subscribes to.
const TopicGiveawayEvents = "giveaway-events"

const (
	EventWinnerSelected  = "winner_selected"
	EventPayoutSucceeded = "payout_succeeded"
	EventPayoutFailed    = "payout_failed"
	EventRefundIssued    = "refund_issued"
	EventGiveawayClosed  = "giveaway_closed"
)

// GiveawayEvent is the wire shape of every published event. Data is kept
// loose so the notification subsystem can evolve templates without a
// schema change here.
type GiveawayEvent struct {
	Type       string         `json:"type"`
	GiveawayID string         `json:"giveaway_id"`
	UserID     string         `json:"user_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}
