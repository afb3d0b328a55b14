package model

import (
	"encoding/json"
	"time"
)

type ReceiveWebhookRequest struct {
	WebhookID string          `json:"id"`
	EventType string          `json:"type"`
	Payload   json.RawMessage `json:"data"`

	// Signature is the hex HMAC-SHA256 of Payload. The router copies it
	// from the X-Webhook-Signature header.
	Signature string `json:"-"`
}

type ReceiveWebhookResponse struct {
	Accepted  bool `json:"accepted"`
	Duplicate bool `json:"duplicate"`
}

type WebhookDelivery struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhook_id"`
	EventType    string    `json:"event_type"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReplayWebhookRequest struct {
	DeliveryID string `json:"delivery_id"`
}

type ReplayWebhookResponse struct {
	Delivery WebhookDelivery `json:"delivery"`
}

type GetFailedWebhooksRequest struct{}

type GetFailedWebhooksResponse struct {
	Deliveries []WebhookDelivery `json:"deliveries"`
}

// Typed webhook payloads, decoded from ReceiveWebhookRequest.Payload.

type PaymentCapturedPayload struct {
	PaymentReference string `mapstructure:"payment_reference"`
	GiveawayID       string `mapstructure:"giveaway_id"`
	UserID           string `mapstructure:"user_id"`
	TicketCount      int    `mapstructure:"ticket_count"`
	Amount           int64  `mapstructure:"amount"`
}

type TransferOutcomePayload struct {
	TransferReference string `mapstructure:"transfer_reference"`
	IdempotencyKey    string `mapstructure:"idempotency_key"`
	FailureReason     string `mapstructure:"failure_reason"`
}
