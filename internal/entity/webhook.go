package entity

import (
	"database/sql"

	"github.com/prizeloop/backend/pkg/enum"
)

type WebhookDeliveryStatusType string

var (
	WebhookDeliveryPending    = enum.New(WebhookDeliveryStatusType("pending"))
	WebhookDeliveryProcessing = enum.New(WebhookDeliveryStatusType("processing"))
	WebhookDeliverySucceeded  = enum.New(WebhookDeliveryStatusType("succeeded"))
	WebhookDeliveryFailed     = enum.New(WebhookDeliveryStatusType("failed"))
	WebhookDeliveryRetrying   = enum.New(WebhookDeliveryStatusType("retrying"))
)

// WebhookDelivery is one inbound processor event. The unique
// (webhook_id, event_type) pair is the deduplication boundary for
// at-least-once redelivery.
type WebhookDelivery struct {
	Base

	WebhookID string `gorm:"index:idx_webhook_delivery_webhook_event,unique"`
	EventType string `gorm:"index:idx_webhook_delivery_webhook_event,unique"`

	Payload string `gorm:"type:text"`

	Status       WebhookDeliveryStatusType `gorm:"index"`
	AttemptCount int
	NextRetryAt  sql.NullTime `gorm:"index"`
	LastError    string
}
