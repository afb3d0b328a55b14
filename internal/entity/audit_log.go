package entity

import "time"

// AuditLog is append-only. Rows are keyed by snowflake ids so the log
// orders by creation even across instances.
type AuditLog struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time

	ActorID string `gorm:"index"`
	Action  string `gorm:"index"`
	Target  string `gorm:"index"`

	OldState Map
	NewState Map

	Reason string
}
