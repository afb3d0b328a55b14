package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*entity.WebhookDelivery, error)
	GetByWebhookEvent(ctx context.Context, webhookID, eventType string) (*entity.WebhookDelivery, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]entity.WebhookDelivery, error)
	GetPermanentlyFailed(ctx context.Context) ([]entity.WebhookDelivery, error)

	ClaimProcessing(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string) error
	MarkRetrying(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	ResetForReplay(ctx context.Context, id string) error
}

type webhookRepository struct{}

func NewWebhookRepository() *webhookRepository {
	return &webhookRepository{}
}

func (r *webhookRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	return xcontext.DB(ctx).Create(delivery).Error
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*entity.WebhookDelivery, error) {
	var result entity.WebhookDelivery
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *webhookRepository) GetByWebhookEvent(
	ctx context.Context, webhookID, eventType string,
) (*entity.WebhookDelivery, error) {
	var result entity.WebhookDelivery
	err := xcontext.DB(ctx).
		Take(&result, "webhook_id=? AND event_type=?", webhookID, eventType).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *webhookRepository) GetDue(
	ctx context.Context, now time.Time, limit int,
) ([]entity.WebhookDelivery, error) {
	var result []entity.WebhookDelivery
	err := xcontext.DB(ctx).
		Where("status=? AND next_retry_at<=?", entity.WebhookDeliveryRetrying, now).
		Order("next_retry_at ASC").Limit(limit).
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *webhookRepository) GetPermanentlyFailed(ctx context.Context) ([]entity.WebhookDelivery, error) {
	var result []entity.WebhookDelivery
	err := xcontext.DB(ctx).
		Where("status=?", entity.WebhookDeliveryFailed).
		Order("updated_at ASC").Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ClaimProcessing takes exclusive ownership of a pending or due delivery.
// Only one claimer wins; everyone else gets gorm.ErrRecordNotFound.
func (r *webhookRepository) ClaimProcessing(ctx context.Context, id string) error {
	tx := xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=? AND status IN (?)", id,
			[]entity.WebhookDeliveryStatusType{entity.WebhookDeliveryPending, entity.WebhookDeliveryRetrying}).
		Update("status", entity.WebhookDeliveryProcessing)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *webhookRepository) MarkSucceeded(ctx context.Context, id string) error {
	tx := xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=? AND status=?", id, entity.WebhookDeliveryProcessing).
		Updates(map[string]any{
			"status":        entity.WebhookDeliverySucceeded,
			"next_retry_at": sql.NullTime{},
			"last_error":    "",
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *webhookRepository) MarkRetrying(
	ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string,
) error {
	tx := xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=? AND status=?", id, entity.WebhookDeliveryProcessing).
		Updates(map[string]any{
			"status":        entity.WebhookDeliveryRetrying,
			"attempt_count": attemptCount,
			"next_retry_at": sql.NullTime{Time: nextRetryAt, Valid: true},
			"last_error":    lastError,
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *webhookRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	tx := xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=? AND status=?", id, entity.WebhookDeliveryProcessing).
		Updates(map[string]any{
			"status":        entity.WebhookDeliveryFailed,
			"next_retry_at": sql.NullTime{},
			"last_error":    lastError,
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// ResetForReplay is the operator escape hatch for permanently failed
// deliveries.
func (r *webhookRepository) ResetForReplay(ctx context.Context, id string) error {
	tx := xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=? AND status=?", id, entity.WebhookDeliveryFailed).
		Updates(map[string]any{
			"status":        entity.WebhookDeliveryPending,
			"attempt_count": 0,
			"next_retry_at": sql.NullTime{},
			"last_error":    "",
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
