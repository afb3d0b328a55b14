package repository

import (
	"context"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type EntryRepository interface {
	Create(ctx context.Context, entry *entity.Entry) error
	GetByID(ctx context.Context, id string) (*entity.Entry, error)
	GetByPaymentReference(ctx context.Context, ref string) (*entity.Entry, error)
	GetByUserID(ctx context.Context, userID string) ([]entity.Entry, error)
	GetEligibleByGiveawayID(ctx context.Context, giveawayID string) ([]entity.Entry, error)
	ConfirmPayment(ctx context.Context, id string) error
	MarkRefunded(ctx context.Context, id string) error
}

type entryRepository struct{}

func NewEntryRepository() *entryRepository {
	return &entryRepository{}
}

func (r *entryRepository) Create(ctx context.Context, entry *entity.Entry) error {
	return xcontext.DB(ctx).Create(entry).Error
}

func (r *entryRepository) GetByID(ctx context.Context, id string) (*entity.Entry, error) {
	var result entity.Entry
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *entryRepository) GetByPaymentReference(ctx context.Context, ref string) (*entity.Entry, error) {
	var result entity.Entry
	if err := xcontext.DB(ctx).Take(&result, "payment_reference=?", ref).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *entryRepository) GetByUserID(ctx context.Context, userID string) ([]entity.Entry, error) {
	var result []entity.Entry
	if err := xcontext.DB(ctx).Find(&result, "user_id=?", userID).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// GetEligibleByGiveawayID returns paid and AMOE entries in snapshot order.
// The (created_at, id) ordering is the stable key the snapshot freezes.
func (r *entryRepository) GetEligibleByGiveawayID(
	ctx context.Context, giveawayID string,
) ([]entity.Entry, error) {
	var result []entity.Entry
	err := xcontext.DB(ctx).
		Where("giveaway_id=? AND payment_status IN (?)", giveawayID,
			[]entity.EntryPaymentStatusType{entity.EntryPaymentCompleted, entity.EntryPaymentNotRequired}).
		Order("created_at ASC, id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *entryRepository) ConfirmPayment(ctx context.Context, id string) error {
	tx := xcontext.DB(ctx).Model(&entity.Entry{}).
		Where("id=? AND payment_status=?", id, entity.EntryPaymentPending).
		Update("payment_status", entity.EntryPaymentCompleted)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *entryRepository) MarkRefunded(ctx context.Context, id string) error {
	tx := xcontext.DB(ctx).Model(&entity.Entry{}).
		Where("id=? AND payment_status=?", id, entity.EntryPaymentCompleted).
		Update("payment_status", entity.EntryPaymentRefunded)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
