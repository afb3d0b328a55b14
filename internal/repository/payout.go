package repository

import (
	"context"
	"database/sql"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type PayoutRepository interface {
	Create(ctx context.Context, payout *entity.Payout) error
	GetByID(ctx context.Context, id string) (*entity.Payout, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Payout, error)
	GetByExternalReference(ctx context.Context, ref string) (*entity.Payout, error)
	GetByGiveawayID(ctx context.Context, giveawayID string) ([]entity.Payout, error)
	GetMaxAttempt(ctx context.Context, giveawayID, recipientID string, payoutType entity.PayoutType) (int, error)
	TransitStatus(ctx context.Context, id string, from, to entity.PayoutStatusType) error
	SetExternalReference(ctx context.Context, id string, ref sql.NullString) error
	SetFailureReason(ctx context.Context, id string, reason string) error
}

type payoutRepository struct{}

func NewPayoutRepository() *payoutRepository {
	return &payoutRepository{}
}

func (r *payoutRepository) Create(ctx context.Context, payout *entity.Payout) error {
	return xcontext.DB(ctx).Create(payout).Error
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*entity.Payout, error) {
	var result entity.Payout
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *payoutRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Payout, error) {
	var result entity.Payout
	if err := xcontext.DB(ctx).Take(&result, "idempotency_key=?", key).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *payoutRepository) GetByExternalReference(ctx context.Context, ref string) (*entity.Payout, error) {
	var result entity.Payout
	if err := xcontext.DB(ctx).Take(&result, "external_reference=?", ref).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *payoutRepository) GetByGiveawayID(ctx context.Context, giveawayID string) ([]entity.Payout, error) {
	var result []entity.Payout
	err := xcontext.DB(ctx).
		Where("giveaway_id=?", giveawayID).
		Order("created_at ASC").Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *payoutRepository) GetMaxAttempt(
	ctx context.Context, giveawayID, recipientID string, payoutType entity.PayoutType,
) (int, error) {
	var result sql.NullInt64
	err := xcontext.DB(ctx).Model(&entity.Payout{}).
		Select("MAX(attempt_number)").
		Where("giveaway_id=? AND recipient_id=? AND type=?", giveawayID, recipientID, payoutType).
		Scan(&result).Error
	if err != nil {
		return 0, err
	}

	if !result.Valid {
		return 0, nil
	}

	return int(result.Int64), nil
}

// TransitStatus is the only way a payout moves through its state machine.
// The from condition makes every transition a compare-and-swap, so a
// redelivered webhook or a racing instance cannot regress a terminal
// state.
func (r *payoutRepository) TransitStatus(
	ctx context.Context, id string, from, to entity.PayoutStatusType,
) error {
	tx := xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=? AND status=?", id, from).
		Update("status", to)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *payoutRepository) SetExternalReference(
	ctx context.Context, id string, ref sql.NullString,
) error {
	return xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=?", id).
		Update("external_reference", ref).Error
}

func (r *payoutRepository) SetFailureReason(ctx context.Context, id string, reason string) error {
	return xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=?", id).
		Update("failure_reason", reason).Error
}
