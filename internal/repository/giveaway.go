package repository

import (
	"context"
	"time"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type GetListGiveawayFilter struct {
	CreatorID string
	Status    entity.GiveawayStatusType
	Offset    int
	Limit     int
}

type GiveawayRepository interface {
	Create(ctx context.Context, giveaway *entity.Giveaway) error
	GetByID(ctx context.Context, id string) (*entity.Giveaway, error)
	GetList(ctx context.Context, filter GetListGiveawayFilter) ([]entity.Giveaway, error)
	GetOverdueActive(ctx context.Context, now time.Time) ([]entity.Giveaway, error)
	TransitStatus(ctx context.Context, id string, from, to entity.GiveawayStatusType) error
	IncreaseCountedEntries(ctx context.Context, id string, delta int) error
	DecreaseCountedEntries(ctx context.Context, id string, delta int) error
}

type giveawayRepository struct{}

func NewGiveawayRepository() *giveawayRepository {
	return &giveawayRepository{}
}

func (r *giveawayRepository) Create(ctx context.Context, giveaway *entity.Giveaway) error {
	return xcontext.DB(ctx).Create(giveaway).Error
}

func (r *giveawayRepository) GetByID(ctx context.Context, id string) (*entity.Giveaway, error) {
	var result entity.Giveaway
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *giveawayRepository) GetList(
	ctx context.Context, filter GetListGiveawayFilter,
) ([]entity.Giveaway, error) {
	tx := xcontext.DB(ctx).Model(&entity.Giveaway{})
	if filter.CreatorID != "" {
		tx = tx.Where("creator_id=?", filter.CreatorID)
	}

	if filter.Status != "" {
		tx = tx.Where("status=?", filter.Status)
	}

	if filter.Limit > 0 {
		tx = tx.Offset(filter.Offset).Limit(filter.Limit)
	}

	var result []entity.Giveaway
	if err := tx.Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (r *giveawayRepository) GetOverdueActive(
	ctx context.Context, now time.Time,
) ([]entity.Giveaway, error) {
	var result []entity.Giveaway
	err := xcontext.DB(ctx).
		Where("status=? AND closes_at<=?", entity.GiveawayActive, now).
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

// TransitStatus moves a giveaway from one status to another. The from
// condition makes concurrent transitions lose cleanly instead of
// overwriting each other.
func (r *giveawayRepository) TransitStatus(
	ctx context.Context, id string, from, to entity.GiveawayStatusType,
) error {
	tx := xcontext.DB(ctx).Model(&entity.Giveaway{}).
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

func (r *giveawayRepository) IncreaseCountedEntries(ctx context.Context, id string, delta int) error {
	tx := xcontext.DB(ctx).Model(&entity.Giveaway{}).
		Where("id=? AND counted_entries+? <= max_entries", id, delta).
		Update("counted_entries", gorm.Expr("counted_entries+?", delta))
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *giveawayRepository) DecreaseCountedEntries(ctx context.Context, id string, delta int) error {
	tx := xcontext.DB(ctx).Model(&entity.Giveaway{}).
		Where("id=? AND counted_entries >= ?", id, delta).
		Update("counted_entries", gorm.Expr("counted_entries-?", delta))
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
