package repository

import (
	"context"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type FairnessRepository interface {
	CreateCommitment(ctx context.Context, commitment *entity.FairnessCommitment) error
	GetCommitment(ctx context.Context, giveawayID string) (*entity.FairnessCommitment, error)

	CreateSnapshot(ctx context.Context, snapshot *entity.EntrySnapshot) error
	GetSnapshot(ctx context.Context, giveawayID string) (*entity.EntrySnapshot, error)

	CreateProof(ctx context.Context, proof *entity.FairnessProof) error
	GetActiveProof(ctx context.Context, giveawayID string) (*entity.FairnessProof, error)
	GetProofHistory(ctx context.Context, giveawayID string) ([]entity.FairnessProof, error)
	SupersedeProof(ctx context.Context, proofID string) error
}

type fairnessRepository struct{}

func NewFairnessRepository() *fairnessRepository {
	return &fairnessRepository{}
}

func (r *fairnessRepository) CreateCommitment(
	ctx context.Context, commitment *entity.FairnessCommitment,
) error {
	return xcontext.DB(ctx).Create(commitment).Error
}

func (r *fairnessRepository) GetCommitment(
	ctx context.Context, giveawayID string,
) (*entity.FairnessCommitment, error) {
	var result entity.FairnessCommitment
	if err := xcontext.DB(ctx).Take(&result, "giveaway_id=?", giveawayID).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *fairnessRepository) CreateSnapshot(ctx context.Context, snapshot *entity.EntrySnapshot) error {
	return xcontext.DB(ctx).Create(snapshot).Error
}

func (r *fairnessRepository) GetSnapshot(
	ctx context.Context, giveawayID string,
) (*entity.EntrySnapshot, error) {
	var result entity.EntrySnapshot
	if err := xcontext.DB(ctx).Take(&result, "giveaway_id=?", giveawayID).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *fairnessRepository) CreateProof(ctx context.Context, proof *entity.FairnessProof) error {
	return xcontext.DB(ctx).Create(proof).Error
}

// GetActiveProof returns the newest non-superseded proof of a giveaway.
func (r *fairnessRepository) GetActiveProof(
	ctx context.Context, giveawayID string,
) (*entity.FairnessProof, error) {
	var result entity.FairnessProof
	err := xcontext.DB(ctx).
		Where("giveaway_id=? AND superseded=?", giveawayID, false).
		Order("revision DESC").Take(&result).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *fairnessRepository) GetProofHistory(
	ctx context.Context, giveawayID string,
) ([]entity.FairnessProof, error) {
	var result []entity.FairnessProof
	err := xcontext.DB(ctx).
		Where("giveaway_id=?", giveawayID).
		Order("revision ASC").Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *fairnessRepository) SupersedeProof(ctx context.Context, proofID string) error {
	tx := xcontext.DB(ctx).Model(&entity.FairnessProof{}).
		Where("id=? AND superseded=?", proofID, false).
		Update("superseded", true)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
