package repository

import (
	"context"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
)

type GetListAuditLogFilter struct {
	ActorID string
	Target  string
	Offset  int
	Limit   int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	GetList(ctx context.Context, filter GetListAuditLogFilter) ([]entity.AuditLog, error)
}

type auditLogRepository struct{}

func NewAuditLogRepository() *auditLogRepository {
	return &auditLogRepository{}
}

func (r *auditLogRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	return xcontext.DB(ctx).Create(log).Error
}

func (r *auditLogRepository) GetList(
	ctx context.Context, filter GetListAuditLogFilter,
) ([]entity.AuditLog, error) {
	tx := xcontext.DB(ctx).Model(&entity.AuditLog{})
	if filter.ActorID != "" {
		tx = tx.Where("actor_id=?", filter.ActorID)
	}

	if filter.Target != "" {
		tx = tx.Where("target=?", filter.Target)
	}

	if filter.Limit > 0 {
		tx = tx.Offset(filter.Offset).Limit(filter.Limit)
	}

	var result []entity.AuditLog
	if err := tx.Order("id DESC").Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}
