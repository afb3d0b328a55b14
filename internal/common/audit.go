package common

import (
	"context"

	"github.com/fatih/structs"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/xcontext"
)

// AuditRecorder writes the append-only operator audit trail. Every
// state-mutating admin action must go through Record.
type AuditRecorder struct {
	auditLogRepo repository.AuditLogRepository
}

func NewAuditRecorder(auditLogRepo repository.AuditLogRepository) *AuditRecorder {
	return &AuditRecorder{auditLogRepo: auditLogRepo}
}

func (r *AuditRecorder) Record(
	ctx context.Context, action, target string, oldState, newState any, reason string,
) error {
	log := &entity.AuditLog{
		ID:      xcontext.SnowFlake(ctx).Generate().Int64(),
		ActorID: xcontext.RequestUserID(ctx),
		Action:  action,
		Target:  target,
		Reason:  reason,
	}

	if oldState != nil {
		log.OldState = structs.Map(oldState)
	}

	if newState != nil {
		log.NewState = structs.Map(newState)
	}

	return r.auditLogRepo.Create(ctx, log)
}
