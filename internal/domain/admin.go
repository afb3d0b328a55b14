package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/common"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

// Audit action names, recorded verbatim in the audit trail.
const (
	AuditApproveGiveaway = "approve_giveaway"
	AuditRejectGiveaway  = "reject_giveaway"
	AuditFreezeGiveaway  = "freeze_giveaway"
	AuditForceReselect   = "force_reselect"
	AuditRefundEntry     = "refund_entry"
	AuditReplayWebhook   = "replay_webhook"
)

type AdminDomain interface {
	Approve(context.Context, *model.ApproveGiveawayRequest) (*model.ApproveGiveawayResponse, error)
	Reject(context.Context, *model.RejectGiveawayRequest) (*model.RejectGiveawayResponse, error)
	Freeze(context.Context, *model.FreezeGiveawayRequest) (*model.FreezeGiveawayResponse, error)
	ForceReselect(context.Context, *model.ForceReselectRequest) (*model.ForceReselectResponse, error)
	Refund(context.Context, *model.AdminRefundRequest) (*model.AdminRefundResponse, error)
	ReplayWebhook(context.Context, *model.ReplayWebhookRequest) (*model.ReplayWebhookResponse, error)
	GetAuditLogs(context.Context, *model.GetAuditLogsRequest) (*model.GetAuditLogsResponse, error)
	GetHaltedEscrows(context.Context, *model.GetHaltedEscrowsRequest) (*model.GetHaltedEscrowsResponse, error)
}

type adminDomain struct {
	giveawayRepo   repository.GiveawayRepository
	escrowRepo     repository.EscrowRepository
	auditLogRepo   repository.AuditLogRepository
	fairnessDomain FairnessDomain
	payoutDomain   PayoutDomain
	webhookDomain  WebhookDomain
	auditRecorder  *common.AuditRecorder
}

func NewAdminDomain(
	giveawayRepo repository.GiveawayRepository,
	escrowRepo repository.EscrowRepository,
	auditLogRepo repository.AuditLogRepository,
	fairnessDomain FairnessDomain,
	payoutDomain PayoutDomain,
	webhookDomain WebhookDomain,
) *adminDomain {
	return &adminDomain{
		giveawayRepo:   giveawayRepo,
		escrowRepo:     escrowRepo,
		auditLogRepo:   auditLogRepo,
		fairnessDomain: fairnessDomain,
		payoutDomain:   payoutDomain,
		webhookDomain:  webhookDomain,
		auditRecorder:  common.NewAuditRecorder(auditLogRepo),
	}
}

// Approve activates a giveaway. Activation is also the moment the
// fairness commitment is published and the escrow account is opened, so
// every entry is collected under a committed seed. The commitment must
// exist strictly before the closing time, so a giveaway whose close has
// already passed can no longer be approved.
func (d *adminDomain) Approve(
	ctx context.Context, req *model.ApproveGiveawayRequest,
) (*model.ApproveGiveawayResponse, error) {
	giveaway, err := d.getGiveaway(ctx, req.GiveawayID)
	if err != nil {
		return nil, err
	}

	if !giveaway.ClosesAt.After(time.Now()) {
		return nil, errorx.New(errorx.BadRequest,
			"Giveaway %s closing time has passed", giveaway.ID)
	}

	oldState := model.ConvertGiveaway(giveaway)

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	err = d.giveawayRepo.TransitStatus(
		ctx, giveaway.ID, entity.GiveawayPendingApproval, entity.GiveawayActive)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest,
				"Giveaway is %s, only pending approvals can be approved", giveaway.Status)
		}

		xcontext.Logger(ctx).Errorf("Cannot transit giveaway status: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.fairnessDomain.Commit(ctx, giveaway.ID); err != nil {
		return nil, err
	}

	account := &entity.EscrowAccount{
		Base:       entity.Base{ID: uuid.NewString()},
		GiveawayID: giveaway.ID,
	}
	if err := d.escrowRepo.Create(ctx, account); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create escrow account: %v", err)
		return nil, errorx.Unknown
	}

	giveaway.Status = entity.GiveawayActive
	newState := model.ConvertGiveaway(giveaway)
	if err := d.auditRecorder.Record(
		ctx, AuditApproveGiveaway, giveaway.ID, oldState, newState, ""); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &model.ApproveGiveawayResponse{}, nil
}

func (d *adminDomain) Reject(
	ctx context.Context, req *model.RejectGiveawayRequest,
) (*model.RejectGiveawayResponse, error) {
	if req.Reason == "" {
		return nil, errorx.New(errorx.BadRequest, "Rejection requires a reason")
	}

	giveaway, err := d.getGiveaway(ctx, req.GiveawayID)
	if err != nil {
		return nil, err
	}
	oldState := model.ConvertGiveaway(giveaway)

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	err = d.giveawayRepo.TransitStatus(
		ctx, giveaway.ID, entity.GiveawayPendingApproval, entity.GiveawayRejected)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest,
				"Giveaway is %s, only pending approvals can be rejected", giveaway.Status)
		}

		xcontext.Logger(ctx).Errorf("Cannot transit giveaway status: %v", err)
		return nil, errorx.Unknown
	}

	giveaway.Status = entity.GiveawayRejected
	newState := model.ConvertGiveaway(giveaway)
	if err := d.auditRecorder.Record(
		ctx, AuditRejectGiveaway, giveaway.ID, oldState, newState, req.Reason); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &model.RejectGiveawayResponse{}, nil
}

// Freeze suspends an active giveaway, pausing the close cron for it
// until an operator resolves whatever prompted the freeze.
func (d *adminDomain) Freeze(
	ctx context.Context, req *model.FreezeGiveawayRequest,
) (*model.FreezeGiveawayResponse, error) {
	if req.Reason == "" {
		return nil, errorx.New(errorx.BadRequest, "Freezing requires a reason")
	}

	giveaway, err := d.getGiveaway(ctx, req.GiveawayID)
	if err != nil {
		return nil, err
	}
	oldState := model.ConvertGiveaway(giveaway)

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	err = d.giveawayRepo.TransitStatus(
		ctx, giveaway.ID, entity.GiveawayActive, entity.GiveawayFrozen)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest,
				"Giveaway is %s, only active giveaways can be frozen", giveaway.Status)
		}

		xcontext.Logger(ctx).Errorf("Cannot transit giveaway status: %v", err)
		return nil, errorx.Unknown
	}

	giveaway.Status = entity.GiveawayFrozen
	newState := model.ConvertGiveaway(giveaway)
	if err := d.auditRecorder.Record(
		ctx, AuditFreezeGiveaway, giveaway.ID, oldState, newState, req.Reason); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &model.FreezeGiveawayResponse{}, nil
}

// ForceReselect supersedes the current winner. The audit entry carries
// both the old and new proofs so the reselection is reviewable without
// joining the proof history by hand.
func (d *adminDomain) ForceReselect(
	ctx context.Context, req *model.ForceReselectRequest,
) (*model.ForceReselectResponse, error) {
	if req.Reason == "" {
		return nil, errorx.New(errorx.BadRequest, "Reselection requires a reason")
	}

	oldProof, err := d.fairnessDomain.GetProof(ctx, &model.GetFairnessProofRequest{
		GiveawayID: req.GiveawayID,
	})
	if err != nil {
		return nil, err
	}

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	proof, err := d.fairnessDomain.Reselect(ctx, req.GiveawayID, req.Reason)
	if err != nil {
		return nil, err
	}

	newState := model.ConvertFairnessProof(proof)
	if err := d.auditRecorder.Record(
		ctx, AuditForceReselect, req.GiveawayID, oldProof.Proof, newState, req.Reason); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &model.ForceReselectResponse{Proof: newState}, nil
}

func (d *adminDomain) Refund(
	ctx context.Context, req *model.AdminRefundRequest,
) (*model.AdminRefundResponse, error) {
	if req.Reason == "" {
		return nil, errorx.New(errorx.BadRequest, "Refunding requires a reason")
	}

	payout, err := d.payoutDomain.Refund(ctx, req.EntryID, req.Reason)
	if err != nil {
		return nil, err
	}

	converted := model.ConvertPayout(payout)
	if err := d.auditRecorder.Record(
		ctx, AuditRefundEntry, req.EntryID, nil, converted, req.Reason); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	return &model.AdminRefundResponse{Payout: converted}, nil
}

func (d *adminDomain) ReplayWebhook(
	ctx context.Context, req *model.ReplayWebhookRequest,
) (*model.ReplayWebhookResponse, error) {
	resp, err := d.webhookDomain.Replay(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := d.auditRecorder.Record(
		ctx, AuditReplayWebhook, req.DeliveryID, nil, resp.Delivery, ""); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record audit log: %v", err)
		return nil, errorx.Unknown
	}

	return resp, nil
}

func (d *adminDomain) GetAuditLogs(
	ctx context.Context, req *model.GetAuditLogsRequest,
) (*model.GetAuditLogsResponse, error) {
	if req.Limit == 0 {
		req.Limit = 50
	}

	logs, err := d.auditLogRepo.GetList(ctx, repository.GetListAuditLogFilter{
		ActorID: req.ActorID,
		Target:  req.Target,
		Offset:  req.Offset,
		Limit:   req.Limit,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get audit logs: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetAuditLogsResponse{Logs: []model.AuditLog{}}
	for i := range logs {
		resp.Logs = append(resp.Logs, model.ConvertAuditLog(&logs[i]))
	}

	return resp, nil
}

func (d *adminDomain) GetHaltedEscrows(
	ctx context.Context, req *model.GetHaltedEscrowsRequest,
) (*model.GetHaltedEscrowsResponse, error) {
	accounts, err := d.escrowRepo.GetHalted(ctx)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get halted escrow accounts: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetHaltedEscrowsResponse{Accounts: []model.EscrowAccount{}}
	for i := range accounts {
		resp.Accounts = append(resp.Accounts, model.ConvertEscrowAccount(&accounts[i]))
	}

	return resp, nil
}

func (d *adminDomain) getGiveaway(ctx context.Context, id string) (*entity.Giveaway, error) {
	giveaway, err := d.giveawayRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found giveaway %s", id)
		}

		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	return giveaway, nil
}
