package domain

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/prizeloop/backend/config"
	"github.com/prizeloop/backend/internal/common"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/crypto"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/pubsub"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

const (
	WebhookEventPaymentCaptured   = "payment.captured"
	WebhookEventTransferSucceeded = "transfer.succeeded"
	WebhookEventTransferFailed    = "transfer.failed"
	WebhookEventRefundSucceeded   = "refund.succeeded"
	WebhookEventRefundFailed      = "refund.failed"
)

type WebhookDomain interface {
	Receive(context.Context, *model.ReceiveWebhookRequest) (*model.ReceiveWebhookResponse, error)
	GetFailed(context.Context, *model.GetFailedWebhooksRequest) (*model.GetFailedWebhooksResponse, error)
	Replay(context.Context, *model.ReplayWebhookRequest) (*model.ReplayWebhookResponse, error)

	// Retry re-runs one due delivery. It is driven by the retry cron.
	Retry(ctx context.Context, deliveryID string) error
}

type webhookDomain struct {
	webhookRepo  repository.WebhookRepository
	entryRepo    repository.EntryRepository
	escrowRepo   repository.EscrowRepository
	payoutRepo   repository.PayoutRepository
	giveawayRepo repository.GiveawayRepository
	publisher    pubsub.Publisher
}

func NewWebhookDomain(
	webhookRepo repository.WebhookRepository,
	entryRepo repository.EntryRepository,
	escrowRepo repository.EscrowRepository,
	payoutRepo repository.PayoutRepository,
	giveawayRepo repository.GiveawayRepository,
	publisher pubsub.Publisher,
) *webhookDomain {
	return &webhookDomain{
		webhookRepo:  webhookRepo,
		entryRepo:    entryRepo,
		escrowRepo:   escrowRepo,
		payoutRepo:   payoutRepo,
		giveawayRepo: giveawayRepo,
		publisher:    publisher,
	}
}

// Receive ingests one signed processor webhook. Redelivery of the same
// (webhook_id, event_type) short-circuits before any state mutation.
func (d *webhookDomain) Receive(
	ctx context.Context, req *model.ReceiveWebhookRequest,
) (*model.ReceiveWebhookResponse, error) {
	secret := xcontext.Configs(ctx).Payment.WebhookSecret
	if !crypto.VerifyHMAC(sha256.New, req.Payload, []byte(secret), req.Signature) {
		common.WebhookDeliveryCounter.WithLabelValues(req.EventType, "rejected").Inc()
		return nil, errorx.New(errorx.InvalidSignature, "Invalid webhook signature")
	}

	if _, err := d.webhookRepo.GetByWebhookEvent(ctx, req.WebhookID, req.EventType); err == nil {
		common.WebhookDeliveryCounter.WithLabelValues(req.EventType, "duplicate").Inc()
		return &model.ReceiveWebhookResponse{Accepted: true, Duplicate: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot get webhook delivery: %v", err)
		return nil, errorx.Unknown
	}

	delivery := &entity.WebhookDelivery{
		Base:      entity.Base{ID: uuid.NewString()},
		WebhookID: req.WebhookID,
		EventType: req.EventType,
		Status:    entity.WebhookDeliveryPending,
		Payload:   string(req.Payload),
	}

	if err := d.webhookRepo.Create(ctx, delivery); err != nil {
		// The unique (webhook_id, event_type) index means a concurrent
		// redelivery beat us to the insert.
		if _, getErr := d.webhookRepo.GetByWebhookEvent(ctx, req.WebhookID, req.EventType); getErr == nil {
			common.WebhookDeliveryCounter.WithLabelValues(req.EventType, "duplicate").Inc()
			return &model.ReceiveWebhookResponse{Accepted: true, Duplicate: true}, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot create webhook delivery: %v", err)
		return nil, errorx.Unknown
	}

	common.WebhookDeliveryCounter.WithLabelValues(req.EventType, "accepted").Inc()
	d.run(ctx, delivery)

	return &model.ReceiveWebhookResponse{Accepted: true, Duplicate: false}, nil
}

func (d *webhookDomain) GetFailed(
	ctx context.Context, req *model.GetFailedWebhooksRequest,
) (*model.GetFailedWebhooksResponse, error) {
	deliveries, err := d.webhookRepo.GetPermanentlyFailed(ctx)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get failed webhook deliveries: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetFailedWebhooksResponse{Deliveries: []model.WebhookDelivery{}}
	for i := range deliveries {
		resp.Deliveries = append(resp.Deliveries, model.ConvertWebhookDelivery(&deliveries[i]))
	}

	return resp, nil
}

// Replay resets a permanently failed delivery and runs it again
// immediately. It is reachable only through the admin gateway.
func (d *webhookDomain) Replay(
	ctx context.Context, req *model.ReplayWebhookRequest,
) (*model.ReplayWebhookResponse, error) {
	delivery, err := d.webhookRepo.GetByID(ctx, req.DeliveryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found webhook delivery %s", req.DeliveryID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get webhook delivery: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.webhookRepo.ResetForReplay(ctx, delivery.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest,
				"Webhook delivery %s is %s, only failed deliveries can be replayed",
				delivery.ID, delivery.Status)
		}

		xcontext.Logger(ctx).Errorf("Cannot reset webhook delivery: %v", err)
		return nil, errorx.Unknown
	}

	delivery.Status = entity.WebhookDeliveryPending
	delivery.AttemptCount = 0
	d.run(ctx, delivery)

	replayed, err := d.webhookRepo.GetByID(ctx, delivery.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get replayed delivery: %v", err)
		return nil, errorx.Unknown
	}

	return &model.ReplayWebhookResponse{Delivery: model.ConvertWebhookDelivery(replayed)}, nil
}

func (d *webhookDomain) Retry(ctx context.Context, deliveryID string) error {
	delivery, err := d.webhookRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}

	d.run(ctx, delivery)
	return nil
}

// run claims the delivery, executes the handler inside a transaction,
// and records the outcome. Losing the claim is not an error: another
// instance owns the delivery.
func (d *webhookDomain) run(ctx context.Context, delivery *entity.WebhookDelivery) {
	if err := d.webhookRepo.ClaimProcessing(ctx, delivery.ID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			xcontext.Logger(ctx).Errorf("Cannot claim webhook delivery: %v", err)
		}

		return
	}

	txCtx := xcontext.WithDBTransaction(ctx)
	procErr := d.process(txCtx, delivery)
	if procErr != nil {
		xcontext.WithRollbackDBTransaction(txCtx)
	} else {
		xcontext.WithCommitDBTransaction(txCtx)
	}

	d.finish(ctx, delivery, procErr)
}

func (d *webhookDomain) finish(
	ctx context.Context, delivery *entity.WebhookDelivery, procErr error,
) {
	if procErr == nil {
		if err := d.webhookRepo.MarkSucceeded(ctx, delivery.ID); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot mark webhook delivery succeeded: %v", err)
		}

		common.WebhookDeliveryCounter.WithLabelValues(delivery.EventType, "succeeded").Inc()
		return
	}

	xcontext.Logger(ctx).Warnf("Webhook delivery %s attempt %d failed: %v",
		delivery.ID, delivery.AttemptCount+1, procErr)

	cfg := xcontext.Configs(ctx).Webhook
	attempts := delivery.AttemptCount + 1
	if attempts >= cfg.MaxAttempts {
		if err := d.webhookRepo.MarkFailed(ctx, delivery.ID, procErr.Error()); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot mark webhook delivery failed: %v", err)
		}

		common.WebhookDeliveryCounter.WithLabelValues(delivery.EventType, "failed").Inc()
		return
	}

	nextRetryAt := time.Now().Add(retryDelay(cfg, delivery.AttemptCount))
	if err := d.webhookRepo.MarkRetrying(
		ctx, delivery.ID, attempts, nextRetryAt, procErr.Error()); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot mark webhook delivery retrying: %v", err)
	}

	common.WebhookRetryCounter.WithLabelValues(delivery.EventType).Inc()
}

// retryDelay doubles the base delay per completed attempt, capped.
func retryDelay(cfg config.WebhookConfigs, attemptCount int) time.Duration {
	delay := cfg.RetryBaseDelay
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= cfg.RetryMaxDelay {
			return cfg.RetryMaxDelay
		}
	}

	return delay
}

func (d *webhookDomain) process(ctx context.Context, delivery *entity.WebhookDelivery) error {
	switch delivery.EventType {
	case WebhookEventPaymentCaptured:
		return d.handlePaymentCaptured(ctx, delivery)
	case WebhookEventTransferSucceeded, WebhookEventRefundSucceeded:
		return d.handleTransferSucceeded(ctx, delivery)
	case WebhookEventTransferFailed, WebhookEventRefundFailed:
		return d.handleTransferFailed(ctx, delivery)
	default:
		// Unknown events are acknowledged, not retried forever.
		xcontext.Logger(ctx).Warnf("Ignored webhook event type %s", delivery.EventType)
		return nil
	}
}

// handlePaymentCaptured records a confirmed checkout: the entry row, the
// entry count, and the escrow credit. Entry collection itself lives in
// the external checkout subsystem; this inbox only learns about captures
// from the processor. The unique payment reference makes a redelivered
// capture a no-op.
func (d *webhookDomain) handlePaymentCaptured(
	ctx context.Context, delivery *entity.WebhookDelivery,
) error {
	var payload model.PaymentCapturedPayload
	if err := decodePayload(delivery.Payload, &payload); err != nil {
		return err
	}

	entry, err := d.entryRepo.GetByPaymentReference(ctx, payload.PaymentReference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err == nil {
		// A previous delivery already landed the entry; confirm it if a
		// crash left it pending.
		if entry.PaymentStatus != entity.EntryPaymentPending {
			return nil
		}

		if err := d.entryRepo.ConfirmPayment(ctx, entry.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}

			return err
		}

		return d.creditEntry(ctx, entry.GiveawayID, entry.TicketCount, payload.Amount)
	}

	giveaway, err := d.giveawayRepo.GetByID(ctx, payload.GiveawayID)
	if err != nil {
		return fmt.Errorf("no giveaway %s for captured payment: %w", payload.GiveawayID, err)
	}

	if giveaway.Status != entity.GiveawayActive {
		return fmt.Errorf("giveaway %s is %s, captured payment needs a refund",
			giveaway.ID, giveaway.Status)
	}

	entry = &entity.Entry{
		Base:             entity.Base{ID: uuid.NewString()},
		GiveawayID:       payload.GiveawayID,
		UserID:           payload.UserID,
		TicketCount:      payload.TicketCount,
		PaymentStatus:    entity.EntryPaymentCompleted,
		PaymentReference: sql.NullString{String: payload.PaymentReference, Valid: true},
	}

	if err := d.entryRepo.Create(ctx, entry); err != nil {
		// The unique payment reference means a concurrent delivery won.
		if _, getErr := d.entryRepo.GetByPaymentReference(ctx, payload.PaymentReference); getErr == nil {
			return nil
		}

		return err
	}

	return d.creditEntry(ctx, entry.GiveawayID, entry.TicketCount, payload.Amount)
}

func (d *webhookDomain) creditEntry(
	ctx context.Context, giveawayID string, ticketCount int, amount int64,
) error {
	err := d.giveawayRepo.IncreaseCountedEntries(ctx, giveawayID, ticketCount)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("giveaway %s is at capacity, captured payment needs a refund", giveawayID)
		}

		return err
	}

	if err := d.escrowRepo.Credit(ctx, giveawayID, amount); err != nil {
		return fmt.Errorf("cannot credit escrow for giveaway %s: %w", giveawayID, err)
	}

	return nil
}

func (d *webhookDomain) handleTransferSucceeded(
	ctx context.Context, delivery *entity.WebhookDelivery,
) error {
	var payload model.TransferOutcomePayload
	if err := decodePayload(delivery.Payload, &payload); err != nil {
		return err
	}

	payout, err := d.findPayout(ctx, &payload)
	if err != nil {
		return err
	}

	if err := d.payoutRepo.TransitStatus(
		ctx, payout.ID, entity.PayoutProcessing, entity.PayoutSucceeded); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return err
	}

	if payload.TransferReference != "" && !payout.ExternalReference.Valid {
		ref := sql.NullString{String: payload.TransferReference, Valid: true}
		if err := d.payoutRepo.SetExternalReference(ctx, payout.ID, ref); err != nil {
			return err
		}
	}

	reservation, err := d.escrowRepo.GetReservationByPayoutID(ctx, payout.ID)
	if err != nil {
		return fmt.Errorf("no reservation for payout %s: %w", payout.ID, err)
	}

	if err := d.escrowRepo.SettleSucceeded(ctx, reservation.ID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	auditEscrow(ctx, d.escrowRepo, payout.GiveawayID)
	common.PayoutOutcomeCounter.
		WithLabelValues(string(payout.Type), string(entity.PayoutSucceeded)).Inc()

	if payout.Type == entity.PayoutRefund {
		return d.settleRefundedEntry(ctx, payout)
	}

	d.publishEvent(ctx, common.EventPayoutSucceeded, payout)
	return nil
}

func (d *webhookDomain) handleTransferFailed(
	ctx context.Context, delivery *entity.WebhookDelivery,
) error {
	var payload model.TransferOutcomePayload
	if err := decodePayload(delivery.Payload, &payload); err != nil {
		return err
	}

	payout, err := d.findPayout(ctx, &payload)
	if err != nil {
		return err
	}

	if err := d.payoutRepo.TransitStatus(
		ctx, payout.ID, entity.PayoutProcessing, entity.PayoutFailed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return err
	}

	reason := payload.FailureReason
	if reason == "" {
		reason = "transfer failed"
	}

	if err := d.payoutRepo.SetFailureReason(ctx, payout.ID, reason); err != nil {
		return err
	}

	reservation, err := d.escrowRepo.GetReservationByPayoutID(ctx, payout.ID)
	if err != nil {
		return fmt.Errorf("no reservation for payout %s: %w", payout.ID, err)
	}

	if err := d.escrowRepo.SettleFailed(ctx, reservation.ID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	auditEscrow(ctx, d.escrowRepo, payout.GiveawayID)
	common.PayoutOutcomeCounter.
		WithLabelValues(string(payout.Type), string(entity.PayoutFailed)).Inc()
	d.publishEvent(ctx, common.EventPayoutFailed, payout)

	return nil
}

// settleRefundedEntry flips the entry only after the processor has
// confirmed the refund, and frees capacity if the giveaway is still
// running.
func (d *webhookDomain) settleRefundedEntry(ctx context.Context, payout *entity.Payout) error {
	if !payout.EntryID.Valid {
		return fmt.Errorf("refund payout %s has no entry", payout.ID)
	}

	entry, err := d.entryRepo.GetByID(ctx, payout.EntryID.String)
	if err != nil {
		return err
	}

	if err := d.entryRepo.MarkRefunded(ctx, entry.ID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	giveaway, err := d.giveawayRepo.GetByID(ctx, entry.GiveawayID)
	if err != nil {
		return err
	}

	if giveaway.Status == entity.GiveawayActive {
		err := d.giveawayRepo.DecreaseCountedEntries(ctx, giveaway.ID, entry.TicketCount)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	d.publishEvent(ctx, common.EventRefundIssued, payout)
	return nil
}

func (d *webhookDomain) findPayout(
	ctx context.Context, payload *model.TransferOutcomePayload,
) (*entity.Payout, error) {
	if payload.IdempotencyKey != "" {
		payout, err := d.payoutRepo.GetByIdempotencyKey(ctx, payload.IdempotencyKey)
		if err == nil {
			return payout, nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if payload.TransferReference != "" {
		payout, err := d.payoutRepo.GetByExternalReference(ctx, payload.TransferReference)
		if err == nil {
			return payout, nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("no payout matches transfer %s", payload.TransferReference)
}

func (d *webhookDomain) publishEvent(ctx context.Context, eventType string, payout *entity.Payout) {
	b, err := json.Marshal(common.GiveawayEvent{
		Type:       eventType,
		GiveawayID: payout.GiveawayID,
		UserID:     payout.RecipientID,
		Data: map[string]any{
			"payout_id":   payout.ID,
			"payout_type": string(payout.Type),
			"amount":      payout.Amount,
		},
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot marshal event: %v", err)
		return
	}

	err = d.publisher.Publish(ctx, common.TopicGiveawayEvents,
		&pubsub.Pack{Key: []byte(payout.GiveawayID), Msg: b})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot publish %s event: %v", eventType, err)
	}
}

// decodePayload goes through a generic map so extra processor fields
// never break decoding.
func decodePayload(payload string, out any) error {
	var loose map[string]any
	if err := json.Unmarshal([]byte(payload), &loose); err != nil {
		return err
	}

	return mapstructure.Decode(loose, out)
}
