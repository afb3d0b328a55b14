package domain

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/crypto"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/testutil"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestWebhookDomain(publisher *testutil.MockPublisher) *webhookDomain {
	return NewWebhookDomain(
		repository.NewWebhookRepository(),
		repository.NewEntryRepository(),
		repository.NewEscrowRepository(),
		repository.NewPayoutRepository(),
		repository.NewGiveawayRepository(),
		publisher,
	)
}

func signedWebhook(webhookID, eventType string, payload any) *model.ReceiveWebhookRequest {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	secret := testutil.MockConfigs().Payment.WebhookSecret

	return &model.ReceiveWebhookRequest{
		WebhookID: webhookID,
		EventType: eventType,
		Payload:   b,
		Signature: crypto.HMAC(sha256.New, b, []byte(secret)),
	}
}

func Test_webhookDomain_Receive_InvalidSignature(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestWebhookDomain(&testutil.MockPublisher{})

	req := signedWebhook("wh_1", WebhookEventPaymentCaptured, map[string]any{})
	req.Signature = "deadbeef"

	_, err := d.Receive(ctx, req)
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.InvalidSignature, errx.Code)
}

func Test_webhookDomain_Receive_PaymentCaptured(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestWebhookDomain(&testutil.MockPublisher{})

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)

	req := signedWebhook("wh_1", WebhookEventPaymentCaptured, map[string]any{
		"payment_reference": "pay_1",
		"giveaway_id":       giveaway.ID,
		"user_id":           "alice",
		"ticket_count":      2,
		"amount":            1000,
	})

	resp, err := d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	require.False(t, resp.Duplicate)

	entry, err := d.entryRepo.GetByPaymentReference(ctx, "pay_1")
	require.NoError(t, err)
	require.Equal(t, entity.EntryPaymentCompleted, entry.PaymentStatus)
	require.Equal(t, 2, entry.TicketCount)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.CountedEntries)

	account, err := d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), account.GrossCollected)
	require.Equal(t, int64(1000), account.AvailableAmount)

	// Redelivery of the same webhook is acknowledged without re-crediting.
	resp, err = d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	require.True(t, resp.Duplicate)

	account, err = d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), account.GrossCollected)

	stored, err = d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.CountedEntries)
}

func Test_webhookDomain_Receive_TransferSucceeded(t *testing.T) {
	ctx := testutil.MockContext()
	publisher := &testutil.MockPublisher{}
	d := newTestWebhookDomain(publisher)
	payoutDomain := newTestPayoutDomain(&testutil.MockPaymentCaller{})

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayCompleted, time.Now().Add(-time.Minute))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 10000)

	payout, err := payoutDomain.Initiate(
		ctx, giveaway, "winner", entity.PayoutWinnerPrize, 5000, sql.NullString{})
	require.NoError(t, err)

	req := signedWebhook("wh_1", WebhookEventTransferSucceeded, map[string]any{
		"transfer_reference": payout.ExternalReference.String,
		"idempotency_key":    payout.IdempotencyKey,
	})

	resp, err := d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)

	stored, err := d.payoutRepo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, entity.PayoutSucceeded, stored.Status)

	account := requireEscrowConserved(t, ctx, giveaway.ID)
	require.Equal(t, int64(5000), account.AvailableAmount)
	require.Equal(t, int64(0), account.ReservedAmount)
	require.Equal(t, int64(5000), account.PaidOut)
	require.False(t, account.Halted)

	require.Len(t, publisher.Packs, 1)

	// A second confirmation under a new webhook id settles nothing twice.
	again := signedWebhook("wh_2", WebhookEventTransferSucceeded, map[string]any{
		"idempotency_key": payout.IdempotencyKey,
	})
	_, err = d.Receive(ctx, again)
	require.NoError(t, err)

	account = requireEscrowConserved(t, ctx, giveaway.ID)
	require.Equal(t, int64(5000), account.PaidOut)
}

func Test_webhookDomain_Receive_TransferFailed(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestWebhookDomain(&testutil.MockPublisher{})
	payoutDomain := newTestPayoutDomain(&testutil.MockPaymentCaller{})

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayCompleted, time.Now().Add(-time.Minute))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 10000)

	payout, err := payoutDomain.Initiate(
		ctx, giveaway, "winner", entity.PayoutWinnerPrize, 5000, sql.NullString{})
	require.NoError(t, err)

	req := signedWebhook("wh_1", WebhookEventTransferFailed, map[string]any{
		"idempotency_key": payout.IdempotencyKey,
		"failure_reason":  "destination account closed",
	})

	_, err = d.Receive(ctx, req)
	require.NoError(t, err)

	stored, err := d.payoutRepo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, entity.PayoutFailed, stored.Status)
	require.Equal(t, "destination account closed", stored.FailureReason)

	// The held funds return to the available balance.
	account := requireEscrowConserved(t, ctx, giveaway.ID)
	require.Equal(t, int64(10000), account.AvailableAmount)
	require.Equal(t, int64(0), account.ReservedAmount)
	require.Equal(t, int64(0), account.PaidOut)
}

func Test_webhookDomain_Receive_RefundSucceeded(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestWebhookDomain(&testutil.MockPublisher{})
	payoutDomain := newTestPayoutDomain(&testutil.MockPaymentCaller{})

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 10000)
	entry := testutil.SeedEntry(ctx, giveaway.ID, "alice", 2, entity.EntryPaymentCompleted, "pay_1")

	require.NoError(t, d.giveawayRepo.IncreaseCountedEntries(ctx, giveaway.ID, 2))

	payout, err := payoutDomain.Refund(ctx, entry.ID, "user requested")
	require.NoError(t, err)

	req := signedWebhook("wh_1", WebhookEventRefundSucceeded, map[string]any{
		"idempotency_key": payout.IdempotencyKey,
	})

	_, err = d.Receive(ctx, req)
	require.NoError(t, err)

	// The entry flips only after the processor confirms.
	stored, err := d.entryRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entity.EntryPaymentRefunded, stored.PaymentStatus)

	updated, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.CountedEntries)

	requireEscrowConserved(t, ctx, giveaway.ID)
}

func Test_webhookDomain_RetryUntilFailed_ThenReplay(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestWebhookDomain(&testutil.MockPublisher{})

	// The referenced giveaway does not exist yet, so every attempt fails.
	req := signedWebhook("wh_1", WebhookEventPaymentCaptured, map[string]any{
		"payment_reference": "pay_1",
		"giveaway_id":       "missing",
		"user_id":           "alice",
		"ticket_count":      1,
		"amount":            500,
	})

	resp, err := d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)

	delivery, err := d.webhookRepo.GetByWebhookEvent(ctx, "wh_1", WebhookEventPaymentCaptured)
	require.NoError(t, err)
	require.Equal(t, entity.WebhookDeliveryRetrying, delivery.Status)
	require.Equal(t, 1, delivery.AttemptCount)
	require.True(t, delivery.NextRetryAt.Valid)
	require.NotEmpty(t, delivery.LastError)

	cfg := testutil.MockConfigs().Webhook
	for attempt := 2; attempt <= cfg.MaxAttempts; attempt++ {
		require.NoError(t, d.Retry(ctx, delivery.ID))
	}

	delivery, err = d.webhookRepo.GetByID(ctx, delivery.ID)
	require.NoError(t, err)
	require.Equal(t, entity.WebhookDeliveryFailed, delivery.Status)

	failed, err := d.GetFailed(ctx, &model.GetFailedWebhooksRequest{})
	require.NoError(t, err)
	require.Len(t, failed.Deliveries, 1)

	// Once the underlying data exists, a replay lands the capture.
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)
	fixTestWebhookPayload(ctx, t, d, delivery.ID, giveaway.ID)

	replayed, err := d.Replay(ctx, &model.ReplayWebhookRequest{DeliveryID: delivery.ID})
	require.NoError(t, err)
	require.Equal(t, string(entity.WebhookDeliverySucceeded), replayed.Delivery.Status)

	entry, err := d.entryRepo.GetByPaymentReference(ctx, "pay_1")
	require.NoError(t, err)
	require.Equal(t, entity.EntryPaymentCompleted, entry.PaymentStatus)

	// Replaying a succeeded delivery is refused.
	_, err = d.Replay(ctx, &model.ReplayWebhookRequest{DeliveryID: delivery.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_webhookDomain_RetryDelay_Backoff(t *testing.T) {
	cfg := testutil.MockConfigs().Webhook

	require.Equal(t, cfg.RetryBaseDelay, retryDelay(cfg, 0))
	require.Equal(t, 2*cfg.RetryBaseDelay, retryDelay(cfg, 1))
	require.Equal(t, 8*cfg.RetryBaseDelay, retryDelay(cfg, 3))
	require.Equal(t, cfg.RetryMaxDelay, retryDelay(cfg, 20))
}

// fixTestWebhookPayload rewrites the stored payload to point at a real
// giveaway, standing in for the upstream fix an operator would make
// before replaying.
func fixTestWebhookPayload(
	ctx context.Context, t *testing.T, d *webhookDomain, deliveryID, giveawayID string,
) {
	delivery, err := d.webhookRepo.GetByID(ctx, deliveryID)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(delivery.Payload), &payload))
	payload["giveaway_id"] = giveawayID

	b, err := json.Marshal(payload)
	require.NoError(t, err)

	err = xcontext.DB(ctx).Model(&entity.WebhookDelivery{}).
		Where("id=?", delivery.ID).
		Update("payload", string(b)).Error
	require.NoError(t, err)
}

// contendedWebhookRepository lands a competing delivery right before the
// caller's own insert, reproducing two concurrent redeliveries of the
// same webhook.
type contendedWebhookRepository struct {
	repository.WebhookRepository
	competing *entity.WebhookDelivery
}

func (r *contendedWebhookRepository) Create(
	ctx context.Context, delivery *entity.WebhookDelivery,
) error {
	if err := r.WebhookRepository.Create(ctx, r.competing); err != nil {
		return err
	}

	return r.WebhookRepository.Create(ctx, delivery)
}

func Test_webhookDomain_Receive_LosesInsertRace(t *testing.T) {
	ctx := testutil.MockContext()

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)

	req := signedWebhook("wh_1", WebhookEventPaymentCaptured, map[string]any{
		"payment_reference": "pay_1",
		"giveaway_id":       giveaway.ID,
		"user_id":           "alice",
		"ticket_count":      1,
		"amount":            500,
	})

	competing := &entity.WebhookDelivery{
		Base:      entity.Base{ID: uuid.NewString()},
		WebhookID: "wh_1",
		EventType: WebhookEventPaymentCaptured,
		Payload:   string(req.Payload),
		Status:    entity.WebhookDeliverySucceeded,
	}

	d := NewWebhookDomain(
		&contendedWebhookRepository{
			WebhookRepository: repository.NewWebhookRepository(),
			competing:         competing,
		},
		repository.NewEntryRepository(),
		repository.NewEscrowRepository(),
		repository.NewPayoutRepository(),
		repository.NewGiveawayRepository(),
		&testutil.MockPublisher{},
	)

	// The loser of the (webhook_id, event_type) insert acknowledges the
	// redelivery as a duplicate and must not process the payload again.
	resp, err := d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	require.True(t, resp.Duplicate)

	_, err = d.entryRepo.GetByPaymentReference(ctx, "pay_1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	account, err := d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), account.GrossCollected)
}

// contendedEntryRepository lands a competing entry right before the
// caller's own insert, reproducing two deliveries of the same capture
// processing at once.
type contendedEntryRepository struct {
	repository.EntryRepository
	competing *entity.Entry
}

func (r *contendedEntryRepository) Create(ctx context.Context, entry *entity.Entry) error {
	if err := r.EntryRepository.Create(ctx, r.competing); err != nil {
		return err
	}

	return r.EntryRepository.Create(ctx, entry)
}

func Test_webhookDomain_PaymentCaptured_LosesEntryInsertRace(t *testing.T) {
	ctx := testutil.MockContext()

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)

	competing := &entity.Entry{
		Base:             entity.Base{ID: uuid.NewString()},
		GiveawayID:       giveaway.ID,
		UserID:           "alice",
		TicketCount:      1,
		PaymentStatus:    entity.EntryPaymentCompleted,
		PaymentReference: sql.NullString{String: "pay_1", Valid: true},
	}

	d := NewWebhookDomain(
		repository.NewWebhookRepository(),
		&contendedEntryRepository{
			EntryRepository: repository.NewEntryRepository(),
			competing:       competing,
		},
		repository.NewEscrowRepository(),
		repository.NewPayoutRepository(),
		repository.NewGiveawayRepository(),
		&testutil.MockPublisher{},
	)

	req := signedWebhook("wh_1", WebhookEventPaymentCaptured, map[string]any{
		"payment_reference": "pay_1",
		"giveaway_id":       giveaway.ID,
		"user_id":           "alice",
		"ticket_count":      1,
		"amount":            500,
	})

	resp, err := d.Receive(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Accepted)

	delivery, err := d.webhookRepo.GetByWebhookEvent(ctx, "wh_1", WebhookEventPaymentCaptured)
	require.NoError(t, err)
	require.Equal(t, entity.WebhookDeliverySucceeded, delivery.Status)

	// The loser of the payment_reference insert defers to the delivery
	// that won: one entry, no credit of its own.
	entry, err := d.entryRepo.GetByPaymentReference(ctx, "pay_1")
	require.NoError(t, err)
	require.Equal(t, competing.ID, entry.ID)

	account, err := d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), account.GrossCollected)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.CountedEntries)
}
