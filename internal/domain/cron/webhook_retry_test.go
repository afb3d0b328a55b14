package cron

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/domain"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/testutil"
	"github.com/prizeloop/backend/pkg/xredis"
	"github.com/stretchr/testify/require"
)

func Test_WebhookRetryCronJob_Do(t *testing.T) {
	ctx := testutil.MockContext()
	webhookRepo := repository.NewWebhookRepository()
	entryRepo := repository.NewEntryRepository()
	escrowRepo := repository.NewEscrowRepository()
	giveawayRepo := repository.NewGiveawayRepository()

	webhookDomain := domain.NewWebhookDomain(
		webhookRepo,
		entryRepo,
		escrowRepo,
		repository.NewPayoutRepository(),
		giveawayRepo,
		&testutil.MockPublisher{},
	)

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)

	payload, err := json.Marshal(map[string]any{
		"payment_reference": "pay_1",
		"giveaway_id":       giveaway.ID,
		"user_id":           "alice",
		"ticket_count":      1,
		"amount":            500,
	})
	require.NoError(t, err)

	due := &entity.WebhookDelivery{
		Base:         entity.Base{ID: uuid.NewString()},
		WebhookID:    "wh_due",
		EventType:    domain.WebhookEventPaymentCaptured,
		Payload:      string(payload),
		Status:       entity.WebhookDeliveryRetrying,
		AttemptCount: 1,
		NextRetryAt:  sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true},
	}
	require.NoError(t, webhookRepo.Create(ctx, due))

	notDue := &entity.WebhookDelivery{
		Base:         entity.Base{ID: uuid.NewString()},
		WebhookID:    "wh_later",
		EventType:    domain.WebhookEventPaymentCaptured,
		Payload:      string(payload),
		Status:       entity.WebhookDeliveryRetrying,
		AttemptCount: 1,
		NextRetryAt:  sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true},
	}
	require.NoError(t, webhookRepo.Create(ctx, notDue))

	job := NewWebhookRetryCronJob(webhookRepo, webhookDomain, xredis.NoopLocker{})
	job.Do(ctx)

	processed, err := webhookRepo.GetByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, entity.WebhookDeliverySucceeded, processed.Status)

	entry, err := entryRepo.GetByPaymentReference(ctx, "pay_1")
	require.NoError(t, err)
	require.Equal(t, entity.EntryPaymentCompleted, entry.PaymentStatus)

	// A delivery whose backoff has not expired stays queued.
	waiting, err := webhookRepo.GetByID(ctx, notDue.ID)
	require.NoError(t, err)
	require.Equal(t, entity.WebhookDeliveryRetrying, waiting.Status)
}
