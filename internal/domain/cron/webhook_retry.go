package cron

import (
	"context"
	"time"

	"github.com/prizeloop/backend/internal/domain"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/prizeloop/backend/pkg/xredis"
	"github.com/puzpuzpuz/xsync"
	"golang.org/x/sync/errgroup"
)

const (
	webhookRetryBatchSize   = 100
	webhookRetryConcurrency = 8
	webhookRetryLockTTL     = time.Minute
)

// WebhookRetryCronJob re-runs deliveries whose backoff timer has
// expired. The redis lease keeps multiple instances from dispatching the
// same delivery; the in-flight set does the same within one instance.
// Both are advisory: the claim transition in the repository is what
// actually guarantees single execution.
type WebhookRetryCronJob struct {
	webhookRepo   repository.WebhookRepository
	webhookDomain domain.WebhookDomain
	locker        xredis.Locker
	inflight      *xsync.MapOf[string, bool]
}

func NewWebhookRetryCronJob(
	webhookRepo repository.WebhookRepository,
	webhookDomain domain.WebhookDomain,
	locker xredis.Locker,
) *WebhookRetryCronJob {
	return &WebhookRetryCronJob{
		webhookRepo:   webhookRepo,
		webhookDomain: webhookDomain,
		locker:        locker,
		inflight:      xsync.NewMapOf[bool](),
	}
}

func (job *WebhookRetryCronJob) Do(ctx context.Context) {
	deliveries, err := job.webhookRepo.GetDue(ctx, time.Now(), webhookRetryBatchSize)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get due webhook deliveries: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(webhookRetryConcurrency)
	for _, delivery := range deliveries {
		deliveryID := delivery.ID
		if _, loaded := job.inflight.LoadOrStore(deliveryID, true); loaded {
			continue
		}

		g.Go(func() error {
			defer job.inflight.Delete(deliveryID)

			lockKey := "webhook_retry:" + deliveryID
			acquired, err := job.locker.Acquire(gctx, lockKey, webhookRetryLockTTL)
			if err != nil {
				xcontext.Logger(gctx).Errorf("Cannot acquire retry lock: %v", err)
				return nil
			}

			if !acquired {
				return nil
			}
			defer job.locker.Release(gctx, lockKey)

			if err := job.webhookDomain.Retry(gctx, deliveryID); err != nil {
				xcontext.Logger(gctx).Errorf("Cannot retry webhook delivery %s: %v", deliveryID, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		xcontext.Logger(ctx).Errorf("Webhook retry batch failed: %v", err)
	}
}

func (job *WebhookRetryCronJob) RunNow() bool {
	return true
}

func (job *WebhookRetryCronJob) Next() time.Time {
	return time.Now().Add(30 * time.Second)
}
