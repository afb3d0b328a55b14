package cron

import (
	"context"
	"errors"
	"time"

	"github.com/prizeloop/backend/internal/domain"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/prizeloop/backend/pkg/xredis"
)

const giveawayCloseLockTTL = 5 * time.Minute

// GiveawayCloseCronJob closes giveaways whose closing time has passed.
// Racing another instance or an operator-triggered close is fine: the
// lifecycle transition in the giveaway domain picks a single closer.
type GiveawayCloseCronJob struct {
	giveawayRepo   repository.GiveawayRepository
	giveawayDomain domain.GiveawayDomain
	locker         xredis.Locker
}

func NewGiveawayCloseCronJob(
	giveawayRepo repository.GiveawayRepository,
	giveawayDomain domain.GiveawayDomain,
	locker xredis.Locker,
) *GiveawayCloseCronJob {
	return &GiveawayCloseCronJob{
		giveawayRepo:   giveawayRepo,
		giveawayDomain: giveawayDomain,
		locker:         locker,
	}
}

func (job *GiveawayCloseCronJob) Do(ctx context.Context) {
	giveaways, err := job.giveawayRepo.GetOverdueActive(ctx, time.Now())
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get overdue giveaways: %v", err)
		return
	}

	for _, giveaway := range giveaways {
		lockKey := "giveaway_close:" + giveaway.ID
		acquired, err := job.locker.Acquire(ctx, lockKey, giveawayCloseLockTTL)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot acquire close lock: %v", err)
			continue
		}

		if !acquired {
			continue
		}

		_, err = job.giveawayDomain.Close(ctx, &model.CloseGiveawayRequest{GiveawayID: giveaway.ID})
		if err != nil {
			var xerr errorx.Error
			if errors.As(err, &xerr) && xerr.Code == errorx.NoEligibleEntries {
				xcontext.Logger(ctx).Warnf("Giveaway %s closed with no eligible entries", giveaway.ID)
			} else {
				xcontext.Logger(ctx).Errorf("Cannot close giveaway %s: %v", giveaway.ID, err)
			}
		}

		job.locker.Release(ctx, lockKey)
	}
}

func (job *GiveawayCloseCronJob) RunNow() bool {
	return true
}

func (job *GiveawayCloseCronJob) Next() time.Time {
	return time.Now().Add(time.Minute)
}
