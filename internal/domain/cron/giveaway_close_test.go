package cron

import (
	"testing"
	"time"

	"github.com/prizeloop/backend/internal/domain"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/testutil"
	"github.com/prizeloop/backend/pkg/xredis"
	"github.com/stretchr/testify/require"
)

func Test_GiveawayCloseCronJob_Do(t *testing.T) {
	ctx := testutil.MockContext()
	giveawayRepo := repository.NewGiveawayRepository()
	entryRepo := repository.NewEntryRepository()
	escrowRepo := repository.NewEscrowRepository()

	giveawayDomain := domain.NewGiveawayDomain(
		giveawayRepo,
		entryRepo,
		escrowRepo,
		domain.NewFairnessDomain(repository.NewFairnessRepository(), giveawayRepo, entryRepo),
		domain.NewPayoutDomain(
			repository.NewPayoutRepository(), escrowRepo, entryRepo, giveawayRepo,
			&testutil.MockPaymentCaller{}),
		&testutil.MockPublisher{},
	)

	overdue := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, overdue.ID)
	testutil.SeedEscrowAccount(ctx, overdue.ID, 10000)
	testutil.SeedEntry(ctx, overdue.ID, "alice", 2, entity.EntryPaymentCompleted, "pay_1")

	running := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))

	job := NewGiveawayCloseCronJob(giveawayRepo, giveawayDomain, xredis.NoopLocker{})
	job.Do(ctx)

	closed, err := giveawayRepo.GetByID(ctx, overdue.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayCompleted, closed.Status)

	// Giveaways that have not reached their closing time are untouched.
	open, err := giveawayRepo.GetByID(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayActive, open.Status)
}
