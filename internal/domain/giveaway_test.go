package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/testutil"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

func newTestGiveawayDomain(publisher *testutil.MockPublisher) *giveawayDomain {
	return NewGiveawayDomain(
		repository.NewGiveawayRepository(),
		repository.NewEntryRepository(),
		repository.NewEscrowRepository(),
		newTestFairnessDomain(),
		newTestPayoutDomain(&testutil.MockPaymentCaller{}),
		publisher,
	)
}

func Test_giveawayDomain_Create(t *testing.T) {
	ctx := testutil.MockContextWithUserID("creator")
	d := newTestGiveawayDomain(&testutil.MockPublisher{})

	_, err := d.Create(ctx, &model.CreateGiveawayRequest{
		Title:       "",
		PrizeAmount: 5000,
		MaxEntries:  100,
		ClosesAt:    time.Now().Add(time.Hour),
	})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	_, err = d.Create(ctx, &model.CreateGiveawayRequest{
		Title:       "Closes in the past",
		PrizeAmount: 5000,
		MaxEntries:  100,
		ClosesAt:    time.Now().Add(-time.Hour),
	})
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	resp, err := d.Create(ctx, &model.CreateGiveawayRequest{
		Title:       "Weekly drop",
		EntryCost:   500,
		PrizeAmount: 5000,
		MaxEntries:  100,
		ClosesAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	giveaway, err := d.giveawayRepo.GetByID(ctx, resp.ID)
	require.NoError(t, err)
	require.Equal(t, "creator", giveaway.CreatorID)
	require.Equal(t, entity.GiveawayDraft, giveaway.Status)
}

func Test_giveawayDomain_Submit(t *testing.T) {
	ctx := testutil.MockContextWithUserID("creator")
	d := newTestGiveawayDomain(&testutil.MockPublisher{})
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayDraft, time.Now().Add(time.Hour))

	strangerCtx := xcontext.WithRequestUserID(ctx, "stranger")
	_, err := d.Submit(strangerCtx, &model.SubmitGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.PermissionDenied, errx.Code)

	_, err = d.Submit(ctx, &model.SubmitGiveawayRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayPendingApproval, stored.Status)

	// Only drafts can be submitted.
	_, err = d.Submit(ctx, &model.SubmitGiveawayRequest{GiveawayID: giveaway.ID})
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_giveawayDomain_GetList(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestGiveawayDomain(&testutil.MockPublisher{})

	testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedGiveaway(ctx, entity.GiveawayDraft, time.Now().Add(time.Hour))

	resp, err := d.GetList(ctx, &model.GetListGiveawayRequest{Status: "active"})
	require.NoError(t, err)
	require.Len(t, resp.Giveaways, 1)
	require.Equal(t, "active", resp.Giveaways[0].Status)

	_, err = d.GetList(ctx, &model.GetListGiveawayRequest{Status: "bogus"})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	_, err = d.GetList(ctx, &model.GetListGiveawayRequest{Limit: 500})
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_giveawayDomain_Close(t *testing.T) {
	ctx := testutil.MockContext()
	publisher := &testutil.MockPublisher{}
	d := newTestGiveawayDomain(publisher)

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 10000)
	testutil.SeedEntry(ctx, giveaway.ID, "alice", 10, entity.EntryPaymentCompleted, "pay_1")
	testutil.SeedEntry(ctx, giveaway.ID, "bob", 10, entity.EntryPaymentCompleted, "pay_2")

	resp, err := d.Close(ctx, &model.CloseGiveawayRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Contains(t, []string{"alice", "bob"}, resp.Proof.WinnerUserID)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayCompleted, stored.Status)

	// Prize to the winner, the remainder after the 10% platform fee to
	// the creator: 10000 - 5000 - 1000.
	payouts, err := repository.NewPayoutRepository().GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	amounts := map[entity.PayoutType]int64{}
	for _, p := range payouts {
		require.Equal(t, entity.PayoutProcessing, p.Status)
		amounts[p.Type] = p.Amount
	}
	require.Equal(t, int64(5000), amounts[entity.PayoutWinnerPrize])
	require.Equal(t, int64(4000), amounts[entity.PayoutCreatorRevenue])

	account := requireEscrowConserved(t, ctx, giveaway.ID)
	require.Equal(t, int64(9000), account.ReservedAmount)

	// winner_selected and giveaway_closed.
	require.Len(t, publisher.Packs, 2)

	// Closing again returns the recorded proof without re-drawing or
	// re-paying.
	again, err := d.Close(ctx, &model.CloseGiveawayRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Equal(t, resp.Proof.WinnerEntryID, again.Proof.WinnerEntryID)

	payouts, err = repository.NewPayoutRepository().GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
}

func Test_giveawayDomain_Close_BeforeClosingTime(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestGiveawayDomain(&testutil.MockPublisher{})
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))

	_, err := d.Close(ctx, &model.CloseGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.NotYetClosed, errx.Code)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayActive, stored.Status)
}

func Test_giveawayDomain_Close_NoEligibleEntries(t *testing.T) {
	ctx := testutil.MockContext()
	publisher := &testutil.MockPublisher{}
	d := newTestGiveawayDomain(publisher)

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 0)

	_, err := d.Close(ctx, &model.CloseGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.NoEligibleEntries, errx.Code)

	// The giveaway still completes; there is just no draw to run.
	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayCompleted, stored.Status)
	require.Len(t, publisher.Packs, 1)
}
