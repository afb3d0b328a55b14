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
	"github.com/stretchr/testify/require"
)

func newTestAdminDomain() *adminDomain {
	return NewAdminDomain(
		repository.NewGiveawayRepository(),
		repository.NewEscrowRepository(),
		repository.NewAuditLogRepository(),
		newTestFairnessDomain(),
		newTestPayoutDomain(&testutil.MockPaymentCaller{}),
		newTestWebhookDomain(&testutil.MockPublisher{}),
	)
}

func Test_adminDomain_Approve(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayPendingApproval, time.Now().Add(time.Hour))

	_, err := d.Approve(ctx, &model.ApproveGiveawayRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayActive, stored.Status)

	// Approval publishes the seed hash and opens the escrow account.
	commitment, err := d.fairnessDomain.GetCommitment(
		ctx, &model.GetFairnessCommitmentRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Len(t, commitment.ServerSeedHash, 64)

	account, err := d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), account.GrossCollected)

	logs, err := d.GetAuditLogs(ctx, &model.GetAuditLogsRequest{})
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)
	require.Equal(t, AuditApproveGiveaway, logs.Logs[0].Action)
	require.Equal(t, "admin", logs.Logs[0].ActorID)
	require.Equal(t, giveaway.ID, logs.Logs[0].Target)

	// Only pending approvals can be approved.
	_, err = d.Approve(ctx, &model.ApproveGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_adminDomain_Approve_AfterClosingTime(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayPendingApproval, time.Now().Add(-time.Minute))

	// The seed hash must be published strictly before the closing time,
	// so a giveaway whose close has passed can no longer be activated.
	_, err := d.Approve(ctx, &model.ApproveGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayPendingApproval, stored.Status)

	_, err = d.fairnessDomain.GetCommitment(
		ctx, &model.GetFairnessCommitmentRequest{GiveawayID: giveaway.ID})
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.NoCommitment, errx.Code)
}

func Test_adminDomain_Reject(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayPendingApproval, time.Now().Add(time.Hour))

	_, err := d.Reject(ctx, &model.RejectGiveawayRequest{GiveawayID: giveaway.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	_, err = d.Reject(ctx, &model.RejectGiveawayRequest{
		GiveawayID: giveaway.ID,
		Reason:     "prohibited prize",
	})
	require.NoError(t, err)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayRejected, stored.Status)

	logs, err := d.GetAuditLogs(ctx, &model.GetAuditLogsRequest{})
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)
	require.Equal(t, "prohibited prize", logs.Logs[0].Reason)
}

func Test_adminDomain_Freeze(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))

	_, err := d.Freeze(ctx, &model.FreezeGiveawayRequest{
		GiveawayID: giveaway.ID,
		Reason:     "fraud review",
	})
	require.NoError(t, err)

	stored, err := d.giveawayRepo.GetByID(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, entity.GiveawayFrozen, stored.Status)

	// A frozen giveaway cannot be frozen again.
	_, err = d.Freeze(ctx, &model.FreezeGiveawayRequest{
		GiveawayID: giveaway.ID,
		Reason:     "fraud review",
	})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_adminDomain_ForceReselect(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayCompleted, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)
	testutil.SeedEntry(ctx, giveaway.ID, "alice", 1, entity.EntryPaymentCompleted, "pay_1")
	testutil.SeedEntry(ctx, giveaway.ID, "bob", 1, entity.EntryPaymentCompleted, "pay_2")

	original, err := d.fairnessDomain.SelectWinner(ctx, giveaway.ID)
	require.NoError(t, err)

	resp, err := d.ForceReselect(ctx, &model.ForceReselectRequest{
		GiveawayID: giveaway.ID,
		Reason:     "winner disqualified",
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Proof.Revision)
	require.NotEqual(t, original.WinnerEntryID, resp.Proof.WinnerEntryID)

	// The audit entry carries both proofs for review.
	logs, err := d.GetAuditLogs(ctx, &model.GetAuditLogsRequest{})
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)
	require.Equal(t, AuditForceReselect, logs.Logs[0].Action)
	require.Equal(t, original.WinnerEntryID, logs.Logs[0].OldState["WinnerEntryID"])
	require.Equal(t, resp.Proof.WinnerEntryID, logs.Logs[0].NewState["WinnerEntryID"])
}

func Test_adminDomain_Refund(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, giveaway.ID, 10000)
	entry := testutil.SeedEntry(ctx, giveaway.ID, "alice", 2, entity.EntryPaymentCompleted, "pay_1")

	_, err := d.Refund(ctx, &model.AdminRefundRequest{EntryID: entry.ID})
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	resp, err := d.Refund(ctx, &model.AdminRefundRequest{
		EntryID: entry.ID,
		Reason:  "chargeback received",
	})
	require.NoError(t, err)
	require.Equal(t, string(entity.PayoutRefund), resp.Payout.Type)
	require.Equal(t, int64(1000), resp.Payout.Amount)

	logs, err := d.GetAuditLogs(ctx, &model.GetAuditLogsRequest{})
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)
	require.Equal(t, AuditRefundEntry, logs.Logs[0].Action)
}

func Test_adminDomain_GetHaltedEscrows(t *testing.T) {
	ctx := testutil.MockContextWithUserID("admin")
	d := newTestAdminDomain()

	healthy := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, healthy.ID, 5000)

	broken := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedEscrowAccount(ctx, broken.ID, 5000)
	require.NoError(t, d.escrowRepo.Halt(ctx, broken.ID))

	resp, err := d.GetHaltedEscrows(ctx, &model.GetHaltedEscrowsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Accounts, 1)
	require.Equal(t, broken.ID, resp.Accounts[0].GiveawayID)
	require.True(t, resp.Accounts[0].Halted)
}
