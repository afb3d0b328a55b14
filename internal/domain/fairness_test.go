package domain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
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
	"github.com/stretchr/testify/require"
)

func newTestFairnessDomain() *fairnessDomain {
	return NewFairnessDomain(
		repository.NewFairnessRepository(),
		repository.NewGiveawayRepository(),
		repository.NewEntryRepository(),
	)
}

func Test_fairnessDomain_Commit(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestFairnessDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))

	err := d.Commit(ctx, giveaway.ID)
	require.NoError(t, err)

	resp, err := d.GetCommitment(ctx, &model.GetFairnessCommitmentRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Len(t, resp.ServerSeedHash, 64)

	// The hash is binding: a second commit cannot replace the seed.
	err = d.Commit(ctx, giveaway.ID)
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.AlreadyCommitted, errx.Code)
}

func Test_fairnessDomain_Reveal_BeforeClose(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestFairnessDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(time.Hour))
	testutil.SeedCommitment(ctx, giveaway.ID)

	_, err := d.Reveal(ctx, giveaway)
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.NotYetClosed, errx.Code)
}

func Test_fairnessDomain_SelectWinner(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestFairnessDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	commitment := testutil.SeedCommitment(ctx, giveaway.ID)

	testutil.SeedEntry(ctx, giveaway.ID, "alice", 1, entity.EntryPaymentCompleted, "pay_1")
	testutil.SeedEntry(ctx, giveaway.ID, "bob", 2, entity.EntryPaymentCompleted, "pay_2")
	testutil.SeedEntry(ctx, giveaway.ID, "carol", 1, entity.EntryPaymentNotRequired, "")
	testutil.SeedEntry(ctx, giveaway.ID, "dave", 3, entity.EntryPaymentPending, "pay_3")

	proof, err := d.SelectWinner(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, 0, proof.Revision)
	require.Equal(t, commitment.ServerSeed, proof.ServerSeed)
	require.Equal(t, commitment.ServerSeedHash, proof.ServerSeedHash)

	// Pending payments hold no tickets.
	require.Equal(t, int64(4), proof.TotalTickets)

	// The snapshot must be contiguous over [0, total).
	snapshot, err := d.fairnessRepo.GetSnapshot(ctx, giveaway.ID)
	require.NoError(t, err)
	var cursor int64
	for _, r := range snapshot.Ranges {
		require.Equal(t, cursor, r.Start)
		require.Greater(t, r.End, r.Start)
		cursor = r.End
	}
	require.Equal(t, snapshot.TotalTickets, cursor)

	// The winner is exactly the entry holding the derived ticket.
	entropy := combineEntropy(commitment.ServerSeed, snapshot.ContentHash, 0)
	require.Equal(t, entropy, proof.CombinedEntropy)

	entropyBytes, err := hex.DecodeString(entropy)
	require.NoError(t, err)
	derived := binary.BigEndian.Uint64(entropyBytes[:8])
	require.Equal(t, derived, proof.DerivedRandomValue)

	index := int64(derived % uint64(snapshot.TotalTickets))
	for _, r := range snapshot.Ranges {
		if index >= r.Start && index < r.End {
			require.Equal(t, r.EntryID, proof.WinnerEntryID)
			require.Equal(t, r.UserID, proof.WinnerUserID)
		}
	}

	// Re-running selection must return the recorded proof, not a new draw.
	again, err := d.SelectWinner(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, proof.ID, again.ID)
	require.Equal(t, proof.WinnerEntryID, again.WinnerEntryID)
}

func Test_fairnessDomain_SelectWinner_NoEligibleEntries(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestFairnessDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)
	testutil.SeedEntry(ctx, giveaway.ID, "dave", 3, entity.EntryPaymentPending, "pay_3")

	_, err := d.SelectWinner(ctx, giveaway.ID)
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.NoEligibleEntries, errx.Code)
}

func Test_fairnessDomain_Reselect(t *testing.T) {
	ctx := testutil.MockContext()
	d := newTestFairnessDomain()
	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayActive, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)

	testutil.SeedEntry(ctx, giveaway.ID, "alice", 1, entity.EntryPaymentCompleted, "pay_1")
	testutil.SeedEntry(ctx, giveaway.ID, "bob", 2, entity.EntryPaymentCompleted, "pay_2")
	testutil.SeedEntry(ctx, giveaway.ID, "carol", 1, entity.EntryPaymentNotRequired, "")

	original, err := d.SelectWinner(ctx, giveaway.ID)
	require.NoError(t, err)

	_, err = d.Reselect(ctx, giveaway.ID, "")
	var errx errorx.Error
	require.True(t, errors.As(err, &errx))
	require.Equal(t, errorx.BadRequest, errx.Code)

	reselected, err := d.Reselect(ctx, giveaway.ID, "winner disqualified")
	require.NoError(t, err)
	require.Equal(t, 1, reselected.Revision)
	require.Equal(t, "winner disqualified", reselected.Reason)

	// The superseded winner is excluded, so the outcome must change.
	require.NotEqual(t, original.WinnerEntryID, reselected.WinnerEntryID)

	history, err := d.GetProofHistory(ctx, &model.GetFairnessProofHistoryRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Len(t, history.Proofs, 2)
	require.True(t, history.Proofs[0].Superseded)
	require.False(t, history.Proofs[1].Superseded)

	// Both revisions stay independently verifiable.
	for revision := 0; revision <= 1; revision++ {
		resp, err := d.Verify(ctx, &model.VerifyFairnessProofRequest{
			GiveawayID: giveaway.ID,
			Revision:   revision,
		})
		require.NoError(t, err)
		require.True(t, resp.Valid)
	}
}

func Test_combineEntropy_RevisionChangesEntropy(t *testing.T) {
	seed := "0f0f0f"
	contentHash := crypto.SHA256([]byte("snapshot"))

	require.Equal(t, crypto.SHA256([]byte(seed+contentHash)), combineEntropy(seed, contentHash, 0))
	require.Equal(t, crypto.SHA256([]byte(seed+contentHash+"|1")), combineEntropy(seed, contentHash, 1))
	require.NotEqual(t, combineEntropy(seed, contentHash, 1), combineEntropy(seed, contentHash, 2))
}

func Test_pickRange(t *testing.T) {
	ranges := []entity.TicketRange{
		{EntryID: "e1", UserID: "alice", Start: 0, End: 1},
		{EntryID: "e2", UserID: "bob", Start: 1, End: 3},
		{EntryID: "e3", UserID: "carol", Start: 3, End: 4},
	}

	// Ticket 2 falls inside bob's [1, 3).
	winner, err := pickRange(ranges, 4, 2, "")
	require.NoError(t, err)
	require.Equal(t, "e2", winner.EntryID)

	// Derived values wrap modulo the ticket space.
	winner, err = pickRange(ranges, 4, 7, "")
	require.NoError(t, err)
	require.Equal(t, "e3", winner.EntryID)

	// Excluding bob shrinks the space to alice and carol.
	winner, err = pickRange(ranges, 4, 0, "e2")
	require.NoError(t, err)
	require.Equal(t, "e1", winner.EntryID)

	winner, err = pickRange(ranges, 4, 1, "e2")
	require.NoError(t, err)
	require.Equal(t, "e3", winner.EntryID)

	// A sole excluded entry leaves nothing to draw from.
	_, err = pickRange(ranges[:1], 1, 0, "e1")
	require.Error(t, err)
}

// contendedFairnessRepository lands a competing proof right before the
// caller's own insert, reproducing two closers racing on the same
// revision.
type contendedFairnessRepository struct {
	repository.FairnessRepository
	competing *entity.FairnessProof
}

func (r *contendedFairnessRepository) CreateProof(
	ctx context.Context, proof *entity.FairnessProof,
) error {
	if err := r.FairnessRepository.CreateProof(ctx, r.competing); err != nil {
		return err
	}

	return r.FairnessRepository.CreateProof(ctx, proof)
}

func Test_fairnessDomain_SelectWinner_LosesInsertRace(t *testing.T) {
	ctx := testutil.MockContext()

	giveaway := testutil.SeedGiveaway(ctx, entity.GiveawayCompleted, time.Now().Add(-time.Minute))
	testutil.SeedCommitment(ctx, giveaway.ID)
	alice := testutil.SeedEntry(ctx, giveaway.ID, "alice", 1, entity.EntryPaymentCompleted, "pay_1")

	competing := &entity.FairnessProof{
		Base:          entity.Base{ID: uuid.NewString()},
		GiveawayID:    giveaway.ID,
		Revision:      0,
		WinnerEntryID: alice.ID,
		WinnerUserID:  "alice",
		TotalTickets:  1,
		ComputedAt:    time.Now(),
	}

	d := NewFairnessDomain(
		&contendedFairnessRepository{
			FairnessRepository: repository.NewFairnessRepository(),
			competing:          competing,
		},
		repository.NewGiveawayRepository(),
		repository.NewEntryRepository(),
	)

	// The loser of the (giveaway_id, revision) insert returns the proof
	// that won instead of erroring.
	proof, err := d.SelectWinner(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Equal(t, competing.ID, proof.ID)

	history, err := d.GetProofHistory(
		ctx, &model.GetFairnessProofHistoryRequest{GiveawayID: giveaway.ID})
	require.NoError(t, err)
	require.Len(t, history.Proofs, 1)
}
