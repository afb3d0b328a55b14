package domain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/crypto"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type FairnessDomain interface {
	GetCommitment(context.Context, *model.GetFairnessCommitmentRequest) (*model.GetFairnessCommitmentResponse, error)
	GetProof(context.Context, *model.GetFairnessProofRequest) (*model.GetFairnessProofResponse, error)
	GetProofHistory(context.Context, *model.GetFairnessProofHistoryRequest) (*model.GetFairnessProofHistoryResponse, error)
	Verify(context.Context, *model.VerifyFairnessProofRequest) (*model.VerifyFairnessProofResponse, error)

	// Lifecycle operations, called by the giveaway and admin domains.
	Commit(ctx context.Context, giveawayID string) error
	Reveal(ctx context.Context, giveaway *entity.Giveaway) (string, error)
	BuildSnapshot(ctx context.Context, giveawayID string) (*entity.EntrySnapshot, error)
	SelectWinner(ctx context.Context, giveawayID string) (*entity.FairnessProof, error)
	Reselect(ctx context.Context, giveawayID, reason string) (*entity.FairnessProof, error)
}

type fairnessDomain struct {
	fairnessRepo repository.FairnessRepository
	giveawayRepo repository.GiveawayRepository
	entryRepo    repository.EntryRepository
}

func NewFairnessDomain(
	fairnessRepo repository.FairnessRepository,
	giveawayRepo repository.GiveawayRepository,
	entryRepo repository.EntryRepository,
) *fairnessDomain {
	return &fairnessDomain{
		fairnessRepo: fairnessRepo,
		giveawayRepo: giveawayRepo,
		entryRepo:    entryRepo,
	}
}

// Commit generates the server seed and publishes its hash. It must run
// before any entry can be counted, which the giveaway lifecycle
// guarantees by committing at approval time.
func (d *fairnessDomain) Commit(ctx context.Context, giveawayID string) error {
	_, err := d.fairnessRepo.GetCommitment(ctx, giveawayID)
	if err == nil {
		return errorx.New(errorx.AlreadyCommitted, "Giveaway %s is already committed", giveawayID)
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot get commitment: %v", err)
		return errorx.Unknown
	}

	seed, err := crypto.GenerateRandomSeed()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate server seed: %v", err)
		return errorx.Unknown
	}

	commitment := &entity.FairnessCommitment{
		Base:           entity.Base{ID: uuid.NewString()},
		GiveawayID:     giveawayID,
		ServerSeed:     seed,
		ServerSeedHash: crypto.SHA256([]byte(seed)),
	}

	if err := d.fairnessRepo.CreateCommitment(ctx, commitment); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create commitment: %v", err)
		return errorx.Unknown
	}

	return nil
}

// Reveal returns the raw server seed. The seed stays private until the
// giveaway has actually closed.
func (d *fairnessDomain) Reveal(ctx context.Context, giveaway *entity.Giveaway) (string, error) {
	if giveaway.Status != entity.GiveawayCompleted && giveaway.ClosesAt.After(time.Now()) {
		return "", errorx.New(errorx.NotYetClosed, "Giveaway %s has not closed yet", giveaway.ID)
	}

	commitment, err := d.fairnessRepo.GetCommitment(ctx, giveaway.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errorx.New(errorx.NoCommitment, "No commitment for giveaway %s", giveaway.ID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get commitment: %v", err)
		return "", errorx.Unknown
	}

	return commitment.ServerSeed, nil
}

// BuildSnapshot freezes the ordered eligible entries. Calling it again
// after the snapshot exists returns the frozen one unchanged.
func (d *fairnessDomain) BuildSnapshot(
	ctx context.Context, giveawayID string,
) (*entity.EntrySnapshot, error) {
	snapshot, err := d.fairnessRepo.GetSnapshot(ctx, giveawayID)
	if err == nil {
		return snapshot, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot get snapshot: %v", err)
		return nil, errorx.Unknown
	}

	entries, err := d.entryRepo.GetEligibleByGiveawayID(ctx, giveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get eligible entries: %v", err)
		return nil, errorx.Unknown
	}

	if len(entries) == 0 {
		return nil, errorx.New(errorx.NoEligibleEntries, "Giveaway %s has no eligible entries", giveawayID)
	}

	ranges := make(entity.Array[entity.TicketRange], 0, len(entries))
	var cursor int64
	for _, e := range entries {
		ranges = append(ranges, entity.TicketRange{
			EntryID: e.ID,
			UserID:  e.UserID,
			Start:   cursor,
			End:     cursor + int64(e.TicketCount),
		})
		cursor += int64(e.TicketCount)
	}

	snapshot = &entity.EntrySnapshot{
		Base:         entity.Base{ID: uuid.NewString()},
		GiveawayID:   giveawayID,
		TotalTickets: cursor,
		ContentHash:  hashRanges(ranges),
		Ranges:       ranges,
		TakenAt:      time.Now(),
	}

	if err := d.fairnessRepo.CreateSnapshot(ctx, snapshot); err != nil {
		// Another closer may have frozen it first.
		existing, getErr := d.fairnessRepo.GetSnapshot(ctx, giveawayID)
		if getErr == nil {
			return existing, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot create snapshot: %v", err)
		return nil, errorx.Unknown
	}

	return snapshot, nil
}

// SelectWinner derives the revision-zero proof. It is safe to call from
// racing closers: the (giveaway_id, revision) unique index lets exactly
// one insert win, and the losers return the winner's proof.
func (d *fairnessDomain) SelectWinner(
	ctx context.Context, giveawayID string,
) (*entity.FairnessProof, error) {
	if proof, err := d.fairnessRepo.GetActiveProof(ctx, giveawayID); err == nil {
		return proof, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot get active proof: %v", err)
		return nil, errorx.Unknown
	}

	giveaway, err := d.giveawayRepo.GetByID(ctx, giveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	seed, err := d.Reveal(ctx, giveaway)
	if err != nil {
		return nil, err
	}

	snapshot, err := d.BuildSnapshot(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	proof, err := d.computeProof(seed, snapshot, 0, "", "")
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot compute proof: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.fairnessRepo.CreateProof(ctx, proof); err != nil {
		// Lost the race on (giveaway_id, revision).
		existing, getErr := d.fairnessRepo.GetActiveProof(ctx, giveawayID)
		if getErr == nil {
			return existing, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot create proof: %v", err)
		return nil, errorx.Unknown
	}

	return proof, nil
}

// Reselect supersedes the active proof and derives the next revision
// over the same frozen snapshot, excluding the superseded winner so the
// outcome changes whenever more than one entry exists. The old proof
// stays in history.
func (d *fairnessDomain) Reselect(
	ctx context.Context, giveawayID, reason string,
) (*entity.FairnessProof, error) {
	if reason == "" {
		return nil, errorx.New(errorx.BadRequest, "Reselection requires a reason")
	}

	active, err := d.fairnessRepo.GetActiveProof(ctx, giveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "No winner selected for giveaway %s", giveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get active proof: %v", err)
		return nil, errorx.Unknown
	}

	snapshot, err := d.fairnessRepo.GetSnapshot(ctx, giveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get snapshot: %v", err)
		return nil, errorx.Unknown
	}

	proof, err := d.computeProof(active.ServerSeed, snapshot, active.Revision+1, active.WinnerEntryID, reason)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot compute proof: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.fairnessRepo.SupersedeProof(ctx, active.ID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot supersede proof: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.fairnessRepo.CreateProof(ctx, proof); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create proof: %v", err)
		return nil, errorx.Unknown
	}

	return proof, nil
}

func (d *fairnessDomain) GetCommitment(
	ctx context.Context, req *model.GetFairnessCommitmentRequest,
) (*model.GetFairnessCommitmentResponse, error) {
	commitment, err := d.fairnessRepo.GetCommitment(ctx, req.GiveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NoCommitment, "No commitment for giveaway %s", req.GiveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get commitment: %v", err)
		return nil, errorx.Unknown
	}

	return &model.GetFairnessCommitmentResponse{
		GiveawayID:     commitment.GiveawayID,
		ServerSeedHash: commitment.ServerSeedHash,
		CommittedAt:    commitment.CreatedAt,
	}, nil
}

func (d *fairnessDomain) GetProof(
	ctx context.Context, req *model.GetFairnessProofRequest,
) (*model.GetFairnessProofResponse, error) {
	proof, err := d.fairnessRepo.GetActiveProof(ctx, req.GiveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "No proof for giveaway %s", req.GiveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get active proof: %v", err)
		return nil, errorx.Unknown
	}

	snapshot, err := d.fairnessRepo.GetSnapshot(ctx, req.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get snapshot: %v", err)
		return nil, errorx.Unknown
	}

	return &model.GetFairnessProofResponse{
		Proof:    model.ConvertFairnessProof(proof),
		Snapshot: model.ConvertEntrySnapshot(snapshot),
	}, nil
}

func (d *fairnessDomain) GetProofHistory(
	ctx context.Context, req *model.GetFairnessProofHistoryRequest,
) (*model.GetFairnessProofHistoryResponse, error) {
	proofs, err := d.fairnessRepo.GetProofHistory(ctx, req.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get proof history: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetFairnessProofHistoryResponse{Proofs: []model.FairnessProof{}}
	for i := range proofs {
		resp.Proofs = append(resp.Proofs, model.ConvertFairnessProof(&proofs[i]))
	}

	return resp, nil
}

// Verify recomputes a persisted proof from its published inputs. Anyone
// holding the revealed seed and the snapshot can run the same check.
func (d *fairnessDomain) Verify(
	ctx context.Context, req *model.VerifyFairnessProofRequest,
) (*model.VerifyFairnessProofResponse, error) {
	proofs, err := d.fairnessRepo.GetProofHistory(ctx, req.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get proof history: %v", err)
		return nil, errorx.Unknown
	}

	var proof *entity.FairnessProof
	var excludeEntryID string
	for i := range proofs {
		if proofs[i].Revision == req.Revision {
			proof = &proofs[i]
		}

		if proofs[i].Revision == req.Revision-1 {
			excludeEntryID = proofs[i].WinnerEntryID
		}
	}

	if proof == nil {
		return nil, errorx.New(errorx.NotFound,
			"No proof revision %d for giveaway %s", req.Revision, req.GiveawayID)
	}

	snapshot, err := d.fairnessRepo.GetSnapshot(ctx, req.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get snapshot: %v", err)
		return nil, errorx.Unknown
	}

	recomputed, err := d.computeProof(
		proof.ServerSeed, snapshot, proof.Revision, excludeEntryID, proof.Reason)

	valid := err == nil &&
		crypto.SHA256([]byte(proof.ServerSeed)) == proof.ServerSeedHash &&
		recomputed.CombinedEntropy == proof.CombinedEntropy &&
		recomputed.DerivedRandomValue == proof.DerivedRandomValue &&
		recomputed.WinnerEntryID == proof.WinnerEntryID &&
		hashRanges(snapshot.Ranges) == snapshot.ContentHash

	return &model.VerifyFairnessProofResponse{
		Valid: valid,
		Proof: model.ConvertFairnessProof(proof),
	}, nil
}

// computeProof is the pure derivation at the heart of the scheme. Every
// input is either published before close (seed hash, snapshot) or
// revealed after (seed), so the result is reproducible by anyone.
func (d *fairnessDomain) computeProof(
	serverSeed string,
	snapshot *entity.EntrySnapshot,
	revision int,
	excludeEntryID string,
	reason string,
) (*entity.FairnessProof, error) {
	entropy := combineEntropy(serverSeed, snapshot.ContentHash, revision)
	entropyBytes, err := hex.DecodeString(entropy)
	if err != nil {
		return nil, err
	}

	derived := binary.BigEndian.Uint64(entropyBytes[:8])

	winner, err := pickRange(snapshot.Ranges, snapshot.TotalTickets, derived, excludeEntryID)
	if err != nil {
		return nil, err
	}

	return &entity.FairnessProof{
		Base:               entity.Base{ID: uuid.NewString()},
		GiveawayID:         snapshot.GiveawayID,
		Revision:           revision,
		ServerSeed:         serverSeed,
		ServerSeedHash:     crypto.SHA256([]byte(serverSeed)),
		CombinedEntropy:    entropy,
		DerivedRandomValue: derived,
		TotalTickets:       snapshot.TotalTickets,
		WinnerEntryID:      winner.EntryID,
		WinnerUserID:       winner.UserID,
		Reason:             reason,
		ComputedAt:         time.Now(),
	}, nil
}

// combineEntropy mixes the private seed with the public snapshot hash.
// The snapshot hash is participant-derived entropy: no single party,
// operator included, controls both halves. Reselections fold in the
// revision so each redraw gets fresh entropy from the same commitment.
func combineEntropy(serverSeed, contentHash string, revision int) string {
	data := serverSeed + contentHash
	if revision > 0 {
		data += "|" + strconv.Itoa(revision)
	}

	return crypto.SHA256([]byte(data))
}

// pickRange maps the derived value onto the ticket space. With an
// excluded entry, the value is taken modulo the remaining tickets and
// the walk skips over the excluded range.
func pickRange(
	ranges []entity.TicketRange, totalTickets int64, derived uint64, excludeEntryID string,
) (entity.TicketRange, error) {
	if excludeEntryID == "" {
		if totalTickets <= 0 {
			return entity.TicketRange{}, fmt.Errorf("empty ticket space")
		}

		index := int64(derived % uint64(totalTickets))
		i := sort.Search(len(ranges), func(i int) bool {
			return ranges[i].End > index
		})
		if i == len(ranges) {
			return entity.TicketRange{}, fmt.Errorf("ticket index %d not covered", index)
		}

		return ranges[i], nil
	}

	var effectiveTotal int64
	for _, r := range ranges {
		if r.EntryID != excludeEntryID {
			effectiveTotal += r.End - r.Start
		}
	}

	if effectiveTotal <= 0 {
		return entity.TicketRange{}, fmt.Errorf("no tickets left after exclusion")
	}

	index := int64(derived % uint64(effectiveTotal))
	var cursor int64
	for _, r := range ranges {
		if r.EntryID == excludeEntryID {
			continue
		}

		size := r.End - r.Start
		if index < cursor+size {
			return r, nil
		}
		cursor += size
	}

	return entity.TicketRange{}, fmt.Errorf("ticket index %d not covered after exclusion", index)
}

// hashRanges canonicalizes the snapshot content. Line order follows the
// frozen (created_at, id) entry order, so the hash pins both membership
// and position.
func hashRanges(ranges []entity.TicketRange) string {
	var b strings.Builder
	for _, r := range ranges {
		fmt.Fprintf(&b, "%s|%s|%d|%d\n", r.EntryID, r.UserID, r.Start, r.End)
	}

	return crypto.SHA256([]byte(b.String()))
}
