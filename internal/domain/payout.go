package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/client"
	"github.com/prizeloop/backend/internal/common"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/crypto"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type PayoutDomain interface {
	GetPayouts(context.Context, *model.GetPayoutsRequest) (*model.GetPayoutsResponse, error)

	// Initiate and Refund are called by the giveaway lifecycle and the
	// admin gateway.
	Initiate(ctx context.Context, giveaway *entity.Giveaway, recipientID string,
		payoutType entity.PayoutType, amount int64, entryID sql.NullString) (*entity.Payout, error)
	Refund(ctx context.Context, entryID, reason string) (*entity.Payout, error)
}

type payoutDomain struct {
	payoutRepo    repository.PayoutRepository
	escrowRepo    repository.EscrowRepository
	entryRepo     repository.EntryRepository
	giveawayRepo  repository.GiveawayRepository
	paymentCaller client.PaymentCaller
}

func NewPayoutDomain(
	payoutRepo repository.PayoutRepository,
	escrowRepo repository.EscrowRepository,
	entryRepo repository.EntryRepository,
	giveawayRepo repository.GiveawayRepository,
	paymentCaller client.PaymentCaller,
) *payoutDomain {
	return &payoutDomain{
		payoutRepo:    payoutRepo,
		escrowRepo:    escrowRepo,
		entryRepo:     entryRepo,
		giveawayRepo:  giveawayRepo,
		paymentCaller: paymentCaller,
	}
}

func (d *payoutDomain) GetPayouts(
	ctx context.Context, req *model.GetPayoutsRequest,
) (*model.GetPayoutsResponse, error) {
	payouts, err := d.payoutRepo.GetByGiveawayID(ctx, req.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get payouts: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetPayoutsResponse{Payouts: []model.Payout{}}
	for i := range payouts {
		resp.Payouts = append(resp.Payouts, model.ConvertPayout(&payouts[i]))
	}

	return resp, nil
}

// Initiate drives a payout from nothing to processing. It never reaches
// succeeded here: only a confirmed webhook can do that. An ambiguous
// processor outcome (timeout, 5xx) deliberately leaves the payout in
// processing so a blind retry cannot double-pay. A payout a crash left
// pending provably never reached the processor, so it is resumed under
// its original idempotency key.
func (d *payoutDomain) Initiate(
	ctx context.Context,
	giveaway *entity.Giveaway,
	recipientID string,
	payoutType entity.PayoutType,
	amount int64,
	entryID sql.NullString,
) (*entity.Payout, error) {
	if amount <= 0 {
		return nil, errorx.New(errorx.BadRequest, "Invalid payout amount %d", amount)
	}

	attempt, err := d.nextAttempt(ctx, giveaway.ID, recipientID, payoutType)
	if err != nil {
		return nil, err
	}

	key := payoutIdempotencyKey(giveaway.ID, recipientID, payoutType, attempt)
	if existing, err := d.payoutRepo.GetByIdempotencyKey(ctx, key); err == nil {
		if existing.Status != entity.PayoutPending {
			// A previous initiation already owns this attempt.
			return existing, nil
		}

		return d.dispatch(ctx, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot get payout by idempotency key: %v", err)
		return nil, errorx.Unknown
	}

	payout := &entity.Payout{
		Base:           entity.Base{ID: uuid.NewString()},
		GiveawayID:     giveaway.ID,
		RecipientID:    recipientID,
		EntryID:        entryID,
		Type:           payoutType,
		Amount:         amount,
		Status:         entity.PayoutPending,
		IdempotencyKey: key,
		AttemptNumber:  attempt,
	}

	if err := d.payoutRepo.Create(ctx, payout); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create payout: %v", err)
		return nil, errorx.Unknown
	}

	return d.dispatch(ctx, payout)
}

// dispatch takes a pending payout through reservation and the processor
// call. On a resumed payout the reservation may already be held; it is
// reused rather than reserved twice.
func (d *payoutDomain) dispatch(ctx context.Context, payout *entity.Payout) (*entity.Payout, error) {
	reservation, err := d.escrowRepo.GetReservationByPayoutID(ctx, payout.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			xcontext.Logger(ctx).Errorf("Cannot get reservation: %v", err)
			return nil, errorx.Unknown
		}

		reservation = &entity.EscrowReservation{
			Base:       entity.Base{ID: uuid.NewString()},
			GiveawayID: payout.GiveawayID,
			PayoutID:   payout.ID,
			Amount:     payout.Amount,
		}

		if err := d.escrowRepo.Reserve(ctx, reservation); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				xcontext.Logger(ctx).Errorf("Cannot reserve escrow funds: %v", err)
				return nil, errorx.Unknown
			}

			reason, cause := d.explainRefusedReservation(ctx, payout)
			return nil, d.rejectPayout(ctx, payout, entity.PayoutPending, reason, cause)
		}
	}

	if err := d.payoutRepo.TransitStatus(
		ctx, payout.ID, entity.PayoutPending, entity.PayoutProcessing); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot transit payout to processing: %v", err)
		return nil, errorx.Unknown
	}
	payout.Status = entity.PayoutProcessing

	result, err := d.callProcessor(ctx, payout)
	if err != nil {
		if errors.Is(err, client.ErrAmbiguousOutcome) {
			// Unknown outcome. The reservation stays held and the webhook
			// inbox or an operator resolves it.
			xcontext.Logger(ctx).Warnf(
				"Ambiguous processor outcome for payout %s, awaiting webhook", payout.ID)
			return payout, nil
		}

		var rejection *client.RejectionError
		if errors.As(err, &rejection) {
			if settleErr := d.escrowRepo.SettleFailed(ctx, reservation.ID); settleErr != nil {
				xcontext.Logger(ctx).Errorf("Cannot release reservation: %v", settleErr)
				return nil, errorx.Unknown
			}

			auditEscrow(ctx, d.escrowRepo, payout.GiveawayID)
			return nil, d.rejectPayout(ctx, payout, entity.PayoutProcessing, rejection.Message,
				errorx.New(errorx.PayoutRejected, "Payout rejected by processor: %s", rejection.Message))
		}

		xcontext.Logger(ctx).Errorf("Cannot call payment processor: %v", err)
		return nil, errorx.Unknown
	}

	ref := sql.NullString{String: result.Reference, Valid: result.Reference != ""}
	if err := d.payoutRepo.SetExternalReference(ctx, payout.ID, ref); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot set external reference: %v", err)
		return nil, errorx.Unknown
	}
	payout.ExternalReference = ref

	return payout, nil
}

// explainRefusedReservation distinguishes why the guarded reserve moved
// no rows: a halted account refuses all movement, otherwise the balance
// was short.
func (d *payoutDomain) explainRefusedReservation(
	ctx context.Context, payout *entity.Payout,
) (string, error) {
	account, err := d.escrowRepo.GetByGiveawayID(ctx, payout.GiveawayID)
	if err == nil && account.Halted {
		return "escrow account halted", errorx.New(errorx.EscrowHalted,
			"Escrow account for giveaway %s is halted", payout.GiveawayID)
	}

	return "insufficient escrow funds", errorx.New(errorx.InsufficientFunds,
		"Insufficient escrow funds for payout of %d", payout.Amount)
}

// Refund compensates a completed entry payment. The entry only flips to
// refunded after the processor confirms, so a crash mid-flight can be
// retried without losing the claim.
func (d *payoutDomain) Refund(ctx context.Context, entryID, reason string) (*entity.Payout, error) {
	entry, err := d.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found entry %s", entryID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get entry: %v", err)
		return nil, errorx.Unknown
	}

	if entry.PaymentStatus != entity.EntryPaymentCompleted {
		return nil, errorx.New(errorx.BadRequest,
			"Entry %s payment is %s, only completed payments can be refunded",
			entryID, entry.PaymentStatus)
	}

	giveaway, err := d.giveawayRepo.GetByID(ctx, entry.GiveawayID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	amount := giveaway.EntryCost * int64(entry.TicketCount)
	return d.Initiate(ctx, giveaway, entry.UserID, entity.PayoutRefund, amount,
		sql.NullString{String: entry.ID, Valid: true})
}

func (d *payoutDomain) callProcessor(
	ctx context.Context, payout *entity.Payout,
) (*client.TransferResult, error) {
	if payout.Type == entity.PayoutRefund {
		entry, err := d.entryRepo.GetByID(ctx, payout.EntryID.String)
		if err != nil {
			return nil, err
		}

		return d.paymentCaller.CreateRefund(ctx, &client.RefundRequest{
			IdempotencyKey:   payout.IdempotencyKey,
			PaymentReference: entry.PaymentReference.String,
			Amount:           payout.Amount,
			Reason:           "requested_by_platform",
		})
	}

	return d.paymentCaller.CreateTransfer(ctx, &client.TransferRequest{
		IdempotencyKey: payout.IdempotencyKey,
		Destination:    payout.RecipientID,
		Amount:         payout.Amount,
		Currency:       "usd",
		Description:    fmt.Sprintf("%s for giveaway %s", payout.Type, payout.GiveawayID),
	})
}

// nextAttempt returns the attempt number for a fresh initiation. A
// failed attempt gets the next number (and with it a fresh idempotency
// key); any live attempt is reused as-is.
func (d *payoutDomain) nextAttempt(
	ctx context.Context, giveawayID, recipientID string, payoutType entity.PayoutType,
) (int, error) {
	max, err := d.payoutRepo.GetMaxAttempt(ctx, giveawayID, recipientID, payoutType)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get max payout attempt: %v", err)
		return 0, errorx.Unknown
	}

	if max == 0 {
		return 1, nil
	}

	key := payoutIdempotencyKey(giveawayID, recipientID, payoutType, max)
	latest, err := d.payoutRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get latest payout attempt: %v", err)
		return 0, errorx.Unknown
	}

	if latest.Status == entity.PayoutFailed {
		return max + 1, nil
	}

	return max, nil
}

func (d *payoutDomain) rejectPayout(
	ctx context.Context, payout *entity.Payout,
	from entity.PayoutStatusType, reason string, cause error,
) error {
	if err := d.payoutRepo.TransitStatus(ctx, payout.ID, from, entity.PayoutFailed); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot transit payout to failed: %v", err)
		return errorx.Unknown
	}

	if err := d.payoutRepo.SetFailureReason(ctx, payout.ID, reason); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot set failure reason: %v", err)
		return errorx.Unknown
	}

	common.PayoutOutcomeCounter.
		WithLabelValues(string(payout.Type), string(entity.PayoutFailed)).Inc()

	return cause
}

// auditEscrow re-checks the conservation invariant after a settlement
// and freezes the account on any violation. A halted account refuses
// all movement until an operator intervenes.
func auditEscrow(ctx context.Context, escrowRepo repository.EscrowRepository, giveawayID string) {
	err := escrowRepo.CheckConsistency(ctx, giveawayID)
	if err == nil {
		return
	}

	if errors.Is(err, gorm.ErrInvalidData) {
		xcontext.Logger(ctx).Errorf("Escrow invariant violated for giveaway %s, halting", giveawayID)
		if haltErr := escrowRepo.Halt(ctx, giveawayID); haltErr != nil {
			xcontext.Logger(ctx).Errorf("Cannot halt escrow account: %v", haltErr)
		}

		common.EscrowHaltCounter.WithLabelValues(giveawayID).Inc()
		return
	}

	xcontext.Logger(ctx).Errorf("Cannot check escrow consistency: %v", err)
}

func payoutIdempotencyKey(
	giveawayID, recipientID string, payoutType entity.PayoutType, attempt int,
) string {
	return crypto.SHA256([]byte(
		fmt.Sprintf("%s|%s|%s|%d", giveawayID, recipientID, payoutType, attempt)))
}
