package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/crypto"
)

// Seed helpers insert fixtures through the real repositories so tests
// exercise the same write paths production does.

func SeedGiveaway(
	ctx context.Context, status entity.GiveawayStatusType, closesAt time.Time,
) *entity.Giveaway {
	giveaway := &entity.Giveaway{
		Base:        entity.Base{ID: uuid.NewString()},
		CreatorID:   "creator",
		Title:       "Sample giveaway",
		Status:      status,
		EntryCost:   500,
		PrizeAmount: 5000,
		MaxEntries:  100,
		ClosesAt:    closesAt,
	}

	if err := repository.NewGiveawayRepository().Create(ctx, giveaway); err != nil {
		panic(err)
	}

	return giveaway
}

func SeedEntry(
	ctx context.Context,
	giveawayID, userID string,
	ticketCount int,
	status entity.EntryPaymentStatusType,
	paymentReference string,
) *entity.Entry {
	entry := &entity.Entry{
		Base:          entity.Base{ID: uuid.NewString()},
		GiveawayID:    giveawayID,
		UserID:        userID,
		TicketCount:   ticketCount,
		PaymentStatus: status,
	}

	if paymentReference != "" {
		entry.PaymentReference = sql.NullString{String: paymentReference, Valid: true}
	}

	if err := repository.NewEntryRepository().Create(ctx, entry); err != nil {
		panic(err)
	}

	return entry
}

// SeedEscrowAccount opens an account with the full gross amount still
// available.
func SeedEscrowAccount(ctx context.Context, giveawayID string, gross int64) *entity.EscrowAccount {
	account := &entity.EscrowAccount{
		Base:            entity.Base{ID: uuid.NewString()},
		GiveawayID:      giveawayID,
		GrossCollected:  gross,
		AvailableAmount: gross,
	}

	if err := repository.NewEscrowRepository().Create(ctx, account); err != nil {
		panic(err)
	}

	return account
}

func SeedCommitment(ctx context.Context, giveawayID string) *entity.FairnessCommitment {
	seed, err := crypto.GenerateRandomSeed()
	if err != nil {
		panic(err)
	}

	commitment := &entity.FairnessCommitment{
		Base:           entity.Base{ID: uuid.NewString()},
		GiveawayID:     giveawayID,
		ServerSeed:     seed,
		ServerSeedHash: crypto.SHA256([]byte(seed)),
	}

	if err := repository.NewFairnessRepository().CreateCommitment(ctx, commitment); err != nil {
		panic(err)
	}

	return commitment
}
