package entity

import (
	"context"

	"github.com/prizeloop/backend/pkg/xcontext"
)

func MigrateTable(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&Giveaway{},
		&Entry{},
		&FairnessCommitment{},
		&EntrySnapshot{},
		&FairnessProof{},
		&EscrowAccount{},
		&EscrowReservation{},
		&Payout{},
		&WebhookDelivery{},
		&AuditLog{},
	)
}
