package model

import "github.com/prizeloop/backend/internal/entity"

func ConvertGiveaway(giveaway *entity.Giveaway) Giveaway {
	if giveaway == nil {
		return Giveaway{}
	}

	return Giveaway{
		ID:             giveaway.ID,
		CreatorID:      giveaway.CreatorID,
		Title:          giveaway.Title,
		Status:         string(giveaway.Status),
		EntryCost:      giveaway.EntryCost,
		PrizeAmount:    giveaway.PrizeAmount,
		MaxEntries:     giveaway.MaxEntries,
		CountedEntries: giveaway.CountedEntries,
		ClosesAt:       giveaway.ClosesAt,
		CreatedAt:      giveaway.CreatedAt,
	}
}

func ConvertEntry(entry *entity.Entry) Entry {
	if entry == nil {
		return Entry{}
	}

	return Entry{
		ID:            entry.ID,
		GiveawayID:    entry.GiveawayID,
		UserID:        entry.UserID,
		TicketCount:   entry.TicketCount,
		PaymentStatus: string(entry.PaymentStatus),
		CreatedAt:     entry.CreatedAt,
	}
}

func ConvertEntrySnapshot(snapshot *entity.EntrySnapshot) EntrySnapshot {
	if snapshot == nil {
		return EntrySnapshot{}
	}

	ranges := make([]TicketRange, 0, len(snapshot.Ranges))
	for _, r := range snapshot.Ranges {
		ranges = append(ranges, TicketRange{
			EntryID: r.EntryID,
			UserID:  r.UserID,
			Start:   r.Start,
			End:     r.End,
		})
	}

	return EntrySnapshot{
		GiveawayID:   snapshot.GiveawayID,
		TotalTickets: snapshot.TotalTickets,
		ContentHash:  snapshot.ContentHash,
		Ranges:       ranges,
		TakenAt:      snapshot.TakenAt,
	}
}

func ConvertFairnessProof(proof *entity.FairnessProof) FairnessProof {
	if proof == nil {
		return FairnessProof{}
	}

	return FairnessProof{
		GiveawayID:         proof.GiveawayID,
		Revision:           proof.Revision,
		ServerSeed:         proof.ServerSeed,
		ServerSeedHash:     proof.ServerSeedHash,
		CombinedEntropy:    proof.CombinedEntropy,
		DerivedRandomValue: proof.DerivedRandomValue,
		TotalTickets:       proof.TotalTickets,
		WinnerEntryID:      proof.WinnerEntryID,
		WinnerUserID:       proof.WinnerUserID,
		Superseded:         proof.Superseded,
		Reason:             proof.Reason,
		ComputedAt:         proof.ComputedAt,
	}
}

func ConvertPayout(payout *entity.Payout) Payout {
	if payout == nil {
		return Payout{}
	}

	result := Payout{
		ID:            payout.ID,
		GiveawayID:    payout.GiveawayID,
		RecipientID:   payout.RecipientID,
		Type:          string(payout.Type),
		Amount:        payout.Amount,
		Status:        string(payout.Status),
		AttemptNumber: payout.AttemptNumber,
		FailureReason: payout.FailureReason,
		CreatedAt:     payout.CreatedAt,
	}

	if payout.EntryID.Valid {
		result.EntryID = payout.EntryID.String
	}

	if payout.ExternalReference.Valid {
		result.ExternalReference = payout.ExternalReference.String
	}

	return result
}

func ConvertWebhookDelivery(delivery *entity.WebhookDelivery) WebhookDelivery {
	if delivery == nil {
		return WebhookDelivery{}
	}

	result := WebhookDelivery{
		ID:           delivery.ID,
		WebhookID:    delivery.WebhookID,
		EventType:    delivery.EventType,
		Status:       string(delivery.Status),
		AttemptCount: delivery.AttemptCount,
		LastError:    delivery.LastError,
		CreatedAt:    delivery.CreatedAt,
	}

	if delivery.NextRetryAt.Valid {
		result.NextRetryAt = delivery.NextRetryAt.Time
	}

	return result
}

func ConvertAuditLog(log *entity.AuditLog) AuditLog {
	if log == nil {
		return AuditLog{}
	}

	return AuditLog{
		ID:        log.ID,
		ActorID:   log.ActorID,
		Action:    log.Action,
		Target:    log.Target,
		OldState:  log.OldState,
		NewState:  log.NewState,
		Reason:    log.Reason,
		CreatedAt: log.CreatedAt,
	}
}

func ConvertEscrowAccount(account *entity.EscrowAccount) EscrowAccount {
	if account == nil {
		return EscrowAccount{}
	}

	return EscrowAccount{
		GiveawayID:      account.GiveawayID,
		GrossCollected:  account.GrossCollected,
		AvailableAmount: account.AvailableAmount,
		ReservedAmount:  account.ReservedAmount,
		PaidOut:         account.PaidOut,
		Halted:          account.Halted,
	}
}
