package repository

import (
	"context"

	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type EscrowRepository interface {
	Create(ctx context.Context, account *entity.EscrowAccount) error
	GetByGiveawayID(ctx context.Context, giveawayID string) (*entity.EscrowAccount, error)
	GetHalted(ctx context.Context) ([]entity.EscrowAccount, error)

	Credit(ctx context.Context, giveawayID string, amount int64) error
	Reserve(ctx context.Context, reservation *entity.EscrowReservation) error
	SettleSucceeded(ctx context.Context, reservationID string) error
	SettleFailed(ctx context.Context, reservationID string) error

	GetReservation(ctx context.Context, id string) (*entity.EscrowReservation, error)
	GetReservationByPayoutID(ctx context.Context, payoutID string) (*entity.EscrowReservation, error)

	Halt(ctx context.Context, giveawayID string) error
	CheckConsistency(ctx context.Context, giveawayID string) error
}

type escrowRepository struct{}

func NewEscrowRepository() *escrowRepository {
	return &escrowRepository{}
}

func (r *escrowRepository) Create(ctx context.Context, account *entity.EscrowAccount) error {
	return xcontext.DB(ctx).Create(account).Error
}

func (r *escrowRepository) GetByGiveawayID(
	ctx context.Context, giveawayID string,
) (*entity.EscrowAccount, error) {
	var result entity.EscrowAccount
	if err := xcontext.DB(ctx).Take(&result, "giveaway_id=?", giveawayID).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *escrowRepository) GetHalted(ctx context.Context) ([]entity.EscrowAccount, error) {
	var result []entity.EscrowAccount
	if err := xcontext.DB(ctx).Find(&result, "halted=?", true).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// Credit records one confirmed entry payment. It is only called from the
// webhook path, so unconfirmed checkouts never inflate the balance.
func (r *escrowRepository) Credit(ctx context.Context, giveawayID string, amount int64) error {
	tx := xcontext.DB(ctx).Model(&entity.EscrowAccount{}).
		Where("giveaway_id=? AND halted=?", giveawayID, false).
		Updates(map[string]any{
			"gross_collected":  gorm.Expr("gross_collected+?", amount),
			"available_amount": gorm.Expr("available_amount+?", amount),
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// Reserve atomically checks and moves available funds to reserved, then
// records the reservation. Two concurrent reservations against the same
// balance cannot both pass the guarded update.
func (r *escrowRepository) Reserve(ctx context.Context, reservation *entity.EscrowReservation) error {
	tx := xcontext.DB(ctx).Model(&entity.EscrowAccount{}).
		Where("giveaway_id=? AND halted=? AND available_amount >= ?",
			reservation.GiveawayID, false, reservation.Amount).
		Updates(map[string]any{
			"available_amount": gorm.Expr("available_amount-?", reservation.Amount),
			"reserved_amount":  gorm.Expr("reserved_amount+?", reservation.Amount),
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	reservation.Status = entity.ReservationHeld
	return xcontext.DB(ctx).Create(reservation).Error
}

// SettleSucceeded removes captured funds from the system. The reservation
// transition guards against settling twice.
func (r *escrowRepository) SettleSucceeded(ctx context.Context, reservationID string) error {
	reservation, err := r.transitReservation(ctx, reservationID, entity.ReservationCaptured)
	if err != nil {
		return err
	}

	return xcontext.DB(ctx).Model(&entity.EscrowAccount{}).
		Where("giveaway_id=?", reservation.GiveawayID).
		Updates(map[string]any{
			"reserved_amount": gorm.Expr("reserved_amount-?", reservation.Amount),
			"paid_out":        gorm.Expr("paid_out+?", reservation.Amount),
		}).Error
}

// SettleFailed returns held funds to the available balance.
func (r *escrowRepository) SettleFailed(ctx context.Context, reservationID string) error {
	reservation, err := r.transitReservation(ctx, reservationID, entity.ReservationReleased)
	if err != nil {
		return err
	}

	return xcontext.DB(ctx).Model(&entity.EscrowAccount{}).
		Where("giveaway_id=?", reservation.GiveawayID).
		Updates(map[string]any{
			"reserved_amount":  gorm.Expr("reserved_amount-?", reservation.Amount),
			"available_amount": gorm.Expr("available_amount+?", reservation.Amount),
		}).Error
}

func (r *escrowRepository) transitReservation(
	ctx context.Context, reservationID string, to entity.ReservationStatusType,
) (*entity.EscrowReservation, error) {
	reservation, err := r.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	tx := xcontext.DB(ctx).Model(&entity.EscrowReservation{}).
		Where("id=? AND status=?", reservationID, entity.ReservationHeld).
		Update("status", to)
	if tx.Error != nil {
		return nil, tx.Error
	}

	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return reservation, nil
}

func (r *escrowRepository) GetReservation(
	ctx context.Context, id string,
) (*entity.EscrowReservation, error) {
	var result entity.EscrowReservation
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *escrowRepository) GetReservationByPayoutID(
	ctx context.Context, payoutID string,
) (*entity.EscrowReservation, error) {
	var result entity.EscrowReservation
	if err := xcontext.DB(ctx).Take(&result, "payout_id=?", payoutID).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *escrowRepository) Halt(ctx context.Context, giveawayID string) error {
	return xcontext.DB(ctx).Model(&entity.EscrowAccount{}).
		Where("giveaway_id=?", giveawayID).
		Update("halted", true).Error
}

// CheckConsistency verifies the conservation invariant. It returns
// gorm.ErrInvalidData when the books do not balance.
func (r *escrowRepository) CheckConsistency(ctx context.Context, giveawayID string) error {
	account, err := r.GetByGiveawayID(ctx, giveawayID)
	if err != nil {
		return err
	}

	if account.AvailableAmount < 0 || account.ReservedAmount < 0 {
		return gorm.ErrInvalidData
	}

	if account.AvailableAmount+account.ReservedAmount+account.PaidOut != account.GrossCollected {
		return gorm.ErrInvalidData
	}

	return nil
}
