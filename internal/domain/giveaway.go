package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/common"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/enum"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/pubsub"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type GiveawayDomain interface {
	Create(context.Context, *model.CreateGiveawayRequest) (*model.CreateGiveawayResponse, error)
	Submit(context.Context, *model.SubmitGiveawayRequest) (*model.SubmitGiveawayResponse, error)
	Get(context.Context, *model.GetGiveawayRequest) (*model.GetGiveawayResponse, error)
	GetList(context.Context, *model.GetListGiveawayRequest) (*model.GetListGiveawayResponse, error)
	GetMyEntries(context.Context, *model.GetMyEntriesRequest) (*model.GetMyEntriesResponse, error)
	Close(context.Context, *model.CloseGiveawayRequest) (*model.CloseGiveawayResponse, error)
}

type giveawayDomain struct {
	giveawayRepo   repository.GiveawayRepository
	entryRepo      repository.EntryRepository
	escrowRepo     repository.EscrowRepository
	fairnessDomain FairnessDomain
	payoutDomain   PayoutDomain
	publisher      pubsub.Publisher
}

func NewGiveawayDomain(
	giveawayRepo repository.GiveawayRepository,
	entryRepo repository.EntryRepository,
	escrowRepo repository.EscrowRepository,
	fairnessDomain FairnessDomain,
	payoutDomain PayoutDomain,
	publisher pubsub.Publisher,
) *giveawayDomain {
	return &giveawayDomain{
		giveawayRepo:   giveawayRepo,
		entryRepo:      entryRepo,
		escrowRepo:     escrowRepo,
		fairnessDomain: fairnessDomain,
		payoutDomain:   payoutDomain,
		publisher:      publisher,
	}
}

func (d *giveawayDomain) Create(
	ctx context.Context, req *model.CreateGiveawayRequest,
) (*model.CreateGiveawayResponse, error) {
	if req.Title == "" {
		return nil, errorx.New(errorx.BadRequest, "Not allow an empty title")
	}

	if req.EntryCost < 0 {
		return nil, errorx.New(errorx.BadRequest, "Not allow a negative entry cost")
	}

	if req.PrizeAmount <= 0 {
		return nil, errorx.New(errorx.BadRequest, "Not allow a non-positive prize amount")
	}

	if req.MaxEntries <= 0 {
		return nil, errorx.New(errorx.BadRequest, "Not allow a non-positive max entries")
	}

	if !req.ClosesAt.After(time.Now()) {
		return nil, errorx.New(errorx.BadRequest, "Closing time must be in the future")
	}

	giveaway := &entity.Giveaway{
		Base:        entity.Base{ID: uuid.NewString()},
		CreatorID:   xcontext.RequestUserID(ctx),
		Title:       req.Title,
		Status:      entity.GiveawayDraft,
		EntryCost:   req.EntryCost,
		PrizeAmount: req.PrizeAmount,
		MaxEntries:  req.MaxEntries,
		ClosesAt:    req.ClosesAt,
	}

	if err := d.giveawayRepo.Create(ctx, giveaway); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create giveaway: %v", err)
		return nil, errorx.Unknown
	}

	return &model.CreateGiveawayResponse{ID: giveaway.ID}, nil
}

func (d *giveawayDomain) Submit(
	ctx context.Context, req *model.SubmitGiveawayRequest,
) (*model.SubmitGiveawayResponse, error) {
	giveaway, err := d.giveawayRepo.GetByID(ctx, req.GiveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found giveaway %s", req.GiveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	if giveaway.CreatorID != xcontext.RequestUserID(ctx) {
		return nil, errorx.New(errorx.PermissionDenied, "Only the creator can submit a giveaway")
	}

	err = d.giveawayRepo.TransitStatus(
		ctx, giveaway.ID, entity.GiveawayDraft, entity.GiveawayPendingApproval)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest,
				"Giveaway is %s, only drafts can be submitted", giveaway.Status)
		}

		xcontext.Logger(ctx).Errorf("Cannot transit giveaway status: %v", err)
		return nil, errorx.Unknown
	}

	return &model.SubmitGiveawayResponse{}, nil
}

func (d *giveawayDomain) Get(
	ctx context.Context, req *model.GetGiveawayRequest,
) (*model.GetGiveawayResponse, error) {
	giveaway, err := d.giveawayRepo.GetByID(ctx, req.GiveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found giveaway %s", req.GiveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	return &model.GetGiveawayResponse{Giveaway: model.ConvertGiveaway(giveaway)}, nil
}

func (d *giveawayDomain) GetList(
	ctx context.Context, req *model.GetListGiveawayRequest,
) (*model.GetListGiveawayResponse, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		return nil, errorx.New(errorx.BadRequest, "Exceed the maximum limit of 100")
	}

	filter := repository.GetListGiveawayFilter{
		Offset: req.Offset,
		Limit:  req.Limit,
	}

	if req.Status != "" {
		status, err := enum.ToEnum[entity.GiveawayStatusType](req.Status)
		if err != nil {
			return nil, errorx.New(errorx.BadRequest, "Invalid status %s", req.Status)
		}
		filter.Status = status
	}

	giveaways, err := d.giveawayRepo.GetList(ctx, filter)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get giveaways: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetListGiveawayResponse{Giveaways: []model.Giveaway{}}
	for i := range giveaways {
		resp.Giveaways = append(resp.Giveaways, model.ConvertGiveaway(&giveaways[i]))
	}

	return resp, nil
}

func (d *giveawayDomain) GetMyEntries(
	ctx context.Context, req *model.GetMyEntriesRequest,
) (*model.GetMyEntriesResponse, error) {
	entries, err := d.entryRepo.GetByUserID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get entries: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetMyEntriesResponse{Entries: []model.Entry{}}
	for i := range entries {
		resp.Entries = append(resp.Entries, model.ConvertEntry(&entries[i]))
	}

	return resp, nil
}

// Close runs the draw and kicks off the payouts. It is safe to call from
// the cron and a racing operator at once: the active->completed
// transition picks one closer, and the loser returns the winner's proof.
func (d *giveawayDomain) Close(
	ctx context.Context, req *model.CloseGiveawayRequest,
) (*model.CloseGiveawayResponse, error) {
	started := time.Now()

	giveaway, err := d.giveawayRepo.GetByID(ctx, req.GiveawayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found giveaway %s", req.GiveawayID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get giveaway: %v", err)
		return nil, errorx.Unknown
	}

	if giveaway.Status == entity.GiveawayCompleted {
		return d.completedResponse(ctx, giveaway.ID)
	}

	if giveaway.Status != entity.GiveawayActive {
		return nil, errorx.New(errorx.BadRequest,
			"Giveaway is %s, only active giveaways can be closed", giveaway.Status)
	}

	if giveaway.ClosesAt.After(time.Now()) {
		return nil, errorx.New(errorx.NotYetClosed, "Giveaway %s has not reached its closing time", giveaway.ID)
	}

	err = d.giveawayRepo.TransitStatus(
		ctx, giveaway.ID, entity.GiveawayActive, entity.GiveawayCompleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Another closer won the transition.
			return d.completedResponse(ctx, giveaway.ID)
		}

		xcontext.Logger(ctx).Errorf("Cannot transit giveaway status: %v", err)
		return nil, errorx.Unknown
	}
	giveaway.Status = entity.GiveawayCompleted

	proof, err := d.fairnessDomain.SelectWinner(ctx, giveaway.ID)
	if err != nil {
		common.DrawLatencyHistogram.WithLabelValues("error").
			Observe(time.Since(started).Seconds())

		var xerr errorx.Error
		if errors.As(err, &xerr) && xerr.Code == errorx.NoEligibleEntries {
			// The giveaway still completes; there is just nobody to pay.
			d.publishEvent(ctx, common.EventGiveawayClosed, giveaway.ID, "")
		}

		return nil, err
	}

	common.DrawLatencyHistogram.WithLabelValues("ok").Observe(time.Since(started).Seconds())
	d.publishEvent(ctx, common.EventWinnerSelected, giveaway.ID, proof.WinnerUserID)

	d.initiatePayouts(ctx, giveaway, proof)
	d.publishEvent(ctx, common.EventGiveawayClosed, giveaway.ID, "")

	return &model.CloseGiveawayResponse{Proof: model.ConvertFairnessProof(proof)}, nil
}

// initiatePayouts starts the winner prize and the creator revenue
// transfers. Failures here are not fatal to the close: each payout has
// its own state machine and the admin gateway can retry.
func (d *giveawayDomain) initiatePayouts(
	ctx context.Context, giveaway *entity.Giveaway, proof *entity.FairnessProof,
) {
	_, err := d.payoutDomain.Initiate(ctx, giveaway, proof.WinnerUserID,
		entity.PayoutWinnerPrize, giveaway.PrizeAmount, sql.NullString{})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot initiate prize payout for giveaway %s: %v",
			giveaway.ID, err)
	}

	revenue, err := d.creatorRevenue(ctx, giveaway)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot compute creator revenue for giveaway %s: %v",
			giveaway.ID, err)
		return
	}

	if revenue <= 0 {
		return
	}

	_, err = d.payoutDomain.Initiate(ctx, giveaway, giveaway.CreatorID,
		entity.PayoutCreatorRevenue, revenue, sql.NullString{})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot initiate creator revenue payout for giveaway %s: %v",
			giveaway.ID, err)
	}
}

// creatorRevenue is what remains of gross collections after the prize
// and the platform fee, floored at zero.
func (d *giveawayDomain) creatorRevenue(
	ctx context.Context, giveaway *entity.Giveaway,
) (int64, error) {
	account, err := d.escrowRepo.GetByGiveawayID(ctx, giveaway.ID)
	if err != nil {
		return 0, err
	}

	fee := account.GrossCollected * xcontext.Configs(ctx).Giveaway.PlatformFeeBps / 10000
	revenue := account.GrossCollected - giveaway.PrizeAmount - fee
	if revenue < 0 {
		return 0, nil
	}

	return revenue, nil
}

func (d *giveawayDomain) completedResponse(
	ctx context.Context, giveawayID string,
) (*model.CloseGiveawayResponse, error) {
	proof, err := d.fairnessDomain.SelectWinner(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	return &model.CloseGiveawayResponse{Proof: model.ConvertFairnessProof(proof)}, nil
}

func (d *giveawayDomain) publishEvent(ctx context.Context, eventType, giveawayID, userID string) {
	b, err := json.Marshal(common.GiveawayEvent{
		Type:       eventType,
		GiveawayID: giveawayID,
		UserID:     userID,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot marshal event: %v", err)
		return
	}

	err = d.publisher.Publish(ctx, common.TopicGiveawayEvents,
		&pubsub.Pack{Key: []byte(giveawayID), Msg: b})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot publish %s event: %v", eventType, err)
	}
}
