package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prizeloop/backend/internal/middleware"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/pkg/prometheus"
	"github.com/prizeloop/backend/pkg/router"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) startApi(*cli.Context) error {
	s.loadConfig()
	s.loadDatabase()
	s.migrateDB()
	s.loadRepos()
	s.loadPublisher()
	s.loadLocker()
	s.loadDomains()
	s.loadRouter()

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.configs.ApiServer.Host, s.configs.ApiServer.Port),
		Handler: s.router.Handler(),
	}

	s.logger.Infof("Starting api server on port %s", s.configs.ApiServer.Port)
	if err := s.server.ListenAndServe(); err != nil {
		panic(err)
	}

	return nil
}

func (s *srv) loadRouter() {
	s.router = router.New(s.db, *s.configs, s.logger)
	s.router.AddCloser(middleware.Logger())
	s.router.Static("/metrics", prometheus.NewHandler())

	// Public API, no authentication.
	publicRouter := s.router.Branch()
	{
		router.GET(publicRouter, "/getGiveaway", s.giveawayDomain.Get)
		router.GET(publicRouter, "/getListGiveaway", s.giveawayDomain.GetList)
		router.GET(publicRouter, "/getFairnessCommitment", s.fairnessDomain.GetCommitment)
		router.GET(publicRouter, "/getFairnessProof", s.fairnessDomain.GetProof)
		router.GET(publicRouter, "/getFairnessProofHistory", s.fairnessDomain.GetProofHistory)
		router.GET(publicRouter, "/verifyFairnessProof", s.fairnessDomain.Verify)
	}

	// The processor webhook authenticates with its signature, not a user
	// token.
	webhookRouter := s.router.Branch()
	{
		router.POST(webhookRouter, "/webhooks/payment", s.receivePaymentWebhook)
	}

	// These following APIs need authentication with Access Token.
	authVerifier := middleware.NewAuthVerifier(s.accessTokenEngine)
	authRouter := s.router.Branch()
	authRouter.Before(authVerifier.Middleware())
	{
		router.POST(authRouter, "/createGiveaway", s.giveawayDomain.Create)
		router.POST(authRouter, "/submitGiveaway", s.giveawayDomain.Submit)
		router.POST(authRouter, "/closeGiveaway", s.giveawayDomain.Close)
		router.GET(authRouter, "/getMyEntries", s.giveawayDomain.GetMyEntries)
		router.GET(authRouter, "/getPayouts", s.payoutDomain.GetPayouts)
	}

	// Admin API.
	adminVerifier := middleware.NewAuthVerifier(s.accessTokenEngine).OnlyAdmin()
	adminRouter := s.router.Branch()
	adminRouter.Before(adminVerifier.Middleware())
	{
		router.POST(adminRouter, "/approveGiveaway", s.adminDomain.Approve)
		router.POST(adminRouter, "/rejectGiveaway", s.adminDomain.Reject)
		router.POST(adminRouter, "/freezeGiveaway", s.adminDomain.Freeze)
		router.POST(adminRouter, "/forceReselect", s.adminDomain.ForceReselect)
		router.POST(adminRouter, "/refundEntry", s.adminDomain.Refund)
		router.POST(adminRouter, "/replayWebhook", s.adminDomain.ReplayWebhook)
		router.GET(adminRouter, "/getAuditLogs", s.adminDomain.GetAuditLogs)
		router.GET(adminRouter, "/getFailedWebhooks", s.webhookDomain.GetFailed)
		router.GET(adminRouter, "/getHaltedEscrows", s.adminDomain.GetHaltedEscrows)
	}
}

// receivePaymentWebhook copies the signature header into the request
// before handing it to the inbox.
func (s *srv) receivePaymentWebhook(
	ctx context.Context, req *model.ReceiveWebhookRequest,
) (*model.ReceiveWebhookResponse, error) {
	req.Signature = xcontext.HTTPRequest(ctx).Header.Get("X-Webhook-Signature")
	return s.webhookDomain.Receive(ctx, req)
}
