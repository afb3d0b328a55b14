package main

import (
	"github.com/prizeloop/backend/internal/domain/cron"
	"github.com/urfave/cli/v2"
)

func (s *srv) startCron(*cli.Context) error {
	s.loadConfig()
	s.loadDatabase()
	s.loadRepos()
	s.loadPublisher()
	s.loadLocker()
	s.loadDomains()

	cronJobManager := cron.NewCronJobManager()
	cronJobManager.Register(cron.NewWebhookRetryCronJob(s.webhookRepo, s.webhookDomain, s.locker))
	cronJobManager.Register(cron.NewGiveawayCloseCronJob(s.giveawayRepo, s.giveawayDomain, s.locker))

	s.logger.Infof("Starting cron jobs")
	cronJobManager.Start(s.ctx)

	return nil
}
