package main

import "github.com/urfave/cli/v2"

func (s *srv) loadApp() {
	app := cli.NewApp()
	app.Action = cli.ShowAppHelp
	app.Name = "Prizeloop"
	app.Usage = ""
	app.Commands = []*cli.Command{
		{
			Action:      server.startApi,
			Name:        "api",
			Usage:       "Start the api service",
			Category:    "Api",
			Description: `The main service, included all public and admin apis.`,
		},
		{
			Action:      server.startCron,
			Name:        "cron",
			Usage:       "Start the cron service",
			Category:    "Worker",
			Description: `The worker that closes overdue giveaways and retries webhook deliveries.`,
		},
		{
			Action:      server.startMigrate,
			Name:        "migrate",
			Usage:       "Apply database migrations",
			Category:    "Database",
			Description: `Applies the embedded SQL migrations to the configured database.`,
		},
	}

	s.app = app
}
