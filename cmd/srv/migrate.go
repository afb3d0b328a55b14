package main

import (
	"github.com/prizeloop/backend/internal/repository"
	"github.com/urfave/cli/v2"
)

func (s *srv) startMigrate(*cli.Context) error {
	s.loadConfig()
	s.loadDatabase()
	s.migrateDB()

	return nil
}

func (s *srv) migrateDB() {
	sqlDB, err := s.db.DB()
	if err != nil {
		panic(err)
	}

	if err := repository.DoSqlMigration(sqlDB); err != nil {
		panic(err)
	}

	s.logger.Infof("Database migration completed")
}
