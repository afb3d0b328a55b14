package testutil

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prizeloop/backend/config"
	"github.com/prizeloop/backend/internal/entity"
	"github.com/prizeloop/backend/pkg/logger"
	"github.com/prizeloop/backend/pkg/xcontext"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MockContext returns a context backed by a fresh in-memory database
// with the full schema migrated.
func MockContext() context.Context {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// A single connection keeps every session, transactions included, on
	// the same in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	ctx = xcontext.WithDB(ctx, db)
	ctx = xcontext.WithConfigs(ctx, MockConfigs())
	ctx = xcontext.WithLogger(ctx, logger.NewLoggerWithLevel(logger.ERROR))
	ctx = xcontext.WithSnowFlake(ctx, node)

	if err := entity.MigrateTable(ctx); err != nil {
		panic(err)
	}

	return ctx
}

func MockContextWithUserID(userID string) context.Context {
	return xcontext.WithRequestUserID(MockContext(), userID)
}

func MockConfigs() config.Configs {
	return config.Configs{
		Env: "testing",
		ApiServer: config.ServerConfigs{
			Host: "localhost",
			Port: "8080",
		},
		Auth: config.AuthConfigs{
			TokenSecret: "token-secret",
			AccessToken: config.TokenConfigs{
				Name:       "access_token",
				Expiration: time.Hour,
			},
		},
		Payment: config.PaymentConfigs{
			BaseURL:       "http://localhost:9000",
			SecretKey:     "sk_test",
			WebhookSecret: "webhook-secret",
			Timeout:       10 * time.Second,
		},
		Webhook: config.WebhookConfigs{
			RetryBaseDelay: time.Minute,
			RetryMaxDelay:  time.Hour,
			MaxAttempts:    5,
		},
		Giveaway: config.GiveawayConfigs{
			PlatformFeeBps: 1000,
		},
	}
}
