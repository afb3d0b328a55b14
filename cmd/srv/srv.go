package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prizeloop/backend/config"
	"github.com/prizeloop/backend/internal/client"
	"github.com/prizeloop/backend/internal/domain"
	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/internal/repository"
	"github.com/prizeloop/backend/pkg/authenticator"
	"github.com/prizeloop/backend/pkg/kafka"
	"github.com/prizeloop/backend/pkg/logger"
	"github.com/prizeloop/backend/pkg/pubsub"
	"github.com/prizeloop/backend/pkg/router"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/prizeloop/backend/pkg/xredis"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type srv struct {
	app *cli.App
	ctx context.Context

	configs *config.Configs
	logger  logger.Logger
	db      *gorm.DB

	publisher         pubsub.Publisher
	locker            xredis.Locker
	paymentCaller     client.PaymentCaller
	accessTokenEngine authenticator.TokenEngine[model.AccessToken]

	giveawayRepo repository.GiveawayRepository
	entryRepo    repository.EntryRepository
	fairnessRepo repository.FairnessRepository
	escrowRepo   repository.EscrowRepository
	payoutRepo   repository.PayoutRepository
	webhookRepo  repository.WebhookRepository
	auditLogRepo repository.AuditLogRepository

	fairnessDomain domain.FairnessDomain
	payoutDomain   domain.PayoutDomain
	webhookDomain  domain.WebhookDomain
	giveawayDomain domain.GiveawayDomain
	adminDomain    domain.AdminDomain

	router *router.Router
	server *http.Server
}

func (s *srv) loadConfig() {
	s.configs = &config.Configs{
		Env: getEnv("ENV", "local"),
		Database: config.DatabaseConfigs{
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Database: getEnv("MYSQL_DATABASE", "prizeloop"),
			User:     getEnv("MYSQL_USER", "prizeloop"),
			Password: getEnv("MYSQL_PASSWORD", "secret"),
		},
		ApiServer: config.ServerConfigs{
			Host:      getEnv("HOST", "localhost"),
			Port:      getEnv("PORT", "8080"),
			AllowCORS: strings.Fields(getEnv("ALLOW_CORS", "")),
		},
		Auth: config.AuthConfigs{
			TokenSecret: getEnv("TOKEN_SECRET", "token-secret"),
			AccessToken: config.TokenConfigs{
				Name:       "access_token",
				Expiration: getDuration("ACCESS_TOKEN_DURATION", "24h"),
			},
		},
		Kafka: config.KafkaConfigs{
			Addr: getEnv("KAFKA_ADDRESS", "localhost:9092"),
		},
		Redis: config.RedisConfigs{
			Addr: getEnv("REDIS_ADDRESS", ""),
		},
		Payment: config.PaymentConfigs{
			BaseURL:       getEnv("PAYMENT_BASE_URL", "http://localhost:9000"),
			SecretKey:     getEnv("PAYMENT_SECRET_KEY", ""),
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Timeout:       getDuration("PAYMENT_TIMEOUT", "15s"),
		},
		Webhook: config.WebhookConfigs{
			RetryBaseDelay: getDuration("WEBHOOK_RETRY_BASE_DELAY", "1m"),
			RetryMaxDelay:  getDuration("WEBHOOK_RETRY_MAX_DELAY", "1h"),
			MaxAttempts:    getInt("WEBHOOK_MAX_ATTEMPTS", 8),
		},
		Giveaway: config.GiveawayConfigs{
			PlatformFeeBps: int64(getInt("PLATFORM_FEE_BPS", 1000)),
		},
	}

	// A TOML file overrides the payment environment variables, so the
	// processor secrets can live outside the process environment.
	if path := os.Getenv("PAYMENT_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &s.configs.Payment); err != nil {
			panic(err)
		}
	}

	s.logger = logger.NewLogger()
	s.ctx = context.Background()
	s.ctx = xcontext.WithConfigs(s.ctx, *s.configs)
	s.ctx = xcontext.WithLogger(s.ctx, s.logger)
}

func (s *srv) newDatabase() *gorm.DB {
	db, err := gorm.Open(mysql.Open(s.configs.Database.ConnectionString()), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	return db
}

func (s *srv) loadDatabase() {
	s.db = s.newDatabase()
	s.ctx = xcontext.WithDB(s.ctx, s.db)
}

func (s *srv) loadRepos() {
	s.giveawayRepo = repository.NewGiveawayRepository()
	s.entryRepo = repository.NewEntryRepository()
	s.fairnessRepo = repository.NewFairnessRepository()
	s.escrowRepo = repository.NewEscrowRepository()
	s.payoutRepo = repository.NewPayoutRepository()
	s.webhookRepo = repository.NewWebhookRepository()
	s.auditLogRepo = repository.NewAuditLogRepository()
}

func (s *srv) loadPublisher() {
	s.publisher = kafka.NewPublisher("prizeloop", []string{s.configs.Kafka.Addr})
}

func (s *srv) loadLocker() {
	if s.configs.Redis.Addr == "" {
		s.locker = xredis.NoopLocker{}
		return
	}

	s.locker = xredis.NewLocker(xredis.NewClient(s.configs.Redis.Addr), "prizeloop:")
}

func (s *srv) loadDomains() {
	s.paymentCaller = client.NewPaymentCaller(s.configs.Payment)
	s.accessTokenEngine = authenticator.NewTokenEngine[model.AccessToken](
		s.configs.Auth.TokenSecret, s.configs.Auth.AccessToken.Expiration)

	s.fairnessDomain = domain.NewFairnessDomain(s.fairnessRepo, s.giveawayRepo, s.entryRepo)
	s.payoutDomain = domain.NewPayoutDomain(
		s.payoutRepo, s.escrowRepo, s.entryRepo, s.giveawayRepo, s.paymentCaller)
	s.webhookDomain = domain.NewWebhookDomain(
		s.webhookRepo, s.entryRepo, s.escrowRepo, s.payoutRepo, s.giveawayRepo, s.publisher)
	s.giveawayDomain = domain.NewGiveawayDomain(
		s.giveawayRepo, s.entryRepo, s.escrowRepo, s.fairnessDomain, s.payoutDomain, s.publisher)
	s.adminDomain = domain.NewAdminDomain(
		s.giveawayRepo, s.escrowRepo, s.auditLogRepo,
		s.fairnessDomain, s.payoutDomain, s.webhookDomain)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		panic(err)
	}

	return d
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		panic(err)
	}

	return n
}
