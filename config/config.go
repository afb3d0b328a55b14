package config

import (
	"fmt"
	"time"
)

type Configs struct {
	Env string

	Database  DatabaseConfigs
	ApiServer ServerConfigs
	Auth      AuthConfigs
	Kafka     KafkaConfigs
	Redis     RedisConfigs
	Payment   PaymentConfigs
	Webhook   WebhookConfigs
	Giveaway  GiveawayConfigs
}

type DatabaseConfigs struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func (d *DatabaseConfigs) ConnectionString() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

type ServerConfigs struct {
	Host      string
	Port      string
	AllowCORS []string
}

type AuthConfigs struct {
	TokenSecret string
	AccessToken TokenConfigs
}

type TokenConfigs struct {
	Name       string
	Expiration time.Duration
}

type KafkaConfigs struct {
	Addr string
}

type RedisConfigs struct {
	Addr string
}

// PaymentConfigs describes the external payment processor connection. It
// is usually loaded from a TOML file so secrets stay out of the process
// environment.
type PaymentConfigs struct {
	BaseURL       string        `toml:"base_url"`
	SecretKey     string        `toml:"secret_key"`
	WebhookSecret string        `toml:"webhook_secret"`
	Timeout       time.Duration `toml:"timeout"`
}

type WebhookConfigs struct {
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxAttempts    int
}

type GiveawayConfigs struct {
	// PlatformFeeBps is the platform's cut of gross collections, in basis
	// points. The creator revenue payout is computed from the remainder
	// after the prize amount and this fee.
	PlatformFeeBps int64
}
