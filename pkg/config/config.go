package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB
	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`
	// Cache (empty = disabled)
	RedisURL string `envconfig:"REDIS_URL" default:""`

	// JWT
	JWTSecret        string `envconfig:"JWT_SECRET" required:"true"`
	JWTRefreshSecret string `envconfig:"JWT_REFRESH_SECRET" default:""`
	JWTExpireMin     int    `envconfig:"JWT_EXPIRE_MIN" default:"60"`
	RefreshExpireHr  int    `envconfig:"REFRESH_EXPIRE_HR" default:"720"`

	// Payment gateway
	GatewayPublicKey   string        `envconfig:"GATEWAY_PUBLIC_KEY" default:""`
	GatewaySecretKey   string        `envconfig:"GATEWAY_SECRET_KEY" required:"true"`
	GatewayCurrency    string        `envconfig:"GATEWAY_CURRENCY" default:"THB"`
	GatewaySourceType  string        `envconfig:"GATEWAY_SOURCE_TYPE" default:"promptpay"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	GatewayMaxAttempts int           `envconfig:"GATEWAY_MAX_ATTEMPTS" default:"1"`

	// Pricing
	ReferralDiscountPercent int `envconfig:"REFERRAL_DISCOUNT_PERCENT" default:"10"`
	ReferralRewardPoints    int `envconfig:"REFERRAL_REWARD_POINTS" default:"100"`
	SlotDurationMin         int `envconfig:"SLOT_DURATION_MIN" default:"30"`

	// RabbitMQ (empty = events disabled)
	RabbitURL       string `envconfig:"RABBIT_URL" default:""`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	PaymentExchange string `envconfig:"PAYMENT_EXCHANGE" default:"payment.exchange"`

	// Network
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Observability
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	Env          string `envconfig:"ENV" default:"dev"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text"`
}

func (c App) AccessTTL() time.Duration  { return time.Duration(c.JWTExpireMin) * time.Minute }
func (c App) RefreshTTL() time.Duration { return time.Duration(c.RefreshExpireHr) * time.Hour }

// RefreshSecret falls back to the access secret when no dedicated one is set.
func (c App) RefreshSecret() string {
	if c.JWTRefreshSecret != "" {
		return c.JWTRefreshSecret
	}
	return c.JWTSecret
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
