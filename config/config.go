package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// TransportMode selects which transport implementation the process uses.
// It is resolved exactly once at startup and injected; nothing re-probes the
// environment per call.
type TransportMode string

const (
	ModeBridge TransportMode = "bridge"
	ModeVendor TransportMode = "vendor"
)

// S3Config holds the optional media archive settings.
type S3Config struct {
	Enabled       bool   `env:"S3_ENABLED"`
	Endpoint      string `env:"S3_ENDPOINT"`
	Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket        string `env:"S3_BUCKET"`
	AccessKey     string `env:"S3_ACCESS_KEY"`
	SecretKey     string `env:"S3_SECRET_KEY"`
	PathStyle     bool   `env:"S3_PATH_STYLE"`
	PublicURL     string `env:"S3_PUBLIC_URL"`
	RetentionDays int    `env:"S3_RETENTION_DAYS"`
}

// Config holds all configuration for the service.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`

	TransportMode   TransportMode `env:"TRANSPORT_MODE" envDefault:"bridge"`
	TransportDomain string        `env:"TRANSPORT_DOMAIN" envDefault:"s.whatsapp.net"`
	BridgeURL       string        `env:"BRIDGE_URL"`
	WebhookSecret   string        `env:"WEBHOOK_SECRET"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:crmsync.db"`

	// PublicBaseURL is this service's externally reachable URL; relative
	// attachment paths are made absolute against it before handing a file
	// URL to the bridge.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	MediaDir      string `env:"MEDIA_DIR" envDefault:"./media"`

	AgentToken   string `env:"AGENT_TOKEN"`
	ManagerToken string `env:"MANAGER_TOKEN"`

	RealtimeWebhookURL string `env:"REALTIME_WEBHOOK_URL"`
	RabbitURL          string `env:"RABBITMQ_URL"`
	RabbitQueue        string `env:"RABBITMQ_QUEUE" envDefault:"whatsapp_events"`

	ChatFetchLimit int `env:"CHAT_FETCH_LIMIT" envDefault:"500"`

	S3 S3Config
}

// Load reads configuration from the environment, loading a .env file first
// when one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.TransportMode {
	case ModeBridge:
		if cfg.BridgeURL == "" {
			return nil, fmt.Errorf("BRIDGE_URL is required in bridge mode")
		}
	case ModeVendor:
	default:
		return nil, fmt.Errorf("unknown TRANSPORT_MODE %q", cfg.TransportMode)
	}

	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET is empty; inbound webhooks will be rejected")
	}

	return cfg, nil
}
