package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/breachhunt.db"`
	GameID      string `env:"GAME_ID" envDefault:"main"`
	SeedDemo    bool   `env:"SEED_DEMO" envDefault:"true"`

	FeedDriver  string `env:"FEED_DRIVER" envDefault:"memory"`
	FeedChannel string `env:"FEED_CHANNEL" envDefault:"game_room"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	AdminPasswords     []string `env:"ADMIN_PASSWORDS" envDefault:"admin,override"`
	VolunteerPasswords []string `env:"VOLUNTEER_PASSWORDS" envDefault:"volunteer"`

	DefaultDurationMinutes int           `env:"DEFAULT_DURATION_MINUTES" envDefault:"60"`
	AlertDuration          time.Duration `env:"ALERT_DURATION" envDefault:"8s"`
	LivenessWindow         time.Duration `env:"LIVENESS_WINDOW" envDefault:"60s"`
	ResyncInterval         time.Duration `env:"RESYNC_INTERVAL" envDefault:"1m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER %q: want sqlite or memory", c.StoreDriver)
	}
	switch c.FeedDriver {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("FEED_DRIVER %q: want memory, redis or nats", c.FeedDriver)
	}
	if c.DefaultDurationMinutes < 1 {
		return fmt.Errorf("DEFAULT_DURATION_MINUTES must be at least 1, got %d", c.DefaultDurationMinutes)
	}
	if len(c.AdminPasswords) == 0 {
		return fmt.Errorf("ADMIN_PASSWORDS must not be empty")
	}
	return nil
}
