package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type BotConfig struct {
	WSURL         string `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	AuthToken     string `env:"AUTH_TOKEN" envDefault:""`
	TapIntervalMS int    `env:"TAP_INTERVAL_MS" envDefault:"60"`
	Requeue       bool   `env:"BOT_REQUEUE" envDefault:"true"`
}

func (c BotConfig) TapInterval() time.Duration {
	if c.TapIntervalMS <= 0 {
		return 60 * time.Millisecond
	}
	return time.Duration(c.TapIntervalMS) * time.Millisecond
}

func LoadBot() (BotConfig, error) {
	_ = godotenv.Load()
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
