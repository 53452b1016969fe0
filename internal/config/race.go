package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type RaceConfig struct {
	CountdownMS        int `env:"RACE_COUNTDOWN_MS" envDefault:"3000"`
	JoinTimeoutMS      int `env:"RACE_JOIN_TIMEOUT_MS" envDefault:"30000"`
	QueueMatchSize     int `env:"RACE_QUEUE_MATCH_SIZE" envDefault:"2"`
	DefaultRating      int `env:"RACE_DEFAULT_RATING" envDefault:"1200"`
	PersistRetryMax    int `env:"RACE_PERSIST_RETRY_MAX" envDefault:"5"`
	PersistRetryBaseMS int `env:"RACE_PERSIST_RETRY_BASE_MS" envDefault:"200"`
}

func (c RaceConfig) Countdown() time.Duration {
	return time.Duration(c.CountdownMS) * time.Millisecond
}

func (c RaceConfig) JoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMS) * time.Millisecond
}

func (c RaceConfig) PersistRetryBase() time.Duration {
	return time.Duration(c.PersistRetryBaseMS) * time.Millisecond
}

func LoadRace() (RaceConfig, error) {
	var cfg RaceConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.QueueMatchSize < 2 {
		cfg.QueueMatchSize = 2
	}
	if cfg.QueueMatchSize > 8 {
		cfg.QueueMatchSize = 8
	}
	return cfg, nil
}
