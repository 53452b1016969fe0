package config

import "github.com/caarlos0/env/v11"

// PushConfig controls outbound race result webhooks.
type PushConfig struct {
	Enabled        bool   `env:"PUSH_ENABLED" envDefault:"false"`
	ConfigJSON     string `env:"PUSH_CONFIG_JSON"`
	ConfigPath     string `env:"PUSH_CONFIG_PATH"`
	ConfigReloadMS int    `env:"PUSH_CONFIG_RELOAD_MS" envDefault:"1000"`
	Workers        int    `env:"PUSH_WORKERS" envDefault:"2"`
	RetryMax       int    `env:"PUSH_RETRY_MAX" envDefault:"3"`
	RetryBaseMS    int    `env:"PUSH_RETRY_BASE_MS" envDefault:"500"`
	TimeoutMS      int    `env:"PUSH_TIMEOUT_MS" envDefault:"5000"`
}

func LoadPush() (PushConfig, error) {
	var cfg PushConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
