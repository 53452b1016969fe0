package config

import "github.com/caarlos0/env/v11"

// TestConfig points database-backed tests at a scratch Postgres. Tests skip
// when TEST_POSTGRES_DSN is unset.
type TestConfig struct {
	PostgresDSN   string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
	MigrationsDir string `env:"TEST_MIGRATIONS_DIR"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}
