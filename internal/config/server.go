package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	JWTTTLMinutes int    `env:"JWT_TTL_MINUTES" envDefault:"1440"`

	WSSendBuffer int `env:"WS_SEND_BUFFER" envDefault:"64"`
}

func (c ServerConfig) JWTTTL() time.Duration {
	if c.JWTTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
