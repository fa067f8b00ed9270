package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"FOTO_APP_"`
	Server    ServerConfig    `envPrefix:"FOTO_SERVER_"`
	Log       LogConfig       `envPrefix:"FOTO_LOG_"`
	Database  DatabaseConfig  `envPrefix:"FOTO_DATABASE_"`
	Redis     RedisConfig     `envPrefix:"FOTO_REDIS_"`
	RateLimit RateLimitConfig `envPrefix:"FOTO_RATELIMIT_"`
	Access    AccessConfig    `envPrefix:"FOTO_ACCESS_"`
	Audit     AuditConfig     `envPrefix:"FOTO_AUDIT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"fotoaccess"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"fotoaccess.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

type RateLimitConfig struct {
	Store         string        `env:"STORE" envDefault:"memory"`
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"rate_limit"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	IdleEviction  time.Duration `env:"IDLE_EVICTION" envDefault:"1h"`
	ProfilesFile  string        `env:"PROFILES_FILE" envDefault:""`
}

type AccessConfig struct {
	TokenLength       int `env:"TOKEN_LENGTH" envDefault:"32"`
	SharePasswordCost int `env:"SHARE_PASSWORD_COST" envDefault:"10"`
}

type AuditConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
