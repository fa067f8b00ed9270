package testutils

import (
	"time"

	"github.com/lumenfoto/fotoaccess/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "fotoaccess test",
			URL:  "http://localhost:8080",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		RateLimit: config.RateLimitConfig{
			Store:         "memory",
			KeyPrefix:     "rate_limit",
			SweepInterval: 5 * time.Minute,
			IdleEviction:  time.Hour,
		},
		Access: config.AccessConfig{
			TokenLength:       32,
			SharePasswordCost: 4,
		},
		Audit: config.AuditConfig{
			Enabled: true,
		},
	}
}
