// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	ServiceName string
	Addr        string
	DataDir     string
	StaticDir   string

	// JWTSecret signs and verifies channel subscription tokens.
	JWTSecret string

	// CommandTimeout bounds each vendor command.
	CommandTimeout time.Duration

	// RefreshInterval paces the background status poll.
	RefreshInterval time.Duration

	// Vendors lists the providers to register at startup. The mock provider
	// is always available under "mock"; "webhook" and "mqtt" are optional.
	Vendors []string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", "access-control-service"),
		Addr:            getEnv("HTTP_ADDR", ":8099"),
		DataDir:         getEnv("DATA_DIR", "/data"),
		StaticDir:       getEnv("STATIC_DIR", "./static"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CommandTimeout:  time.Duration(getEnvAsInt("COMMAND_TIMEOUT_SECONDS", 10)) * time.Second,
		RefreshInterval: time.Duration(getEnvAsInt("STATUS_REFRESH_MINUTES", 5)) * time.Minute,
		Vendors:         splitList(getEnv("VENDORS", "mock,webhook")),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set in environment variables")
	}
	if cfg.CommandTimeout <= 0 {
		return nil, fmt.Errorf("COMMAND_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
