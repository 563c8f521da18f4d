// Package config loads the dispatch core's configuration from the
// environment, following the teacher's struct-of-structs/env-helper shape.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Dispatch DispatchConfig
	Tenant   TenantConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port           string
	Environment    string // development, staging, production
	LogLevel       string // debug, info, warn, error
	AllowedOrigins []string
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DispatchConfig holds the tunables named in spec §6. The two "default"
// minute values are used only when no zone travel-time row matches.
type DispatchConfig struct {
	DefaultGuestsPerGuide      int
	DefaultPickupMinutes       int
	DefaultDriveMinutes        int
	EfficiencyThresholdMinutes int
	AverageDriveSpeedKmh       int
	MaxAlternativesPerWarning  int
}

// TenantConfig holds the operational timezone used to normalize dates to
// a tenant-local day (spec §4.1).
type TenantConfig struct {
	OperationalTimezone string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Dispatch: DispatchConfig{
			DefaultGuestsPerGuide:      getEnvAsInt("DISPATCH_DEFAULT_GUESTS_PER_GUIDE", 6),
			DefaultPickupMinutes:       getEnvAsInt("DISPATCH_DEFAULT_PICKUP_MINUTES", 5),
			DefaultDriveMinutes:        getEnvAsInt("DISPATCH_DEFAULT_DRIVE_MINUTES", 10),
			EfficiencyThresholdMinutes: getEnvAsInt("DISPATCH_EFFICIENCY_THRESHOLD_MINUTES", 15),
			AverageDriveSpeedKmh:       getEnvAsInt("DISPATCH_AVERAGE_DRIVE_SPEED_KMH", 30),
			MaxAlternativesPerWarning:  getEnvAsInt("DISPATCH_MAX_ALTERNATIVES_PER_WARNING", 3),
		},
		Tenant: TenantConfig{
			OperationalTimezone: getEnv("TENANT_OPERATIONAL_TIMEZONE", "UTC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Dispatch.DefaultGuestsPerGuide <= 0 {
		return fmt.Errorf("DISPATCH_DEFAULT_GUESTS_PER_GUIDE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
