package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the server reads from the environment
type Config struct {
	Port                string
	DatabaseURL         string
	DataPath            string
	JWTSecret           string
	TokenTTL            time.Duration
	AdminUsername       string
	AdminPassword       string
	AccessCode          string
	LogLevel            string
	LogFormat           string
	GinMode             string
	StrictPreconditions bool
}

// LoadEnvFile loads the first .env found in the working directory or its parents
func LoadEnvFile() {
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}
}

// Load reads the configuration from the environment (after .env) with defaults
func Load() (*Config, error) {
	cfg := read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTooling reads the configuration without requiring the server secrets,
// for command line tools that only touch the database
func LoadTooling() *Config {
	return read()
}

func read() *Config {
	LoadEnvFile()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("DATA_PATH", "plazas.db")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("STRICT_PRECONDITIONS", true)

	return &Config{
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		DataPath:            v.GetString("DATA_PATH"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		TokenTTL:            v.GetDuration("TOKEN_TTL"),
		AdminUsername:       v.GetString("ADMIN_USERNAME"),
		AdminPassword:       v.GetString("ADMIN_PASSWORD"),
		AccessCode:          v.GetString("ACCESS_CODE"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		GinMode:             v.GetString("GIN_MODE"),
		StrictPreconditions: v.GetBool("STRICT_PRECONDITIONS"),
	}
}

// Validate reports missing secrets and nonsensical values
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.AccessCode == "" {
		return errors.New("ACCESS_CODE is required")
	}
	if c.AdminPassword == "" {
		return errors.New("ADMIN_PASSWORD is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}
