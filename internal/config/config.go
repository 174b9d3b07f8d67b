package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	StorePath   string   `mapstructure:"STORE_PATH"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	SessionKey  string   `mapstructure:"SESSION_KEY"`
	SessionTTL  string   `mapstructure:"SESSION_TTL"`
	Timezone    string   `mapstructure:"TIMEZONE"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	SentryDSN   string   `mapstructure:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_PATH", "clinicdesk.json")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("STORE_PATH")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SESSION_KEY")
	v.BindEnv("SESSION_TTL")
	v.BindEnv("TIMEZONE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SENTRY_DSN")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SessionTTLDuration parses SESSION_TTL, falling back to 24h on a malformed value.
func (c *Config) SessionTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Location resolves TIMEZONE to a *time.Location. "Local" (the default) keeps
// the host zone, which is what maps a stored wall-clock appointment time onto
// the calendar day the user booked.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. In production a
// SESSION_KEY must be provided so that session tokens survive restarts and
// cannot be forged against a guessable key.
func (c *Config) Validate() error {
	if c.IsProduction() && c.SessionKey == "" {
		return fmt.Errorf("SESSION_KEY is required in production")
	}
	if c.SessionTTL != "" {
		if _, err := time.ParseDuration(c.SessionTTL); err != nil {
			return fmt.Errorf("SESSION_TTL is not a valid duration: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DatabaseURL != "" {
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.DBMinConns)
		}
	}
	return nil
}
