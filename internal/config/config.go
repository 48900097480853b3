package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is sourced from environment variables, optionally seeded from a
// local .env file.
type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	// Storage. DATABASE_URL wins over SQLITE_PATH; with neither set the
	// catalog lives in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`
	SeedData    bool   `envconfig:"SEED_DATA" default:"true"`

	RedisAddr              string `envconfig:"REDIS_ADDR"`
	RedisPassword          string `envconfig:"REDIS_PASSWORD"`
	RedisDB                int    `envconfig:"REDIS_DB" default:"0"`
	MetricsCacheTTLSeconds int    `envconfig:"METRICS_CACHE_TTL_SECONDS" default:"30"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	GatePassphrase        string `envconfig:"GATE_PASSPHRASE"`

	Timezone string `envconfig:"TIMEZONE" default:"Local"`
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.GatePassphrase = strings.TrimSpace(cfg.GatePassphrase)
	if cfg.MetricsCacheTTLSeconds < 1 {
		cfg.MetricsCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func (c Config) MetricsCacheTTL() time.Duration {
	return time.Duration(c.MetricsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
