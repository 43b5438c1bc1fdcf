package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything cmd/api needs, read from the environment with an
// optional .env file for local development.
type Config struct {
	Addr          string
	DSN           string
	JWTSecret     string
	TokenIssuer   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AdminEmail    string
	AdminPassword string
	CORSOrigins   []string
	RateBurst     int
	RatePerSecond int
	PruneInterval time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getEnv("AKADEMIA_ADDR", ":8080"),
		DSN:           strings.TrimSpace(os.Getenv("AKADEMIA_PG_DSN")),
		JWTSecret:     strings.TrimSpace(os.Getenv("AKADEMIA_JWT_SECRET")),
		TokenIssuer:   getEnv("AKADEMIA_TOKEN_ISSUER", "akademia"),
		AccessTTL:     getDuration("AKADEMIA_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("AKADEMIA_REFRESH_TTL", 168*time.Hour),
		AdminEmail:    strings.TrimSpace(os.Getenv("AKADEMIA_ADMIN_EMAIL")),
		AdminPassword: os.Getenv("AKADEMIA_ADMIN_PASSWORD"),
		CORSOrigins:   splitCSV(getEnv("AKADEMIA_CORS_ORIGINS", "")),
		RateBurst:     getInt("AKADEMIA_RATE_BURST", 20),
		RatePerSecond: getInt("AKADEMIA_RATE_PER_SECOND", 10),
		PruneInterval: getDuration("AKADEMIA_PRUNE_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot safely run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("AKADEMIA_JWT_SECRET is required")
	}
	if c.DSN == "" {
		return fmt.Errorf("AKADEMIA_PG_DSN is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("refresh TTL must exceed access TTL")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
