// Package config loads runtime settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/system-tactics/internal/hexgrid"
)

// Config holds every runtime setting.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Levels    LevelsConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Addr         string
	AdminKey     string   // Bearer token for mutating endpoints. Empty = mutations disabled.
	CORSOrigins  []string // Extra allowed origins; localhost dev servers are always allowed
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Driver string // sqlite or postgres; empty (DB_DRIVER=none) disables the store
	DSN    string
}

type LevelsConfig struct {
	Dir         string
	Orientation hexgrid.Orientation
	CellRadius  float64
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json, or auto (text on a terminal)
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	orientation, err := hexgrid.ParseOrientation(envOrDefault("HEX_ORIENTATION", "pointy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         envOrDefault("TACTICS_ADDR", ":8080"),
			AdminKey:     os.Getenv("TACTICS_ADMIN_KEY"),
			CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
			ReadTimeout:  time.Duration(envIntOrDefault("SERVER_READ_TIMEOUT_SECONDS", 15)) * time.Second,
			WriteTimeout: time.Duration(envIntOrDefault("SERVER_WRITE_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Storage: StorageConfig{
			Driver: storageDriver(envOrDefault("DB_DRIVER", "sqlite")),
			DSN:    envOrDefault("DB_DSN", "data/levels.db"),
		},
		Levels: LevelsConfig{
			Dir:         envOrDefault("LEVELS_DIR", "assets/levels"),
			Orientation: orientation,
			CellRadius:  envFloatOrDefault("CELL_RADIUS", 1.0),
		},
		Logging: LoggingConfig{
			Level:  envOrDefault("LOG_LEVEL", "info"),
			Format: envOrDefault("LOG_FORMAT", "auto"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           envOrDefault("RATE_LIMIT_ENABLED", "true") == "true",
			RequestsPerSecond: envFloatOrDefault("RATE_LIMIT_RPS", 5),
			Burst:             envIntOrDefault("RATE_LIMIT_BURST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later and further away.
func (c *Config) Validate() error {
	if c.Levels.CellRadius <= 0 {
		return fmt.Errorf("CELL_RADIUS must be positive, got %v", c.Levels.CellRadius)
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be auto, text, or json, got %q", c.Logging.Format)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate limit needs positive RATE_LIMIT_RPS and RATE_LIMIT_BURST")
	}
	return nil
}

// Layout is the hex layout every consumer in this process must share.
func (c *Config) Layout() hexgrid.Layout {
	return hexgrid.Layout{Orientation: c.Levels.Orientation, CellRadius: c.Levels.CellRadius}
}

// storageDriver maps DB_DRIVER=none to the empty driver, which disables the store.
func storageDriver(v string) string {
	if strings.EqualFold(v, "none") {
		return ""
	}
	return v
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
