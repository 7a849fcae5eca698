package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	UserStoreFile     = "file"
	UserStorePostgres = "postgres"

	// DevTicketSecret is the built-in signing key. It is public, so it is
	// only accepted with DEV_MODE or LOG_LEVEL=debug.
	DevTicketSecret = "dev-secret-change-in-production"
)

type Config struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	DevMode   bool   `envconfig:"DEV_MODE"`

	WebRoot         string `envconfig:"WEB_ROOT" default:"./wwwroot"`
	ContentRoot     string `envconfig:"CONTENT_ROOT" default:"."`
	PuzzleAsset     string `envconfig:"PUZZLE_ASSET"`
	PuzzleAssetName string `envconfig:"PUZZLE_ASSET_NAME" default:"stag_with_all_lines.svg"`

	InactivityTimeout  time.Duration `envconfig:"SESSION_INACTIVITY_TIMEOUT" default:"45m"`
	CompletedRetention time.Duration `envconfig:"SESSION_COMPLETED_RETENTION" default:"10m"`
	SweepInterval      time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`

	UserStore    string `envconfig:"USER_STORE" default:"file"`
	UserDataFile string `envconfig:"USER_DATA_FILE" default:"./App_Data/users.json"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	TicketSecret string        `envconfig:"TICKET_SECRET" default:"dev-secret-change-in-production"`
	TicketTTL    time.Duration `envconfig:"TICKET_TTL" default:"2h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	PublicBaseURL  string   `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

// Load reads an optional .env file from the working directory, then the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.UserStore {
	case UserStoreFile:
		if c.UserDataFile == "" {
			return errors.New("USER_DATA_FILE is required for the file user store")
		}
	case UserStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres user store")
		}
	default:
		return fmt.Errorf("USER_STORE must be %q or %q, got %q", UserStoreFile, UserStorePostgres, c.UserStore)
	}
	if c.InactivityTimeout <= 0 || c.CompletedRetention <= 0 || c.SweepInterval <= 0 {
		return errors.New("session timeouts must be positive")
	}
	if c.TicketTTL <= 0 {
		return errors.New("TICKET_TTL must be positive")
	}
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	switch {
	case c.TicketSecret == "":
		return errors.New("TICKET_SECRET is required")
	case c.TicketSecret == DevTicketSecret && !c.DevMode && level > slog.LevelDebug:
		return errors.New("TICKET_SECRET must be set outside DEV_MODE")
	}
	return nil
}

// ParseLevel maps LOG_LEVEL onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
