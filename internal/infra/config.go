package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/exit"
	"repricer_go/internal/risk"
	"repricer_go/internal/strategy"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	FeedModePoll   = "poll"
	FeedModeStream = "stream"
)

// LoggingConfig selects level and rotating file target.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MarketConfig tunes the per-market state machines and the pipeline guards.
type MarketConfig struct {
	ReopenCooldown time.Duration `yaml:"reopen_cooldown"`
	MaxDataAge     time.Duration `yaml:"max_data_age"`
	HeartbeatEvery int           `yaml:"heartbeat_every"`
	ClosedHistory  int           `yaml:"closed_history"`
}

// FeedConfig describes where market books come from.
type FeedConfig struct {
	Mode         string        `yaml:"mode"`
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	MarketIDs    []string      `yaml:"market_ids"`
	PollInterval time.Duration `yaml:"poll_interval"`
	AppKey       string        `yaml:"app_key"`
	SessionToken string        `yaml:"session_token"`
	InboxSize    int           `yaml:"inbox_size"`
}

// Config holds every setting of the application.
// After LoadConfig reads the file, secrets are overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging  LoggingConfig            `yaml:"logging"`
	Market   MarketConfig             `yaml:"market"`
	Risk     risk.Config              `yaml:"risk"`
	Exit     exit.Config              `yaml:"exit"`
	Strategy strategy.TopOfBookConfig `yaml:"strategy"`
	Feed     FeedConfig               `yaml:"feed"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// DefaultConfig returns a complete configuration with no feed.
// LoadConfig starts from it, so a file only needs the values it changes.
func DefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", File: "logs/app.log"},
		Market: MarketConfig{
			ReopenCooldown: 2 * time.Second,
			MaxDataAge:     5 * time.Second,
			HeartbeatEvery: 10,
			ClosedHistory:  50,
		},
		Risk:     risk.DefaultConfig(),
		Exit:     exit.DefaultConfig(),
		Strategy: strategy.DefaultTopOfBookConfig(),
		Feed: FeedConfig{
			PollInterval: time.Second,
			InboxSize:    1024,
		},
	}
	cfg.App.Name = "repricer"
	cfg.App.Version = "dev"
	cfg.Storage.Path = "data/journal.db"
	return cfg
}

// LoadConfig reads and parses the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return configErr("logging.level", "unknown level %q", c.Logging.Level)
	}

	if c.Market.ReopenCooldown < 0 {
		return configErr("market.reopen_cooldown", "must not be negative")
	}
	if c.Market.MaxDataAge <= 0 {
		return configErr("market.max_data_age", "must be positive")
	}
	if c.Market.HeartbeatEvery < 0 {
		return configErr("market.heartbeat_every", "must not be negative")
	}

	if err := positive("risk.max_abs_pos_per_selection", c.Risk.MaxAbsPosPerSelection); err != nil {
		return err
	}
	if err := positive("risk.max_abs_pos_per_market", c.Risk.MaxAbsPosPerMarket); err != nil {
		return err
	}
	if err := positive("risk.max_order_size", c.Risk.MaxOrderSize); err != nil {
		return err
	}
	if err := positive("exit.take_profit_delta", c.Exit.TakeProfitDelta); err != nil {
		return err
	}
	if err := positive("exit.stop_loss_delta", c.Exit.StopLossDelta); err != nil {
		return err
	}
	if err := positive("strategy.stake_size", c.Strategy.StakeSize); err != nil {
		return err
	}
	if err := positive("strategy.max_spread", c.Strategy.MaxSpread); err != nil {
		return err
	}

	return c.Feed.validate()
}

func (f FeedConfig) validate() error {
	switch f.Mode {
	case "":
		return nil
	case FeedModePoll:
		if !strings.HasPrefix(f.RestURL, "http://") && !strings.HasPrefix(f.RestURL, "https://") {
			return configErr("feed.rest_url", "invalid REST URL: %s", f.RestURL)
		}
		if f.PollInterval <= 0 {
			return configErr("feed.poll_interval", "must be positive")
		}
	case FeedModeStream:
		if !strings.HasPrefix(f.WSURL, "ws://") && !strings.HasPrefix(f.WSURL, "wss://") {
			return configErr("feed.ws_url", "invalid WS URL: %s", f.WSURL)
		}
	default:
		return configErr("feed.mode", "must be %q or %q, got %q", FeedModePoll, FeedModeStream, f.Mode)
	}
	if len(f.MarketIDs) == 0 {
		return configErr("feed.market_ids", "at least one market id is required")
	}
	if f.InboxSize <= 0 {
		return configErr("feed.inbox_size", "must be positive")
	}
	return nil
}

func positive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return configErr(field, "must be positive, got %s", v.String())
	}
	return nil
}

func configErr(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// overrideWithEnv replaces values with environment variables when they are set.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("REPRICER_BETFAIR_APP_KEY"); key != "" {
		cfg.Feed.AppKey = key
	}
	if session := os.Getenv("REPRICER_BETFAIR_SESSION"); session != "" {
		cfg.Feed.SessionToken = session
	}
	if level := os.Getenv("REPRICER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
