package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds environment-driven settings for a trading session.
type Config struct {
	Port string

	// Ingestion
	TickerFile          string
	TickerPollInterval  time.Duration
	SymbolOverridesFile string

	// Watchlist
	SubscriptionCapacity int
	MaxBatches           int
	RotationInterval     time.Duration

	// Trading rules
	DropThresholdPercent decimal.Decimal
	CapitalPerPosition   decimal.Decimal
	BuyDiscountPercent   decimal.Decimal
	SellMarkupPercent    decimal.Decimal
	TriggerTickFields    []string

	// End of day
	CancellationDeadline string
	MarketCloseDeadline  string
	MarketTimezone       string

	// Venue pacing
	SubscribeRatePerSec float64
	SubscribeBurst      int

	// Paper venue
	Paper PaperConfig

	// Journal
	DBPath        string
	EnableJournal bool

	// API auth
	JWTSecret string

	StrictInvariants bool

	LogLevel  string
	LogFormat string
}

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	Account      string
	NextOrderID  int64
	TickInterval time.Duration
	StepPercent  float64
	DriftPercent float64
	FillLot      int64
	Seed         int64
	Holdings     []Holding
}

// Holding is a carried position given as SYMBOL:QTY:AVG_COST.
type Holding struct {
	Symbol      string
	Position    decimal.Decimal
	AverageCost decimal.Decimal
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	holdings, err := parseHoldings(getEnv("PAPER_HOLDINGS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		TickerFile:           getEnv("TICKER_FILE", "./data/tickers.txt"),
		TickerPollInterval:   getEnvDuration("TICKER_POLL_INTERVAL", 5*time.Second),
		SymbolOverridesFile:  getEnv("SYMBOL_OVERRIDES_FILE", "./symbols.yaml"),
		SubscriptionCapacity: getEnvInt("SUBSCRIPTION_CAPACITY", 90),
		MaxBatches:           getEnvInt("MAX_BATCHES", 0),
		RotationInterval:     getEnvDuration("ROTATION_INTERVAL", 30*time.Second),
		DropThresholdPercent: getEnvDecimal("DROP_THRESHOLD_PERCENT", decimal.NewFromInt(13)),
		CapitalPerPosition:   getEnvDecimal("CAPITAL_PER_POSITION", decimal.NewFromInt(1000)),
		BuyDiscountPercent:   getEnvDecimal("BUY_DISCOUNT_PERCENT", decimal.Zero),
		SellMarkupPercent:    getEnvDecimal("SELL_MARKUP_PERCENT", decimal.NewFromInt(3)),
		TriggerTickFields:    splitAndTrim(getEnv("TRIGGER_TICK_FIELDS", "low")),
		CancellationDeadline: getEnv("CANCELLATION_DEADLINE", "15:40"),
		MarketCloseDeadline:  getEnv("MARKET_CLOSE_DEADLINE", "15:41"),
		MarketTimezone:       getEnv("MARKET_TIMEZONE", "America/New_York"),
		SubscribeRatePerSec:  getEnvFloat("SUBSCRIBE_RATE_PER_SEC", 45),
		SubscribeBurst:       getEnvInt("SUBSCRIBE_BURST", 5),
		Paper: PaperConfig{
			Account:      getEnv("PAPER_ACCOUNT", "PAPER"),
			NextOrderID:  int64(getEnvInt("PAPER_NEXT_ORDER_ID", 1)),
			TickInterval: getEnvDuration("PAPER_TICK_INTERVAL", time.Second),
			StepPercent:  getEnvFloat("PAPER_STEP_PERCENT", 0.5),
			DriftPercent: getEnvFloat("PAPER_DRIFT_PERCENT", -0.1),
			FillLot:      int64(getEnvInt("PAPER_FILL_LOT", 0)),
			Seed:         int64(getEnvInt("PAPER_SEED", 0)),
			Holdings:     holdings,
		},
		DBPath:           getEnv("DB_PATH", "./data/journal.db"),
		EnableJournal:    getEnv("ENABLE_JOURNAL", "true") == "true",
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		StrictInvariants: getEnv("STRICT_INVARIANTS", "false") == "true",
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SubscriptionCapacity <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_CAPACITY must be positive"))
	}
	if !c.DropThresholdPercent.IsPositive() {
		errs = append(errs, errors.New("DROP_THRESHOLD_PERCENT must be positive"))
	}
	if !c.CapitalPerPosition.IsPositive() {
		errs = append(errs, errors.New("CAPITAL_PER_POSITION must be positive"))
	}
	if len(c.TriggerTickFields) == 0 {
		errs = append(errs, errors.New("TRIGGER_TICK_FIELDS must name at least one field"))
	}
	cancelAt, err1 := minuteOfDay(c.CancellationDeadline)
	closeAt, err2 := minuteOfDay(c.MarketCloseDeadline)
	switch {
	case err1 != nil:
		errs = append(errs, fmt.Errorf("CANCELLATION_DEADLINE: %w", err1))
	case err2 != nil:
		errs = append(errs, fmt.Errorf("MARKET_CLOSE_DEADLINE: %w", err2))
	case cancelAt >= closeAt:
		errs = append(errs, errors.New("CANCELLATION_DEADLINE must be before MARKET_CLOSE_DEADLINE"))
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		errs = append(errs, fmt.Errorf("MARKET_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// Location resolves MarketTimezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func minuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseHoldings(val string) ([]Holding, error) {
	var out []Holding
	for _, item := range splitAndTrim(val) {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("PAPER_HOLDINGS entry %q: want SYMBOL:QTY:AVG_COST", item)
		}
		qty, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("PAPER_HOLDINGS entry %q: %w", item, err)
		}
		cost, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("PAPER_HOLDINGS entry %q: %w", item, err)
		}
		out = append(out, Holding{Symbol: strings.ToUpper(parts[0]), Position: qty, AverageCost: cost})
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
