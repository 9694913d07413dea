// Package config loads engine configuration from the environment and carries
// the built-in game tables (instrument list, price range). Invalid
// configuration aborts startup — the engine never runs with degraded state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentConfig describes one tradable stock in the catalog.
// Volatility and UpwardBias are declared per-stock tuning parameters
// published to clients; the round step itself is fixed (like the card
// rarity bands, they are carried as metadata, not draw weights).
type InstrumentConfig struct {
	Code       string
	Name       string
	Volatility float64
	UpwardBias float64
}

// Config holds every knob the engine consumes.
type Config struct {
	Addr        string
	DatabaseURL string // optional; in-memory accounts if empty
	RedisURL    string // optional; read-through account cache if set

	InitialAsset decimal.Decimal // starter grant credited on registration
	EntryFee     decimal.Decimal

	MaxRounds     int
	RoundInterval time.Duration
	MatchInterval time.Duration
	GraceWindow   time.Duration // disconnected session removal delay

	PriceMin decimal.Decimal
	PriceMax decimal.Decimal

	CardsPerRound int
	MaxCards      int // inventory capacity per player

	Instruments []InstrumentConfig
}

// DefaultInstruments is the built-in stock list.
var DefaultInstruments = []InstrumentConfig{
	{Code: "BRLS", Name: "Bearlys Motors", Volatility: 0.4, UpwardBias: 0.5},
	{Code: "FTMT", Name: "Flying Moutai", Volatility: 0.18, UpwardBias: 0.5},
	{Code: "MCHD", Name: "Macrohard Tech", Volatility: 0.2, UpwardBias: 0.5},
	{Code: "TSNT", Name: "Tensent Holdings", Volatility: 0.25, UpwardBias: 0.5},
	{Code: "ALMA", Name: "Ali Mama", Volatility: 0.25, UpwardBias: 0.5},
	{Code: "DGTD", Name: "Digit Dance", Volatility: 0.2, UpwardBias: 0.5},
	{Code: "BYDA", Name: "Bai Ya Di Auto", Volatility: 0.2, UpwardBias: 0.5},
	{Code: "ORNG", Name: "Orange Inc", Volatility: 0.18, UpwardBias: 0.5},
	{Code: "OSHP", Name: "Ocean Shepherd Lines", Volatility: 0.18, UpwardBias: 0.5},
}

// LoadFromEnv builds a Config from the environment with playable defaults.
// Unparseable values are configuration errors, not fallbacks — a typo in
// GAME_MAX_ROUNDS must abort startup rather than run a 30-round match.
func LoadFromEnv() (Config, error) {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" && !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	if addr == "" {
		addr = envDefault("GAME_ADDR", ":8080")
	}

	var errs []error
	envInt := func(key string, fallback int) int {
		n, err := envIntDefault(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}
	envDuration := func(key string, fallback time.Duration) time.Duration {
		d, err := envDurationDefault(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	envDecimal := func(key string, fallback decimal.Decimal) decimal.Decimal {
		d, err := envDecimalDefault(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := Config{
		Addr:          addr,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		InitialAsset:  envDecimal("GAME_INITIAL_ASSET", decimal.NewFromInt(1000)),
		EntryFee:      envDecimal("GAME_ENTRY_FEE", decimal.NewFromInt(1000)),
		MaxRounds:     envInt("GAME_MAX_ROUNDS", 30),
		RoundInterval: envDuration("GAME_ROUND_INTERVAL", 60*time.Second),
		MatchInterval: envDuration("GAME_MATCH_INTERVAL", 300*time.Second),
		GraceWindow:   envDuration("GAME_GRACE_WINDOW", 30*time.Second),
		PriceMin:      envDecimal("GAME_PRICE_MIN", decimal.NewFromInt(50)),
		PriceMax:      envDecimal("GAME_PRICE_MAX", decimal.NewFromInt(1000)),
		CardsPerRound: envInt("GAME_CARDS_PER_ROUND", 1),
		MaxCards:      envInt("GAME_MAX_CARDS", 10),
		Instruments:   DefaultInstruments,
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the match loop cannot run on.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("config: instrument list is empty")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Code == "" {
			return fmt.Errorf("config: instrument with empty code")
		}
		if seen[inst.Code] {
			return fmt.Errorf("config: duplicate instrument code %s", inst.Code)
		}
		seen[inst.Code] = true
		if inst.Volatility < 0 || inst.Volatility > 1 {
			return fmt.Errorf("config: %s: volatility %v outside [0, 1]", inst.Code, inst.Volatility)
		}
		if inst.UpwardBias < 0 || inst.UpwardBias > 1 {
			return fmt.Errorf("config: %s: upward bias %v outside [0, 1]", inst.Code, inst.UpwardBias)
		}
	}
	if !c.PriceMin.IsPositive() || c.PriceMax.LessThanOrEqual(c.PriceMin) {
		return fmt.Errorf("config: invalid price range [%s, %s]", c.PriceMin, c.PriceMax)
	}
	if !c.EntryFee.IsPositive() {
		return fmt.Errorf("config: entry fee must be positive, got %s", c.EntryFee)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("config: max rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.RoundInterval <= 0 || c.MatchInterval <= 0 {
		return fmt.Errorf("config: round/match intervals must be positive")
	}
	if c.MaxCards < 1 || c.CardsPerRound < 1 {
		return fmt.Errorf("config: card distribution settings must be positive")
	}
	return nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envIntDefault(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	return n, nil
}

func envDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q", key, v)
	}
	return d, nil
}

func envDecimalDefault(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s: invalid decimal %q", key, v)
	}
	return d, nil
}
