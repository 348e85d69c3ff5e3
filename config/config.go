// Package config loads bot settings from YAML, an optional .env file and
// environment variables. Secrets are expected to come from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pibot/decision"
	"pibot/market"
	"pibot/trader"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// Config is the full process configuration.
type Config struct {
	Mode     string   `yaml:"mode"`
	Pair     string   `yaml:"pair"`
	Log      Log      `yaml:"log"`
	Exchange Exchange `yaml:"exchange"`
	Trading  Trading  `yaml:"trading"`
	Paper    Paper    `yaml:"paper"`
	Telegram Telegram `yaml:"telegram"`
	API      API      `yaml:"api"`
	Journal  Journal  `yaml:"journal"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Exchange holds Binance spot connectivity settings.
type Exchange struct {
	APIKey            string        `yaml:"api_key"`
	SecretKey         string        `yaml:"secret_key"`
	Testnet           bool          `yaml:"testnet"`
	BaseURL           string        `yaml:"base_url"`
	QuantityPrecision int           `yaml:"quantity_precision"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Trading holds the runtime parameters and loop cadence.
type Trading struct {
	OrderSizeFraction   float64       `yaml:"order_size_fraction"`
	ProfitThreshold     float64       `yaml:"profit_threshold"`
	StopLossThreshold   float64       `yaml:"stop_loss_threshold"`
	VolatilityThreshold float64       `yaml:"volatility_threshold"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	Cooldown            time.Duration `yaml:"cooldown"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier"`
	MinNotional         float64       `yaml:"min_notional"`
	KlineInterval       string        `yaml:"kline_interval"`
	KlineLimit          int           `yaml:"kline_limit"`
	Seed                int64         `yaml:"seed"` // 0 = time based
}

// Paper configures the simulated account used in paper mode.
type Paper struct {
	Balances map[string]float64 `yaml:"balances"`
	FeeRate  float64            `yaml:"fee_rate"`
}

type Telegram struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// API configures the operator HTTP surface.
type API struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	JWTSecret    string        `yaml:"jwt_secret"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	TOTPSecret   string        `yaml:"totp_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type Journal struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	params := trader.DefaultParams()
	return &Config{
		Mode: ModePaper,
		Pair: "PI/USDT",
		Log:  Log{Level: "info"},
		Exchange: Exchange{
			QuantityPrecision: 2,
			Timeout:           10 * time.Second,
		},
		Trading: Trading{
			OrderSizeFraction:   params.OrderSizeFraction,
			ProfitThreshold:     params.ProfitThreshold,
			StopLossThreshold:   params.StopLossThreshold,
			VolatilityThreshold: 0.02,
			PollInterval:        trader.DefaultPollInterval,
			Cooldown:            trader.DefaultCooldown,
			BackoffMultiplier:   trader.DefaultBackoffMultiplier,
			MinNotional:         trader.DefaultMinNotional,
			KlineInterval:       trader.DefaultKlineInterval,
			KlineLimit:          trader.DefaultKlineLimit,
		},
		Paper: Paper{
			Balances: map[string]float64{"USDT": 1000},
			FeeRate:  0.001,
		},
		API: API{
			Addr:     ":8080",
			TokenTTL: 12 * time.Hour,
		},
		Journal: Journal{Path: "data/journal.db"},
	}
}

// Load reads path (optional, may be empty), then .env, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"BINANCE_API_KEY":    &c.Exchange.APIKey,
		"BINANCE_SECRET_KEY": &c.Exchange.SecretKey,
		"TELEGRAM_TOKEN":     &c.Telegram.Token,
		"API_JWT_SECRET":     &c.API.JWTSecret,
		"API_PASSWORD_HASH":  &c.API.PasswordHash,
		"API_TOTP_SECRET":    &c.API.TOTPSecret,
		"BOT_MODE":           &c.Mode,
		"BOT_PAIR":           &c.Pair,
	}
	for key, dst := range strVars {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		c.Telegram.ChatID = id
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID != 0 {
		c.Telegram.Enabled = true
	}
	return nil
}

// Validate checks the settings the engine cannot run without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLive, ModePaper:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLive, ModePaper, c.Mode))
	}
	if _, err := market.ParsePair(c.Pair); err != nil {
		errs = append(errs, err)
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Trading.PollInterval <= 0 {
		errs = append(errs, errors.New("trading.poll_interval must be positive"))
	}
	if c.Trading.Cooldown < 0 {
		errs = append(errs, errors.New("trading.cooldown must not be negative"))
	}
	if c.Trading.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("trading.backoff_multiplier must be >= 1"))
	}
	if c.Trading.KlineInterval == "" {
		errs = append(errs, errors.New("trading.kline_interval is required"))
	}
	if c.Trading.KlineLimit > 0 && c.Trading.KlineLimit < decision.MinKlines {
		errs = append(errs, fmt.Errorf("trading.kline_limit must be at least %d, got %d", decision.MinKlines, c.Trading.KlineLimit))
	}
	if c.Mode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		errs = append(errs, errors.New("live mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY"))
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("telegram requires token and chat_id"))
	}
	if c.API.Enabled && (c.API.JWTSecret == "" || c.API.PasswordHash == "") {
		errs = append(errs, errors.New("api requires jwt_secret and password_hash"))
	}
	return errors.Join(errs...)
}

// TradingPair parses the configured pair.
func (c *Config) TradingPair() market.Pair {
	pair, _ := market.ParsePair(c.Pair)
	return pair
}

// Params returns the initial trading parameters.
func (c *Config) Params() trader.Params {
	return trader.Params{
		OrderSizeFraction: c.Trading.OrderSizeFraction,
		ProfitThreshold:   c.Trading.ProfitThreshold,
		StopLossThreshold: c.Trading.StopLossThreshold,
	}
}

// EngineOptions maps the trading section onto engine options.
func (c *Config) EngineOptions() trader.Options {
	return trader.Options{
		Pair:              c.TradingPair(),
		KlineInterval:     c.Trading.KlineInterval,
		KlineLimit:        c.Trading.KlineLimit,
		PollInterval:      c.Trading.PollInterval,
		Cooldown:          c.Trading.Cooldown,
		BackoffMultiplier: c.Trading.BackoffMultiplier,
		MinNotional:       c.Trading.MinNotional,
	}
}

// BinanceOptions maps the exchange section onto client options.
func (c *Config) BinanceOptions() market.BinanceOptions {
	return market.BinanceOptions{
		APIKey:            c.Exchange.APIKey,
		SecretKey:         c.Exchange.SecretKey,
		Testnet:           c.Exchange.Testnet,
		BaseURL:           c.Exchange.BaseURL,
		QuantityPrecision: c.Exchange.QuantityPrecision,
		Timeout:           c.Exchange.Timeout,
	}
}
