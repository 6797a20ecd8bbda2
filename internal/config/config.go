package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"coinchart/internal/domain"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// ErrAdminKeyRequired is returned by CheckSecrets outside development.
var ErrAdminKeyRequired = errors.New("ADMIN_API_KEY is required outside development")

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	HTTPPort    int    `yaml:"http_port" default:"8080"`
	LogLevel    string `yaml:"log_level" default:"info"`
	LogFormat   string `yaml:"log_format" default:"json"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	DatabaseURL      string `yaml:"database_url"`
	DatabaseMaxConns int32  `yaml:"database_max_conns" default:"10"`
	RedisURL         string `yaml:"redis_url" default:"localhost:6379"`
	AdminAPIKey      string `yaml:"admin_api_key"`

	// TrustWalletHeader accepts X-Wallet-Address as the caller's wallet. The
	// header must be set by a gateway that has authenticated the wallet.
	TrustWalletHeader bool `yaml:"trust_wallet_header" default:"true"`

	Providers struct {
		CookieFunURL string `yaml:"cookiefun_url" default:"http://3.75.231.25"`
		SignalsURL   string `yaml:"signals_url" default:"http://3.75.231.25"`
		BinanceURL   string `yaml:"binance_url" default:"https://api.binance.com"`
		BybitURL     string `yaml:"bybit_url" default:"https://api.bybit.com"`
		TimeoutSecs  int    `yaml:"timeout_secs" default:"30"`
	} `yaml:"providers"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled" default:"true"`
		Endpoint string `yaml:"endpoint" default:"localhost:4317"`
	} `yaml:"tracing"`

	Poll struct {
		CookieFunSecs int `yaml:"cookiefun_secs" default:"300"`
		BinanceSecs   int `yaml:"binance_secs" default:"600"`
		BybitSecs     int `yaml:"bybit_secs" default:"600"`
		SignalsSecs   int `yaml:"signals_secs" default:"300"`
	} `yaml:"poll"`

	SignalSource        string `yaml:"signal_source" default:"Binance"`
	TokenListMinAgeDays int    `yaml:"token_list_min_age_days" default:"13"`
	TokenListCacheSecs  int    `yaml:"token_list_cache_secs" default:"60"`
	FreeTierTokens      int    `yaml:"free_tier_tokens" default:"3"`
	FreeTierSignals     int    `yaml:"free_tier_signals" default:"3"`

	// Warnings collects non-fatal problems found while loading, to be logged
	// once the logger is configured.
	Warnings []string `yaml:"-"`
}

// Load applies struct defaults, then the YAML file named by CONFIG_FILE (if
// any), then environment overrides. Bad values fall back with a warning.
func Load() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		cfg.warn("apply defaults: %v", err)
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			cfg.warn("ignoring CONFIG_FILE: %v", err)
		}
	}

	cfg.applyEnv()
	cfg.validate()
	return cfg
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.envString("ENVIRONMENT", &c.Environment)
	c.envString("LOG_LEVEL", &c.LogLevel)
	c.envString("LOG_FORMAT", &c.LogFormat)
	c.envString("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)
	c.envString("DATABASE_URL", &c.DatabaseURL)
	c.envString("REDIS_URL", &c.RedisURL)
	c.envString("ADMIN_API_KEY", &c.AdminAPIKey)
	c.envString("COOKIEFUN_API_URL", &c.Providers.CookieFunURL)
	c.envString("SIGNALS_API_URL", &c.Providers.SignalsURL)
	c.envString("BINANCE_API_URL", &c.Providers.BinanceURL)
	c.envString("BYBIT_API_URL", &c.Providers.BybitURL)
	c.envString("SIGNAL_SOURCE", &c.SignalSource)
	c.envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	c.envBool("TRACING_ENABLED", &c.Tracing.Enabled)
	c.envBool("TRUST_WALLET_HEADER", &c.TrustWalletHeader)

	c.envInt("HTTP_PORT", &c.HTTPPort, 1)
	c.envInt("PROVIDER_TIMEOUT_SECS", &c.Providers.TimeoutSecs, 1)
	c.envInt("COOKIEFUN_POLL_SECS", &c.Poll.CookieFunSecs, 1)
	c.envInt("BINANCE_POLL_SECS", &c.Poll.BinanceSecs, 1)
	c.envInt("BYBIT_POLL_SECS", &c.Poll.BybitSecs, 1)
	c.envInt("SIGNALS_POLL_SECS", &c.Poll.SignalsSecs, 1)
	c.envInt("TOKEN_LIST_MIN_AGE_DAYS", &c.TokenListMinAgeDays, 0)
	c.envInt("TOKEN_LIST_CACHE_SECS", &c.TokenListCacheSecs, 0)
	c.envInt("FREE_TIER_TOKENS", &c.FreeTierTokens, 1)
	c.envInt("FREE_TIER_SIGNALS", &c.FreeTierSignals, 1)

	if v := strings.TrimSpace(os.Getenv("DATABASE_MAX_CONNS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			c.DatabaseMaxConns = int32(n)
		} else {
			c.warn("invalid DATABASE_MAX_CONNS=%q, keeping %d", v, c.DatabaseMaxConns)
		}
	}
}

func (c *Config) validate() {
	if c.TelegramBotToken == "" {
		c.warn("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}
	if c.DatabaseURL == "" {
		c.warn("DATABASE_URL not set")
	}
	if c.AdminAPIKey == "" && c.IsDevelopment() {
		c.warn("ADMIN_API_KEY not set, admin endpoints are unauthenticated")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "json" && c.LogFormat != "console" {
		c.warn("unsupported LOG_FORMAT=%q, defaulting to json", c.LogFormat)
		c.LogFormat = "json"
	}

	src, err := domain.ParseSource(c.SignalSource)
	if err != nil {
		c.warn("unsupported SIGNAL_SOURCE=%q, defaulting to %s", c.SignalSource, domain.SourceBinance)
		src = domain.SourceBinance
	}
	c.SignalSource = string(src)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "development")
}

// CheckSecrets fails when admin routes would be left open outside development.
func (c *Config) CheckSecrets() error {
	if c.AdminAPIKey == "" && !c.IsDevelopment() {
		return ErrAdminKeyRequired
	}
	return nil
}

func (c *Config) envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *Config) envBool(key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.warn("invalid %s=%q, keeping %t", key, v, *dst)
		return
	}
	*dst = b
}

func (c *Config) envInt(key string, dst *int, min int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		c.warn("invalid %s=%q, keeping %d", key, v, *dst)
		return
	}
	*dst = n
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
