package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultUniverse is scanned when no universe is configured.
var DefaultUniverse = []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "LINKUSDT"}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Exchange struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
		Burst     int           `yaml:"burst"`
	} `yaml:"exchange"`
	Scan struct {
		Universe       []string      `yaml:"universe"`
		Timeframe      string        `yaml:"timeframe"`
		BBPeriod       int           `yaml:"bb_period"`
		BBMultiplier   float64       `yaml:"bb_multiplier"`
		CCIPeriod      int           `yaml:"cci_period"`
		RSIPeriod      int           `yaml:"rsi_period"`
		SlopeWindow    int           `yaml:"slope_window"`
		SpanThreshold  float64       `yaml:"span_threshold"`
		BarsLimit      int           `yaml:"bars_limit"`
		Workers        int           `yaml:"workers"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"scan"`
	Clock struct {
		CoarsePoll    time.Duration `yaml:"coarse_poll"`
		FinePoll      time.Duration `yaml:"fine_poll"`
		NearWindow    time.Duration `yaml:"near_window"`
		RetryAttempts int           `yaml:"retry_attempts"`
		RetryBackoff  time.Duration `yaml:"retry_backoff"`
		LeaseTTL      time.Duration `yaml:"lease_ttl"`
		AutoResume    bool          `yaml:"auto_resume"`
	} `yaml:"clock"`
	State struct {
		Backend       string `yaml:"backend"` // "file" or "redis"
		FilePath      string `yaml:"file_path"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		RedisKey      string `yaml:"redis_key"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Digest struct {
		Cron string `yaml:"cron"`
	} `yaml:"digest"`
	Notify struct {
		Buffer  int `yaml:"buffer"`
		Retries int `yaml:"retries"`
	} `yaml:"notify"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// env lists the environment overrides. Unset variables leave the file value in place.
type env struct {
	TelegramBotToken string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `envconfig:"TELEGRAM_CHAT_ID"`
	ExchangeBaseURL  string        `envconfig:"EXCHANGE_BASE_URL"`
	Universe         []string      `envconfig:"SCAN_UNIVERSE"`
	Timeframe        string        `envconfig:"SCAN_TIMEFRAME"`
	Workers          int           `envconfig:"SCAN_WORKERS"`
	StateBackend     string        `envconfig:"STATE_BACKEND"`
	StateFile        string        `envconfig:"STATE_FILE"`
	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	SQLitePath       string        `envconfig:"SQLITE_PATH"`
	HTTPAddr         string        `envconfig:"HTTP_ADDR"`
	DigestCron       string        `envconfig:"CRON_DIGEST"`
	LogLevel         string        `envconfig:"LOG_LEVEL"`
	LogFormat        string        `envconfig:"LOG_FORMAT"`
	LeaseTTL         time.Duration `envconfig:"LEASE_TTL"`
	AutoResume       *bool         `envconfig:"AUTO_RESUME"`
	Proxy            string        `envconfig:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides,
// then fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// A missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnv(&e)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(e *env) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.BotToken, e.TelegramBotToken)
	set(&c.Telegram.ChatID, e.TelegramChatID)
	set(&c.Exchange.BaseURL, e.ExchangeBaseURL)
	set(&c.Scan.Timeframe, e.Timeframe)
	set(&c.State.Backend, e.StateBackend)
	set(&c.State.FilePath, e.StateFile)
	set(&c.State.RedisAddr, e.RedisAddr)
	set(&c.State.RedisPassword, e.RedisPassword)
	set(&c.Database.SQLitePath, e.SQLitePath)
	set(&c.HTTP.Addr, e.HTTPAddr)
	set(&c.Digest.Cron, e.DigestCron)
	set(&c.Log.Level, e.LogLevel)
	set(&c.Log.Format, e.LogFormat)
	set(&c.Proxy, e.Proxy)
	if len(e.Universe) > 0 {
		c.Scan.Universe = e.Universe
	}
	if e.Workers > 0 {
		c.Scan.Workers = e.Workers
	}
	if e.LeaseTTL > 0 {
		c.Clock.LeaseTTL = e.LeaseTTL
	}
	if e.AutoResume != nil {
		c.Clock.AutoResume = *e.AutoResume
	}
}

func (c *Config) applyDefaults() {
	def := strategy.DefaultParams()

	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = 10 * time.Second
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = 10
	}
	if c.Exchange.Burst == 0 {
		c.Exchange.Burst = 5
	}
	if len(c.Scan.Universe) == 0 {
		c.Scan.Universe = append([]string(nil), DefaultUniverse...)
	}
	for i, p := range c.Scan.Universe {
		c.Scan.Universe[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	if c.Scan.Timeframe == "" {
		c.Scan.Timeframe = "1h"
	}
	if c.Scan.BBPeriod == 0 {
		c.Scan.BBPeriod = def.BBPeriod
	}
	if c.Scan.BBMultiplier == 0 {
		c.Scan.BBMultiplier = def.BBMultiplier
	}
	if c.Scan.CCIPeriod == 0 {
		c.Scan.CCIPeriod = def.CCIPeriod
	}
	if c.Scan.RSIPeriod == 0 {
		c.Scan.RSIPeriod = def.RSIPeriod
	}
	if c.Scan.SlopeWindow == 0 {
		c.Scan.SlopeWindow = def.SlopeWindow
	}
	if c.Scan.SpanThreshold == 0 {
		c.Scan.SpanThreshold = def.SpanThreshold
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 1
	}
	if c.Scan.RequestTimeout == 0 {
		c.Scan.RequestTimeout = 15 * time.Second
	}
	if c.Clock.CoarsePoll == 0 {
		c.Clock.CoarsePoll = 10 * time.Second
	}
	if c.Clock.FinePoll == 0 {
		c.Clock.FinePoll = 5 * time.Second
	}
	if c.Clock.NearWindow == 0 {
		c.Clock.NearWindow = time.Minute
	}
	if c.Clock.RetryAttempts == 0 {
		c.Clock.RetryAttempts = 3
	}
	if c.Clock.RetryBackoff == 0 {
		c.Clock.RetryBackoff = time.Second
	}
	if c.Clock.LeaseTTL == 0 {
		c.Clock.LeaseTTL = 2 * time.Minute
	}
	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.FilePath == "" {
		c.State.FilePath = "data/watermark.json"
	}
	if c.State.RedisKey == "" {
		c.State.RedisKey = "preburst:watermark"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/preburst.db"
	}
	if c.Notify.Buffer == 0 {
		c.Notify.Buffer = 64
	}
	if c.Notify.Retries == 0 {
		c.Notify.Retries = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Params returns the indicator parameters.
func (c *Config) Params() strategy.Params {
	return strategy.Params{
		BBPeriod:      c.Scan.BBPeriod,
		BBMultiplier:  c.Scan.BBMultiplier,
		CCIPeriod:     c.Scan.CCIPeriod,
		RSIPeriod:     c.Scan.RSIPeriod,
		SlopeWindow:   c.Scan.SlopeWindow,
		SpanThreshold: c.Scan.SpanThreshold,
	}
}

// Timeframe returns the parsed scan timeframe.
func (c *Config) Timeframe() (model.Timeframe, error) {
	return model.ParseTimeframe(c.Scan.Timeframe)
}

// Validate checks the fields needed for a scan. Telegram credentials are checked separately
// because one-off scans run without a chat.
func (c *Config) Validate() error {
	if _, err := c.Timeframe(); err != nil {
		return fmt.Errorf("scan.timeframe: %w", err)
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	seen := make(map[string]bool, len(c.Scan.Universe))
	for _, p := range c.Scan.Universe {
		if p == "" {
			return fmt.Errorf("scan.universe contains an empty pair")
		}
		if seen[p] {
			return fmt.Errorf("scan.universe lists %s twice", p)
		}
		seen[p] = true
	}
	if c.Scan.BarsLimit < 0 || c.Scan.BarsLimit > 1000 {
		return fmt.Errorf("scan.bars_limit must be between 0 and 1000")
	}
	// The newest fetched bar may still be forming and is dropped before computing.
	if need := c.Params().Lookback() + 1; c.Scan.BarsLimit > 0 && c.Scan.BarsLimit < need {
		return fmt.Errorf("scan.bars_limit %d is below the %d bars the indicator windows need", c.Scan.BarsLimit, need)
	}
	if c.Clock.FinePoll <= 0 || c.Clock.CoarsePoll < c.Clock.FinePoll {
		return fmt.Errorf("clock.coarse_poll must be >= clock.fine_poll > 0")
	}
	if c.Clock.NearWindow < c.Clock.FinePoll {
		return fmt.Errorf("clock.near_window must be >= clock.fine_poll")
	}
	if c.Clock.RetryAttempts < 0 {
		return fmt.Errorf("clock.retry_attempts must not be negative")
	}
	switch c.State.Backend {
	case "file":
		if c.State.FilePath == "" {
			return fmt.Errorf("state.file_path is required")
		}
	case "redis":
		if c.State.RedisAddr == "" {
			return fmt.Errorf("state.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("state.backend must be file or redis, got %q", c.State.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// ValidateTelegram checks the chat credentials required by the long-running bot.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	return nil
}
