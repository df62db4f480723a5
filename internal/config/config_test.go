package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultUniverse, cfg.Scan.Universe)
	assert.Equal(t, "1h", cfg.Scan.Timeframe)
	assert.Equal(t, 20, cfg.Scan.BBPeriod)
	assert.Equal(t, 2.0, cfg.Scan.BBMultiplier)
	assert.Equal(t, 160, cfg.Scan.CCIPeriod)
	assert.Equal(t, 20, cfg.Scan.RSIPeriod)
	assert.Equal(t, 3, cfg.Scan.SlopeWindow)
	assert.Equal(t, 0.025, cfg.Scan.SpanThreshold)
	assert.Equal(t, 10*time.Second, cfg.Clock.CoarsePoll)
	assert.Equal(t, 5*time.Second, cfg.Clock.FinePoll)
	assert.Equal(t, time.Minute, cfg.Clock.NearWindow)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.NoError(t, cfg.Validate())

	tf, err := cfg.Timeframe()
	require.NoError(t, err)
	assert.Equal(t, model.Timeframe("1h"), tf)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: file-token
  chat_id: "42"
scan:
  universe: [btcusdt, " ethusdt "]
  timeframe: 4h
  cci_period: 100
  workers: 2
clock:
  coarse_poll: 30s
  near_window: 2m
state:
  backend: redis
  redis_addr: localhost:6379
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("SCAN_WORKERS", "4")
	t.Setenv("AUTO_RESUME", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Scan.Universe)
	assert.Equal(t, "4h", cfg.Scan.Timeframe)
	assert.Equal(t, 100, cfg.Scan.CCIPeriod)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 30*time.Second, cfg.Clock.CoarsePoll)
	assert.Equal(t, 2*time.Minute, cfg.Clock.NearWindow)
	assert.True(t, cfg.Clock.AutoResume)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateTelegram())
}

func TestLoad_EnvUniverse(t *testing.T) {
	t.Setenv("SCAN_UNIVERSE", "solusdt,xrpusdt")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, cfg.Scan.Universe)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "scan: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad timeframe", func(c *Config) { c.Scan.Timeframe = "1M" }, "scan.timeframe"},
		{"slope window", func(c *Config) { c.Scan.SlopeWindow = 1 }, "scan"},
		{"duplicate pair", func(c *Config) { c.Scan.Universe = []string{"BTCUSDT", "BTCUSDT"} }, "twice"},
		{"bars limit", func(c *Config) { c.Scan.BarsLimit = 5000 }, "bars_limit"},
		{"bars limit below lookback", func(c *Config) { c.Scan.BarsLimit = 100 }, "indicator windows need"},
		{"polling order", func(c *Config) { c.Clock.CoarsePoll = time.Second }, "coarse_poll"},
		{"near window", func(c *Config) { c.Clock.NearWindow = time.Second }, "near_window"},
		{"backend", func(c *Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"redis addr", func(c *Config) { c.State.Backend = "redis" }, "redis_addr"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, base().Validate())
	exact := base()
	exact.Scan.BarsLimit = exact.Params().Lookback() + 1
	assert.NoError(t, exact.Validate())
	assert.ErrorContains(t, base().ValidateTelegram(), "bot_token")
}
