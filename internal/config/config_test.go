package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
)

func validConfig() Config {
	cfg := Default()
	cfg.RPCEndpoint = "http://localhost:8899"
	cfg.WSEndpoint = "ws://localhost:8900"
	cfg.Keypair = "keypair.json"
	return cfg
}

func TestDefault_ValidOnceEndpointsSet(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, Default().Validate(), &cfgErr)
	assert.Equal(t, "rpc_endpoint", cfgErr.Field)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc_endpoint: http://rpc
risk:
  entry_size_sol: "0.25"
  stop_loss: -20
  stop_loss_convention: percent
  max_hold: 45m
  target_wallets: [w1, w2]
execution:
  max_retries: 5
  base_backoff: 100ms
storage:
  backend: sqlite
  sqlite_path: /tmp/positions.db
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://rpc", cfg.RPCEndpoint)
	assert.Equal(t, 45*time.Minute, cfg.Risk.MaxHold)
	assert.Equal(t, 5, cfg.Execution.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Execution.BaseBackoff)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	// Unset fields keep their defaults
	assert.Equal(t, 2.0, cfg.Risk.TakeProfitMultiple)
	assert.Equal(t, 30*time.Second, cfg.Execution.ConfirmTimeout)

	risk, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.True(t, risk.EntrySize.Equal(decimal.RequireFromString("0.25")))
	assert.InDelta(t, -0.2, risk.StopLoss, 1e-9)
	assert.True(t, risk.CopyTradeEnabled())
	assert.True(t, risk.WalletAllowed("w2"))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SOLANA_RPC_ENDPOINT", "http://env-rpc")
	t.Setenv("SNIPER_KEYPAIR", "secret")
	t.Setenv("COPY_TRADING_TARGET_ADDRESS", "w1, w2,,")
	t.Setenv("COUNTER_LIMIT", "7")
	t.Setenv("TELEGRAM_ALERTS_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "http://env-rpc", cfg.RPCEndpoint)
	assert.Equal(t, "secret", cfg.Keypair)
	assert.Equal(t, []string{"w1", "w2"}, cfg.Risk.TargetWallets)
	assert.Equal(t, 7, cfg.Risk.MaxOpenPositions)
	assert.True(t, cfg.Telegram.Enabled)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing keypair", func(c *Config) { c.Keypair = "" }, "keypair"},
		{"ws required for stream", func(c *Config) { c.WSEndpoint = "" }, "ws_endpoint"},
		{"bad entry size", func(c *Config) { c.Risk.EntrySizeSOL = "lots" }, "risk.entry_size_sol"},
		{"positive stop loss", func(c *Config) { c.Risk.StopLoss = 0.5 }, "stop_loss"},
		{"percent stop loss out of range", func(c *Config) {
			c.Risk.StopLoss = -150
			c.Risk.StopLossConvention = "percent"
		}, "stop_loss"},
		{"unknown convention", func(c *Config) { c.Risk.StopLossConvention = "bps" }, "stop_loss_convention"},
		{"take profit below one", func(c *Config) { c.Risk.TakeProfitMultiple = 0.9 }, "take_profit_multiple"},
		{"ceiling below entry", func(c *Config) { c.Risk.CapitalCeilingSOL = "0.01" }, "capital_ceiling"},
		{"size fraction", func(c *Config) { c.Risk.SizeFraction = 2 }, "risk.size_fraction"},
		{"no in-flight slots", func(c *Config) { c.Execution.MaxInFlight = 0 }, "execution.max_in_flight"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.postgres_dsn"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_ValidatesAfterEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  stream: false\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	t.Setenv("SOLANA_RPC_ENDPOINT", "http://rpc")
	t.Setenv("SNIPER_KEYPAIR", "secret")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Monitor.Stream)
}
