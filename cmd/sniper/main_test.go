package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const testConfig = `
rpc_endpoint: http://localhost:8899
ws_endpoint: ws://localhost:8900
keypair: keypair.json
risk:
  entry_size_sol: "0.2"
  stop_loss: -30
  stop_loss_convention: percent
storage:
  backend: sqlite
  sqlite_path: positions.db
`

func TestLoadConfig(t *testing.T) {
	cfg, riskCfg, err := loadConfig(writeConfig(t, testConfig), false)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Storage.Backend)
	assert.True(t, riskCfg.EntrySize.Equal(decimal.RequireFromString("0.2")))
	assert.InDelta(t, -0.3, riskCfg.StopLoss, 1e-9)

	cfg, _, err = loadConfig(writeConfig(t, testConfig), true)
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, _, err := loadConfig(writeConfig(t, "risk:\n  slippage_bps: 500\n"), false)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOpenStores_SQLiteUsesProgressFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.SQLitePath = filepath.Join(dir, "positions.db")
	cfg.Feed.Path = filepath.Join(dir, "candidates.jsonl")

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	st, err := openStores(context.Background(), &cfg, metrics, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	defer st.close()

	assert.IsType(t, &observability.PositionStore{}, st.positions)
	require.NotNil(t, st.progress)
	assert.Nil(t, st.ticks)

	ctx := context.Background()
	require.NoError(t, st.progress.SetOffset(ctx, &storage.FeedProgress{Offset: 42}))
	got, err := st.progress.GetOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Offset)
	_, err = os.Stat(cfg.Feed.Path + ".progress.json")
	assert.NoError(t, err)
}

func TestBuildEmitter_DefaultSinks(t *testing.T) {
	cfg := config.Default()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	var buf bytes.Buffer

	emitter, err := buildEmitter(&cfg, metrics, log.New(&buf, "", 0))
	require.NoError(t, err)
	require.NotNil(t, emitter)
	assert.Contains(t, buf.String(), "[log metrics]")
	require.NoError(t, emitter.Close())
}
