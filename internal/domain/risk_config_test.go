package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRiskConfig() RiskConfig {
	return RiskConfig{
		EntrySize:          decimal.RequireFromString("0.1"),
		SlippageBps:        500,
		TakeProfitMultiple: 2.0,
		StopLoss:           -0.5,
		MaxHold:            10 * time.Minute,
		MinLiquidity:       5000,
		MinScore:           50,
		MaxOpenPositions:   3,
		CapitalCeiling:     decimal.RequireFromString("1"),
	}
}

func TestNormalizeStopLoss(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		conv    StopLossConvention
		want    float64
		wantErr bool
	}{
		{"fraction half", -0.5, StopLossFraction, -0.5, false},
		{"default is fraction", -0.25, "", -0.25, false},
		{"percent two", -2, StopLossPercent, -0.02, false},
		{"percent fifty", -50, StopLossPercent, -0.5, false},
		{"fraction positive", 0.5, StopLossFraction, 0, true},
		{"fraction full loss", -1, StopLossFraction, 0, true},
		{"percent full loss", -100, StopLossPercent, 0, true},
		{"unknown convention", -0.5, "bps", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStopLoss(tt.value, tt.conv)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				require.Error(t, err)
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestRiskConfig_Thresholds(t *testing.T) {
	cfg := validRiskConfig()
	assert.InDelta(t, 2.0, cfg.TakeProfitPrice(1.0), 1e-12)
	assert.InDelta(t, 0.5, cfg.StopLossPrice(1.0), 1e-12)

	cfg.StopLoss = -0.02
	assert.InDelta(t, 0.98, cfg.StopLossPrice(1.0), 1e-12)
}

func TestRiskConfig_Validate(t *testing.T) {
	require.NoError(t, validRiskConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*RiskConfig)
		field  string
	}{
		{"zero entry", func(c *RiskConfig) { c.EntrySize = decimal.Zero }, "entry_size"},
		{"slippage", func(c *RiskConfig) { c.SlippageBps = 0 }, "slippage_bps"},
		{"take profit", func(c *RiskConfig) { c.TakeProfitMultiple = 1 }, "take_profit_multiple"},
		{"stop loss", func(c *RiskConfig) { c.StopLoss = 0.1 }, "stop_loss"},
		{"max hold", func(c *RiskConfig) { c.MaxHold = 0 }, "max_hold"},
		{"max positions", func(c *RiskConfig) { c.MaxOpenPositions = 0 }, "max_open_positions"},
		{"ceiling", func(c *RiskConfig) { c.CapitalCeiling = decimal.RequireFromString("0.05") }, "capital_ceiling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRiskConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRiskConfig_WalletAllowed(t *testing.T) {
	cfg := validRiskConfig()
	assert.True(t, cfg.WalletAllowed("anything"), "copy-trade disabled allows all")

	cfg.TargetWallets = ParseWallets(" WalletA , WalletB,,")
	assert.Len(t, cfg.TargetWallets, 2)
	assert.True(t, cfg.WalletAllowed("WalletA"))
	assert.False(t, cfg.WalletAllowed("WalletC"))
	assert.False(t, cfg.WalletAllowed(""))
}
