package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

func invalid(field, format string, args ...any) error {
	return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration. Every error is a *domain.ConfigurationError
// and fatal at startup.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCEndpoint) == "" {
		return invalid("rpc_endpoint", "required")
	}
	if c.Monitor.Stream && strings.TrimSpace(c.WSEndpoint) == "" {
		return invalid("ws_endpoint", "required when monitor.stream is enabled")
	}
	if strings.TrimSpace(c.Keypair) == "" {
		return invalid("keypair", "required (set SNIPER_KEYPAIR)")
	}
	if strings.TrimSpace(c.Feed.Path) == "" {
		return invalid("feed.path", "required")
	}

	if _, err := c.RiskConfig(); err != nil {
		return err
	}
	if f := c.Risk.SizeFraction; f < 0 || f > 1 {
		return invalid("risk.size_fraction", "must be within [0,1], got %f", f)
	}

	if c.Execution.MaxInFlight <= 0 {
		return invalid("execution.max_in_flight", "must be > 0, got %d", c.Execution.MaxInFlight)
	}
	if c.Execution.RPS <= 0 {
		return invalid("execution.rps", "must be > 0, got %f", c.Execution.RPS)
	}
	if c.Execution.ConfirmTimeout <= 0 {
		return invalid("execution.confirm_timeout", "must be > 0")
	}
	if c.Trader.MaxConcurrentCandidates <= 0 {
		return invalid("trader.max_concurrent_candidates", "must be > 0, got %d", c.Trader.MaxConcurrentCandidates)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return invalid("storage.postgres_dsn", "required for postgres backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return invalid("storage.sqlite_path", "required for sqlite backend")
		}
	default:
		return invalid("storage.backend", "must be memory, postgres or sqlite, got %q", c.Storage.Backend)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return invalid("telegram", "bot_token and chat_id required when enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return invalid("kafka", "brokers and topic required when enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr", "required when enabled")
	}
	return nil
}

// RiskConfig converts the risk section into the domain form, normalising the
// stop-loss convention.
func (c Config) RiskConfig() (domain.RiskConfig, error) {
	r := c.Risk
	entry, err := decimal.NewFromString(r.EntrySizeSOL)
	if err != nil {
		return domain.RiskConfig{}, invalid("risk.entry_size_sol", "not a decimal: %q", r.EntrySizeSOL)
	}
	ceiling, err := decimal.NewFromString(r.CapitalCeilingSOL)
	if err != nil {
		return domain.RiskConfig{}, invalid("risk.capital_ceiling_sol", "not a decimal: %q", r.CapitalCeilingSOL)
	}
	stopLoss, err := domain.NormalizeStopLoss(r.StopLoss, domain.StopLossConvention(r.StopLossConvention))
	if err != nil {
		return domain.RiskConfig{}, err
	}

	cfg := domain.RiskConfig{
		EntrySize:          entry,
		SlippageBps:        r.SlippageBps,
		TakeProfitMultiple: r.TakeProfitMultiple,
		StopLoss:           stopLoss,
		MaxHold:            r.MaxHold,
		MinLiquidity:       r.MinLiquidity,
		MinScore:           r.MinScore,
		TargetWallets:      domain.ParseWallets(strings.Join(r.TargetWallets, ",")),
		MaxOpenPositions:   r.MaxOpenPositions,
		CapitalCeiling:     ceiling,
		LiquidityFloor:     r.LiquidityFloor,
		RequoteOnMigration: r.RequoteOnMigration,
	}
	if err := cfg.Validate(); err != nil {
		return domain.RiskConfig{}, err
	}
	return cfg, nil
}
