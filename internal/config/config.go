// Package config loads runtime configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	// Keypair is the base58 secret or a path to a JSON keypair file.
	// Prefer SNIPER_KEYPAIR over committing it to YAML.
	Keypair string `yaml:"keypair"`

	Feed      FeedConfig      `yaml:"feed"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Venues    VenueConfig     `yaml:"venues"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Trader    TraderConfig    `yaml:"trader"`
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
}

type FeedConfig struct {
	Path         string        `yaml:"path"`
	ProgressPath string        `yaml:"progress_path"` // defaults to <path>.progress.json
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type RiskConfig struct {
	EntrySizeSOL       string        `yaml:"entry_size_sol"`
	SlippageBps        int           `yaml:"slippage_bps"`
	TakeProfitMultiple float64       `yaml:"take_profit_multiple"`
	StopLoss           float64       `yaml:"stop_loss"`
	StopLossConvention string        `yaml:"stop_loss_convention"` // fraction | percent
	MaxHold            time.Duration `yaml:"max_hold"`
	MinLiquidity       float64       `yaml:"min_liquidity"`
	MinScore           float64       `yaml:"min_score"`
	TargetWallets      []string      `yaml:"target_wallets"`
	MaxOpenPositions   int           `yaml:"max_open_positions"`
	CapitalCeilingSOL  string        `yaml:"capital_ceiling_sol"`
	LiquidityFloor     float64       `yaml:"liquidity_floor"`
	RequoteOnMigration bool          `yaml:"requote_on_migration"`
	// SizeFraction switches to proportional sizing when > 0.
	SizeFraction float64 `yaml:"size_fraction"`
}

type ExecutionConfig struct {
	MaxInFlight        int           `yaml:"max_in_flight"`
	RPS                float64       `yaml:"rps"`
	MaxRetries         int           `yaml:"max_retries"`
	BaseBackoff        time.Duration `yaml:"base_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	ConfirmTimeout     time.Duration `yaml:"confirm_timeout"`
	RequeryTimeout     time.Duration `yaml:"requery_timeout"`
	MaxSigningFailures int           `yaml:"max_signing_failures"`
	ComputeUnitLimit   uint32        `yaml:"compute_unit_limit"`
	ComputeUnitPrice   uint64        `yaml:"compute_unit_price"`
	SkipPreflight      bool          `yaml:"skip_preflight"`
}

type VenueConfig struct {
	AggregatorURL    string `yaml:"aggregator_url"`
	AMMFeeBps        int    `yaml:"amm_fee_bps"`
	PumpFeeRecipient string `yaml:"pump_fee_recipient"`
	AMMFeeRecipient  string `yaml:"amm_fee_recipient"`
	PriorityFee      uint64 `yaml:"priority_fee"`
}

type MonitorConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ExitTimeout    time.Duration `yaml:"exit_timeout"`
	ExitRetryDelay time.Duration `yaml:"exit_retry_delay"`
	Stream         bool          `yaml:"stream"` // account subscriptions over WebSocket
	RecordTicks    bool          `yaml:"record_ticks"`
}

type TraderConfig struct {
	MaxConcurrentCandidates int           `yaml:"max_concurrent_candidates"`
	ShutdownGrace           time.Duration `yaml:"shutdown_grace"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory | postgres | sqlite
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional price tick store
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Feed: FeedConfig{
			Path:         "data/candidates.jsonl",
			PollInterval: 500 * time.Millisecond,
			RetryDelay:   100 * time.Millisecond,
		},
		Risk: RiskConfig{
			EntrySizeSOL:       "0.1",
			SlippageBps:        500,
			TakeProfitMultiple: 2.0,
			StopLoss:           -0.5,
			StopLossConvention: "fraction",
			MaxHold:            30 * time.Minute,
			MinLiquidity:       5,
			MinScore:           60,
			MaxOpenPositions:   5,
			CapitalCeilingSOL:  "1",
			RequoteOnMigration: true,
		},
		Execution: ExecutionConfig{
			MaxInFlight:        8,
			RPS:                10,
			MaxRetries:         3,
			BaseBackoff:        250 * time.Millisecond,
			MaxBackoff:         4 * time.Second,
			ConfirmTimeout:     30 * time.Second,
			RequeryTimeout:     5 * time.Second,
			MaxSigningFailures: 3,
		},
		Venues: VenueConfig{
			AMMFeeBps: 25,
		},
		Monitor: MonitorConfig{
			TickInterval:   time.Second,
			PollInterval:   2 * time.Second,
			ExitTimeout:    2 * time.Minute,
			ExitRetryDelay: 2 * time.Second,
			Stream:         true,
		},
		Trader: TraderConfig{
			MaxConcurrentCandidates: 4,
			ShutdownGrace:           30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Kafka: KafkaConfig{
			Topic: "sniper-events",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "sniper:alerts",
			TTL:     24 * time.Hour,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads .env (if present), the YAML file (if path is set) and the
// environment, then validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("SOLANA_RPC_ENDPOINT"); v != "" {
		c.RPCEndpoint = v
	}
	if v := os.Getenv("SOLANA_WS_ENDPOINT"); v != "" {
		c.WSEndpoint = v
	}
	if v := os.Getenv("SNIPER_KEYPAIR"); v != "" {
		c.Keypair = v
	}
	if v := os.Getenv("SNIPER_FEED_PATH"); v != "" {
		c.Feed.Path = v
	}
	if v := os.Getenv("COPY_TRADING_TARGET_ADDRESS"); v != "" {
		c.Risk.TargetWallets = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("COUNTER_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Risk.MaxOpenPositions = n
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SNIPER_STORAGE")); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_ALERTS_ENABLED")); v != "" {
		c.Telegram.Enabled = parseBool(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
