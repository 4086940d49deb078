package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"solana-sniper/internal/domain"
)

// LogSink writes events to a logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a log sink. A nil logger uses log.Default().
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Name returns "log".
func (s *LogSink) Name() string { return "log" }

// Send logs ev.
func (s *LogSink) Send(_ context.Context, ev domain.Event) error {
	s.logger.Println(FormatText(ev))
	return nil
}

// TelegramSink posts events to a Telegram chat via the Bot API.
type TelegramSink struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewTelegramSink creates a Telegram sink.
func NewTelegramSink(botToken, chatID string) *TelegramSink {
	return &TelegramSink{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns "telegram".
func (s *TelegramSink) Name() string { return "telegram" }

// Send posts ev as an HTML message.
func (s *TelegramSink) Send(ctx context.Context, ev domain.Event) error {
	endpoint := s.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)
	}
	vals := url.Values{
		"chat_id":    {s.chatID},
		"text":       {FormatHTML(ev)},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON keyed by token.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a Kafka sink writing to topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: writer, topic: topic}
}

// Name returns "kafka".
func (s *KafkaSink) Name() string { return "kafka" }

// Send writes ev to the topic. The hash balancer keeps one token's events
// on one partition, in order.
func (s *KafkaSink) Send(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Token),
		Value: data,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", s.topic, err)
	}
	return nil
}

// Close closes the Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// RedisSink stores each event under a TTL'd key and publishes it on a channel.
type RedisSink struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
}

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "alert"
	Channel  string        // pub/sub channel, default "sniper:alerts"
	TTL      time.Duration // key lifetime, default 24h
}

// NewRedisSink creates a Redis sink. The connection is established lazily.
func NewRedisSink(opts RedisOptions) *RedisSink {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "alert"
	}
	channel := opts.Channel
	if channel == "" {
		channel = "sniper:alerts"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}),
		prefix:  prefix,
		channel: channel,
		ttl:     ttl,
	}
}

// Name returns "redis".
func (s *RedisSink) Name() string { return "redis" }

// Key returns the storage key of ev.
func (s *RedisSink) Key(ev domain.Event) string {
	return fmt.Sprintf("%s:%d:%s:%s", s.prefix, ev.At.UnixMilli(), ev.Token, ev.Kind)
}

// Send stores and publishes ev in one round trip.
func (s *RedisSink) Send(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.Key(ev), data, s.ttl)
	pipe.Publish(ctx, s.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis alert: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
