package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	"autorag-api/internal/repository"
	"context"
	"encoding/json"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/segmentio/kafka-go"
)

// AnalyticsSink is write-only: events are never read back through it.
type AnalyticsSink interface {
	WriteEvent(ctx context.Context, event models.UsageEvent) error
	Close() error
}

type NopAnalyticsSink struct{}

func (NopAnalyticsSink) WriteEvent(context.Context, models.UsageEvent) error { return nil }
func (NopAnalyticsSink) Close() error                                        { return nil }

type PostgresAnalyticsSink struct {
	repo repository.UsageEventRepository
}

func NewPostgresAnalyticsSink(repo repository.UsageEventRepository) *PostgresAnalyticsSink {
	return &PostgresAnalyticsSink{repo: repo}
}

func (s *PostgresAnalyticsSink) WriteEvent(ctx context.Context, event models.UsageEvent) error {
	return s.repo.Create(ctx, &event)
}

func (s *PostgresAnalyticsSink) Close() error { return nil }

// analyticsPayload is the wire shape for streamed events.
type analyticsPayload struct {
	ID        string    `json:"id"`
	Blobs     []string  `json:"blobs"`
	Doubles   []float64 `json:"doubles"`
	Indexes   []string  `json:"indexes"`
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
}

func newAnalyticsPayload(event models.UsageEvent) analyticsPayload {
	return analyticsPayload{
		ID:        event.ID.String(),
		Blobs:     event.Blobs(),
		Doubles:   event.Doubles(),
		Indexes:   event.Indexes(),
		Degraded:  event.Degraded,
		Timestamp: event.Timestamp.UTC(),
	}
}

type KafkaAnalyticsSink struct {
	writer *kafka.Writer
}

func NewKafkaAnalyticsSink(brokers []string, topic string) *KafkaAnalyticsSink {
	return &KafkaAnalyticsSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// WriteEvent keys messages by user id so one user's events stay ordered.
func (s *KafkaAnalyticsSink) WriteEvent(ctx context.Context, event models.UsageEvent) error {
	value, err := json.Marshal(newAnalyticsPayload(event))
	if err != nil {
		return fmt.Errorf("encode analytics event: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
	})
}

func (s *KafkaAnalyticsSink) Close() error {
	return s.writer.Close()
}

const clickHouseInsert = `INSERT INTO usage_events
	(id, user_id, tier, query, domains, cost, confidence, processing_ms, degraded, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type ClickHouseAnalyticsSink struct {
	conn driver.Conn
}

func NewClickHouseAnalyticsSink(dsn string) (*ClickHouseAnalyticsSink, error) {
	opts, err := ch.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid ClickHouse DSN: %w", err)
	}
	opts.DialTimeout = 10 * time.Second

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &ClickHouseAnalyticsSink{conn: conn}, nil
}

func (s *ClickHouseAnalyticsSink) WriteEvent(ctx context.Context, event models.UsageEvent) error {
	return s.conn.Exec(ctx, clickHouseInsert,
		event.ID.String(),
		event.UserID,
		string(event.Tier),
		event.Query,
		event.Domains,
		event.Cost,
		event.Confidence,
		event.ProcessingMs,
		event.Degraded,
		event.Timestamp,
	)
}

func (s *ClickHouseAnalyticsSink) Close() error {
	return s.conn.Close()
}

// NewAnalyticsSink picks the sink named by cfg.Sink. The postgres sink needs
// a usage event repository.
func NewAnalyticsSink(cfg config.AnalyticsConfig, usageRepo repository.UsageEventRepository) (AnalyticsSink, error) {
	switch cfg.Sink {
	case "postgres":
		if usageRepo == nil {
			return nil, fmt.Errorf("postgres analytics sink requires a database")
		}
		return NewPostgresAnalyticsSink(usageRepo), nil
	case "kafka":
		return NewKafkaAnalyticsSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "clickhouse":
		return NewClickHouseAnalyticsSink(cfg.ClickHouseDSN)
	case "none", "":
		return NopAnalyticsSink{}, nil
	}
	return nil, fmt.Errorf("unknown analytics sink %q", cfg.Sink)
}
