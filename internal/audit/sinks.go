package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ZapSink mirrors audit events into a structured log. Failed events log at Warn.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{log: l.With(zap.String("component", "audit"))}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := make([]zap.Field, 0, 8+len(event.Metadata))
	fields = append(fields,
		zap.String("event", event.EventType),
		zap.Time("at", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", event.TenantID))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.Origin != "" {
		fields = append(fields, zap.String("origin", event.Origin))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.log.Info("audit", fields...)
		return
	}
	s.log.Warn("audit", fields...)
}

// MessageWriter is the subset of *kafka.Writer the Kafka sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the security event stream.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaSink publishes events as JSON, keyed by user id so one account's events stay
// ordered within a partition.
type KafkaSink struct {
	w       MessageWriter
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaSink returns nil when no brokers or topic are configured.
func NewKafkaSink(cfg KafkaConfig, l *zap.Logger) *KafkaSink {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil
	}
	if l == nil {
		l = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaSinkWithWriter(w, cfg.WriteTimeout, l.With(zap.String("topic", cfg.Topic)))
}

func NewKafkaSinkWithWriter(w MessageWriter, timeout time.Duration, l *zap.Logger) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &KafkaSink{
		w:       w,
		timeout: timeout,
		log:     l.With(zap.String("component", "audit.kafka")),
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error("audit marshal failed", zap.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(event.UserID), Value: payload, Time: event.Timestamp}
	if err := s.w.WriteMessages(writeCtx, msg); err != nil {
		s.log.Error("kafka write failed", zap.String("event", event.EventType), zap.Error(err))
	}
}

func (s *KafkaSink) Close() error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Close()
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
