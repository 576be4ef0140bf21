package invauth

import (
	"io"

	internalaudit "github.com/MrEthical07/invauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink mirrors events into a zap logger.
type ZapSink = internalaudit.ZapSink

// KafkaSink publishes events to a Kafka topic.
type KafkaSink = internalaudit.KafkaSink

// KafkaSinkConfig configures [NewKafkaSink].
type KafkaSinkConfig = internalaudit.KafkaConfig

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(l *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(l)
}

// NewKafkaSink returns nil when no brokers or topic are configured.
func NewKafkaSink(cfg KafkaSinkConfig, l *zap.Logger) *KafkaSink {
	return internalaudit.NewKafkaSink(cfg, l)
}
