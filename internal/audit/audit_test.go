package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot buffer")
	}
	close(sink.release)
	d.Close()

	sink.mu.Lock()
	delivered := len(sink.got)
	sink.mu.Unlock()
	if uint64(delivered)+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", delivered, d.Dropped())
	}
}

func TestDispatcherCloseDrains(t *testing.T) {
	ch := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, ch, nil)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "logout_session"})
	}
	d.Close()
	d.Close()

	if got := len(ch.Events()); got != 5 {
		t.Fatalf("expected 5 drained events, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := len(ch.Events()); got != 5 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{}, zap.New(core))
	d.Emit(context.Background(), Event{EventType: "token_rejected"})
	d.Emit(context.Background(), Event{EventType: "token_rejected"})
	d.Close()

	if logs.FilterMessage("audit sink panicked").Len() != 2 {
		t.Fatalf("expected two logged panics, got %d", logs.Len())
	}
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "login_success", UserID: "7", Success: true})
	s.Emit(context.Background(), Event{EventType: "login_failure", Reason: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Reason != "invalid_credentials" || e.Success {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{EventType: "login_success", Success: true, UserID: "1"})
	s.Emit(context.Background(), Event{EventType: "rate_limited", Reason: "rate_limited", Origin: "10.0.0.1"})

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Level != zapcore.InfoLevel || all[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", all[0].Level, all[1].Level)
	}
	if all[1].ContextMap()["origin"] != "10.0.0.1" {
		t.Fatalf("origin field missing: %v", all[1].ContextMap())
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSinkWithWriter(w, time.Second, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Emit(context.Background(), Event{EventType: "logout_all", UserID: "42", Timestamp: at})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" {
		t.Fatalf("unexpected key %q", w.msgs[0].Key)
	}
	var e Event
	if err := json.Unmarshal(w.msgs[0].Value, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.EventType != "logout_all" || !e.Timestamp.Equal(at) {
		t.Fatalf("unexpected payload %+v", e)
	}
}

func TestKafkaSinkWriteErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("broker down")}, time.Second, zap.New(core))
	s.Emit(context.Background(), Event{EventType: "login_failure"})
	if logs.FilterMessage("kafka write failed").Len() != 1 {
		t.Fatal("expected write failure to be logged")
	}
}

func TestNewKafkaSinkWithoutBrokers(t *testing.T) {
	if s := NewKafkaSink(KafkaConfig{Topic: "auth"}, nil); s != nil {
		t.Fatal("expected nil sink without brokers")
	}
	var s *KafkaSink
	s.Emit(context.Background(), Event{})
	if err := s.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
