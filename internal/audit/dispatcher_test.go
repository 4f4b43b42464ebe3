package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(Event{EventType: EventLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(Event{EventType: EventLoginSuccess})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	var drops atomic.Int64
	d.OnDrop(func() { drops.Add(1) })

	start := time.Now()
	for i := 0; i < 50; i++ {
		d.Emit(Event{EventType: EventLoginFailure})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Emit blocked for %v", elapsed)
	}

	close(sink.gate)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}
	if uint64(drops.Load()) != d.Dropped() {
		t.Fatalf("drop hook count %d != dropped %d", drops.Load(), d.Dropped())
	}
}

func TestDispatcherEmitAfterCloseIsNoop(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Emit(Event{EventType: EventLogout})
	if sink.count.Load() != 0 {
		t.Fatal("expected no delivery after close")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: EventRegister, UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: EventLogout, UserID: "u1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if ev.EventType != EventRegister || ev.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLogrusSinkLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := NewLogrusSink(logger)

	sink.Emit(context.Background(), Event{EventType: EventLoginSuccess, UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: EventLoginFailure, Error: "invalid credentials"})

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel || entries[0].Data["user_id"] != "u1" {
		t.Fatalf("unexpected success entry: %+v", entries[0])
	}
	if entries[1].Level != logrus.WarnLevel || entries[1].Data["error"] != "invalid credentials" {
		t.Fatalf("unexpected failure entry: %+v", entries[1])
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestAMQPSinkPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewAMQPSink(pub, "orgauth.events", "", nil)

	sink.Emit(context.Background(), Event{EventType: EventRefreshReuse, UserID: "u1"})

	if len(pub.keys) != 1 || pub.keys[0] != "audit."+EventRefreshReuse {
		t.Fatalf("unexpected routing keys: %v", pub.keys)
	}
	msg := pub.msgs[0]
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", msg)
	}
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil || ev.UserID != "u1" {
		t.Fatalf("unexpected body: %s (%v)", msg.Body, err)
	}
}

func TestAMQPSinkPublishFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("channel closed")}
	sink := NewAMQPSink(pub, "orgauth.events", "audit", logger)

	sink.Emit(context.Background(), Event{EventType: EventLogout})

	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected warn log, got %+v", entry)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: EventLogout})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
