package simulator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/ingest"
	"github.com/matheus3301/wphook/internal/status"
	"github.com/matheus3301/wphook/internal/store"
)

type applyCall struct {
	CorrelationID string
	To            status.Status
	Source        string
}

// mockApplier records calls and returns a configurable outcome.
type mockApplier struct {
	mu      sync.Mutex
	calls   []applyCall
	outcome ingest.Outcome
	ch      chan applyCall
}

func newMockApplier() *mockApplier {
	return &mockApplier{outcome: ingest.OutcomeApplied, ch: make(chan applyCall, 16)}
}

func (m *mockApplier) Apply(_ context.Context, id string, to status.Status, source string) (ingest.Outcome, error) {
	c := applyCall{CorrelationID: id, To: to, Source: source}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	outcome := m.outcome
	m.mu.Unlock()
	m.ch <- c
	return outcome, nil
}

func (m *mockApplier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func fastConfig() config.SimulatorConfig {
	return config.SimulatorConfig{Enabled: true, DeliveredAfter: 10 * time.Millisecond, ReadAfter: 10 * time.Millisecond}
}

func waitCall(t *testing.T, m *mockApplier) applyCall {
	t.Helper()
	select {
	case c := <-m.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for simulated status")
		return applyCall{}
	}
}

func msg(id, conv string) store.Message {
	return store.Message{ExternalID: id, CorrelationID: id, ConversationKey: conv}
}

func TestScheduleDeliveredThenRead(t *testing.T) {
	m := newMockApplier()
	s := New(m, nil, fastConfig(), nil)
	defer s.Stop()

	s.Schedule(msg("local_1", "5511"))
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}

	first := waitCall(t, m)
	second := waitCall(t, m)
	if first.To != status.Delivered || second.To != status.Read {
		t.Errorf("order = %s, %s; want delivered, read", first.To, second.To)
	}
	if first.CorrelationID != "local_1" || first.Source != ingest.SourceSimulator {
		t.Errorf("call = %+v", first)
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d after completion, want 0", s.Pending())
	}
}

func TestScheduleReplacesTask(t *testing.T) {
	m := newMockApplier()
	s := New(m, nil, fastConfig(), nil)
	defer s.Stop()

	s.Schedule(msg("local_1", "5511"))
	s.Schedule(msg("local_1", "5511"))
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}

	waitCall(t, m)
	waitCall(t, m)
	time.Sleep(50 * time.Millisecond)
	if n := m.count(); n != 2 {
		t.Errorf("apply calls = %d, want 2", n)
	}
}

func TestCancel(t *testing.T) {
	m := newMockApplier()
	cfg := fastConfig()
	cfg.DeliveredAfter = 50 * time.Millisecond
	s := New(m, nil, cfg, nil)
	defer s.Stop()

	s.Schedule(msg("local_1", "5511"))
	if !s.Cancel("local_1") {
		t.Fatal("Cancel() = false, want true")
	}
	if s.Cancel("local_1") {
		t.Error("second Cancel() = true, want false")
	}
	time.Sleep(100 * time.Millisecond)
	if n := m.count(); n != 0 {
		t.Errorf("apply calls = %d after cancel, want 0", n)
	}
}

func TestDisabled(t *testing.T) {
	m := newMockApplier()
	cfg := fastConfig()
	cfg.Enabled = false
	s := New(m, nil, cfg, nil)
	defer s.Stop()

	s.Schedule(msg("local_1", "5511"))
	if s.Pending() != 0 {
		t.Errorf("pending = %d with simulator disabled, want 0", s.Pending())
	}
}

func TestContactDeletedCancelsConversation(t *testing.T) {
	m := newMockApplier()
	b := bus.New()
	cfg := fastConfig()
	cfg.DeliveredAfter = 200 * time.Millisecond
	s := New(m, b, cfg, nil)
	s.Start(context.Background())
	defer s.Stop()

	s.Schedule(msg("a1", "alice"))
	s.Schedule(msg("a2", "alice"))
	s.Schedule(msg("b1", "bob"))

	b.Publish(bus.Event{Kind: bus.KindContactDeleted, Payload: bus.ContactChanged{WaID: "alice"}})

	deadline := time.Now().Add(time.Second)
	for s.Pending() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want only bob's task", s.Pending())
	}
	if c := waitCall(t, m); c.CorrelationID != "b1" {
		t.Errorf("applied %q, want b1", c.CorrelationID)
	}
}

func TestStopCancelsEverything(t *testing.T) {
	m := newMockApplier()
	cfg := fastConfig()
	cfg.DeliveredAfter = 50 * time.Millisecond
	s := New(m, nil, cfg, nil)

	s.Schedule(msg("local_1", "5511"))
	s.Stop()
	s.Schedule(msg("local_2", "5511"))

	time.Sleep(100 * time.Millisecond)
	if s.Pending() != 0 || m.count() != 0 {
		t.Errorf("pending = %d, calls = %d after Stop", s.Pending(), m.count())
	}
}

func TestUnresolvedDropsTask(t *testing.T) {
	m := newMockApplier()
	m.outcome = ingest.OutcomeUnresolved
	cfg := fastConfig()
	cfg.ReadAfter = 200 * time.Millisecond
	s := New(m, nil, cfg, nil)
	defer s.Stop()

	s.Schedule(msg("gone", "5511"))
	waitCall(t, m)
	time.Sleep(20 * time.Millisecond)
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want task dropped after unresolved", s.Pending())
	}
}

func TestSimulatorWithStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := db.EnsureContact(ctx, "5511", ""); err != nil {
		t.Fatal(err)
	}
	out := &store.Message{ExternalID: "local_1", CorrelationID: "local_1", ConversationKey: "5511",
		Body: "hi", Direction: store.Outbound, Status: status.Sent, Timestamp: 1}
	if _, err := db.InsertMessage(ctx, out); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindMessageStatusChanged, 10)
	defer unsub()

	s := New(ingest.NewApplier(db, b, nil), b, fastConfig(), nil)
	s.Start(ctx)
	defer s.Stop()
	s.Schedule(*out)

	for _, want := range []string{"delivered", "read"} {
		select {
		case evt := <-ch:
			if got := evt.Payload.(bus.StatusChanged).To; got != want {
				t.Errorf("status event to = %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
	m, err := db.GetMessageByExternalID(ctx, "local_1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != status.Read {
		t.Errorf("status = %q, want read", m.Status)
	}
}
