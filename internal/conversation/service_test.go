package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/ingest"
	"github.com/matheus3301/wphook/internal/status"
	"github.com/matheus3301/wphook/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mockScheduler records scheduled messages.
type mockScheduler struct {
	mu        sync.Mutex
	scheduled []store.Message
}

func (m *mockScheduler) Schedule(msg store.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, msg)
}

func newService(t *testing.T) (*Service, *store.DB, *bus.Bus, *mockScheduler) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	sched := &mockScheduler{}
	return NewService(db, b, sched, config.AccountConfig{DisplayName: "Acme"}, nil), db, b, sched
}

func ingestInbound(t *testing.T, db *store.DB, conv string, n int) {
	t.Helper()
	p := ingest.NewProcessor(db, nil, ingest.NewApplier(db, nil, nil), nil)
	var batch ingest.Batch
	for i := 1; i <= n; i++ {
		batch.Messages = append(batch.Messages, ingest.MessageEvent{
			ExternalID: fmt.Sprintf("%s-%d", conv, i),
			SenderID:   conv,
			Body:       fmt.Sprintf("msg %d", i),
			Timestamp:  time.Unix(int64(1700000000+i), 0),
		})
	}
	if _, err := p.Ingest(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
}

func TestListMessagesPageOrderAndReadSideEffect(t *testing.T) {
	svc, db, b, _ := newService(t)
	ctx := context.Background()
	ingestInbound(t, db, "5511", 5)

	ch, unsub := b.Subscribe(bus.KindConversationRead, 4)
	defer unsub()

	msgs, err := svc.ListMessages(ctx, "5511", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "msg 4" || msgs[1].Body != "msg 5" {
		t.Fatalf("page 1 = %v, want [msg 4, msg 5]", bodies(msgs))
	}

	// The side effect covers the whole conversation, not only the page.
	sums, err := db.Summaries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sums["5511"].UnreadCount != 0 {
		t.Errorf("unread = %d after open, want 0", sums["5511"].UnreadCount)
	}

	select {
	case evt := <-ch:
		if evt.Payload.(bus.ConversationRead).Marked != 5 {
			t.Errorf("marked = %+v, want 5", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conversation.read")
	}

	msgs, err = svc.ListMessages(ctx, "5511", 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "msg 1" {
		t.Errorf("page 3 = %v, want [msg 1]", bodies(msgs))
	}
}

func bodies(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestListMessagesDefaultsAndUnknown(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()
	ingestInbound(t, db, "5511", 3)

	msgs, err := svc.ListMessages(ctx, "5511", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Errorf("got %d messages with defaults, want 3", len(msgs))
	}

	msgs, err = svc.ListMessages(ctx, "nobody", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("unknown conversation = %v, want empty slice", msgs)
	}
}

func TestSend(t *testing.T) {
	svc, db, b, sched := newService(t)
	ctx := context.Background()

	ch, unsub := b.Subscribe(bus.KindMessageCreated, 4)
	defer unsub()

	msg, err := svc.Send(ctx, SendRequest{WaID: "5511", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(msg.ExternalID, LocalIDPrefix) || msg.CorrelationID != msg.ExternalID {
		t.Errorf("ids = %q / %q", msg.ExternalID, msg.CorrelationID)
	}
	if msg.Status != status.Sent || msg.Direction != store.Outbound || msg.SenderName != "Acme" {
		t.Errorf("message = %+v", msg)
	}
	if len(sched.scheduled) != 1 || sched.scheduled[0].CorrelationID != msg.CorrelationID {
		t.Errorf("scheduled = %+v", sched.scheduled)
	}

	c, err := db.GetContact(ctx, "5511")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Implicit {
		t.Error("send should create an implicit contact")
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.created")
	}
}

func TestSendValidation(t *testing.T) {
	svc, db, _, sched := newService(t)
	for _, req := range []SendRequest{{Text: "x"}, {WaID: "5511"}, {WaID: "5511", Text: "   "}} {
		if _, err := svc.Send(context.Background(), req); !errors.Is(err, ErrInvalid) {
			t.Errorf("Send(%+v) err = %v, want ErrInvalid", req, err)
		}
	}
	if s, _ := db.Stats(context.Background()); s.TotalMessages != 0 {
		t.Errorf("invalid sends persisted %d messages", s.TotalMessages)
	}
	if len(sched.scheduled) != 0 {
		t.Error("invalid send was scheduled")
	}
}

func TestStatusUpdates(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, SendRequest{WaID: "5511", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	all, err := svc.StatusUpdates(ctx, "5511", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d updates, want 1", len(all))
	}

	mark := time.UnixMilli(all[0].UpdatedAt)
	time.Sleep(5 * time.Millisecond)
	if _, err := db.CompareAndSwapStatus(ctx, msg.ID, status.Sent, status.Delivered); err != nil {
		t.Fatal(err)
	}
	updates, err := svc.StatusUpdates(ctx, "5511", mark)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].Status != status.Delivered {
		t.Errorf("updates = %+v, want one delivered", updates)
	}
}

func TestListConversationsRanked(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "quiet", Name: "Quiet"}); err != nil {
		t.Fatal(err)
	}
	ingestInbound(t, db, "busy", 2)
	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "pinned", Name: "Pinned"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Toggle(ctx, "pinned", "pin", true, nil); err != nil {
		t.Fatal(err)
	}

	convs, err := svc.ListConversations(ctx, store.ContactFilter{})
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(convs))
	for i, c := range convs {
		got[i] = c.WaID
	}
	want := []string{"pinned", "busy", "quiet"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
	if convs[1].UnreadCount != 2 || convs[1].LastMessage != "msg 2" {
		t.Errorf("busy summary = %+v", convs[1])
	}
}

func TestCreateContact(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "1"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("missing name err = %v, want ErrInvalid", err)
	}
	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "1", Name: "A", Labels: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "1", Name: "B"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}

	// A contact first seen through ingestion can still be created explicitly.
	ingestInbound(t, db, "2", 1)
	c, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "2", Name: "Known"})
	if err != nil {
		t.Fatalf("claim implicit contact: %v", err)
	}
	if c.Name != "Known" || c.Implicit {
		t.Errorf("claimed = %+v", c)
	}
}

func TestContactOperationsNotFound(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	name := "x"

	checks := map[string]error{}
	_, checks["get"] = svc.GetContact(ctx, "ghost")
	_, checks["update"] = svc.UpdateContact(ctx, "ghost", store.ContactUpdate{Name: &name})
	_, checks["toggle"] = svc.Toggle(ctx, "ghost", "archive", true, nil)
	_, checks["presence"] = svc.SetPresence(ctx, "ghost", "online", nil)
	_, checks["online"] = svc.GoOnline(ctx, "ghost")
	_, checks["delete"] = svc.DeleteContact(ctx, "ghost")
	for op, err := range checks {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s err = %v, want ErrNotFound", op, err)
		}
	}
}

func TestToggleInvalidAction(t *testing.T) {
	svc, _, _, _ := newService(t)
	if _, err := svc.Toggle(context.Background(), "1", "star", true, nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestPresence(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.CreateContact(ctx, CreateContactRequest{WaID: "1", Name: "A"}); err != nil {
		t.Fatal(err)
	}

	c, err := svc.GoOffline(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Presence != store.PresenceLastSeen || c.LastSeen == nil {
		t.Fatalf("offline = %+v", c)
	}
	seen := *c.LastSeen

	// Without lastSeen the stored value is kept.
	c, err = svc.SetPresence(ctx, "1", "offline", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.LastSeen == nil || !c.LastSeen.Equal(seen) {
		t.Errorf("last seen = %v, want %v", c.LastSeen, seen)
	}

	c, err = svc.GoOnline(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Presence != store.PresenceOnline || c.LastSeen != nil {
		t.Errorf("online = %+v", c)
	}

	for _, p := range []string{"", "away"} {
		if _, err := svc.SetPresence(ctx, "1", p, nil); !errors.Is(err, ErrInvalid) {
			t.Errorf("SetPresence(%q) err = %v, want ErrInvalid", p, err)
		}
	}
}

func TestDeleteContactPublishes(t *testing.T) {
	svc, db, b, _ := newService(t)
	ctx := context.Background()
	ingestInbound(t, db, "5511", 3)

	ch, unsub := b.Subscribe(bus.KindContactDeleted, 4)
	defer unsub()

	removed, err := svc.DeleteContact(ctx, "5511")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	select {
	case evt := <-ch:
		if evt.Payload.(bus.ContactChanged).WaID != "5511" {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for contact.deleted")
	}

	msgs, err := svc.ListMessages(ctx, "5511", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after delete", len(msgs))
	}
}

func TestUpdateContactRejectsEmptyName(t *testing.T) {
	svc, _, _, _ := newService(t)
	empty := " "
	if _, err := svc.UpdateContact(context.Background(), "1", store.ContactUpdate{Name: &empty}); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
