package ranking

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/wphook/internal/store"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func contact(id string, pinned bool, created time.Duration) store.Contact {
	return store.Contact{WaID: id, Name: id, IsPinned: pinned, CreatedAt: base.Add(created)}
}

func order(convs []Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.WaID
	}
	return out
}

func TestRankScenario(t *testing.T) {
	contacts := []store.Contact{
		contact("quiet-old", false, 0),
		contact("pinned-quiet", true, 0),
		contact("busy", false, 0),
		contact("quiet-new", false, time.Hour),
		contact("recent", false, 0),
		contact("pinned-busy", true, 0),
	}
	summaries := map[string]store.Summary{
		"busy":        {ConversationKey: "busy", LastMessage: "old", LastMessageTime: base.UnixMilli(), UnreadCount: 3},
		"recent":      {ConversationKey: "recent", LastMessage: "new", LastMessageTime: base.Add(time.Minute).UnixMilli()},
		"pinned-busy": {ConversationKey: "pinned-busy", LastMessage: "p", LastMessageTime: base.Add(-time.Hour).UnixMilli()},
	}

	got := order(Rank(contacts, summaries))
	want := []string{"pinned-busy", "pinned-quiet", "recent", "busy", "quiet-new", "quiet-old"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestRankDerivedFields(t *testing.T) {
	convs := Rank([]store.Contact{contact("a", false, 0), contact("b", false, 0)}, map[string]store.Summary{
		"a": {ConversationKey: "a", LastMessage: "hello", LastMessageTime: base.UnixMilli(), UnreadCount: 2},
	})
	if convs[0].WaID != "a" || convs[0].LastMessage != "hello" || convs[0].UnreadCount != 2 {
		t.Errorf("conversation a = %+v", convs[0])
	}
	if !convs[0].LastMessageTime.Equal(base) {
		t.Errorf("last message time = %v, want %v", convs[0].LastMessageTime, base)
	}
	if convs[1].LastMessageTime != nil || convs[1].UnreadCount != 0 {
		t.Errorf("conversation b should have no activity: %+v", convs[1])
	}
}

func TestRankPinnedAlwaysFirst(t *testing.T) {
	contacts := []store.Contact{contact("unpinned", false, time.Hour), contact("pinned", true, 0)}
	summaries := map[string]store.Summary{
		"unpinned": {ConversationKey: "unpinned", LastMessage: "x", LastMessageTime: base.Add(24 * time.Hour).UnixMilli()},
	}
	if got := Rank(contacts, summaries); got[0].WaID != "pinned" {
		t.Errorf("first = %q, want pinned", got[0].WaID)
	}
}

func TestRankPermutationInvariant(t *testing.T) {
	var contacts []store.Contact
	summaries := map[string]store.Summary{}
	for i := range 30 {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		// Duplicate times and creation dates force tie-breaking on wa_id.
		c := contact(id, i%7 == 0, time.Duration(i%3)*time.Minute)
		contacts = append(contacts, c)
		if i%2 == 0 {
			summaries[id] = store.Summary{ConversationKey: id, LastMessage: "m", LastMessageTime: base.Add(time.Duration(i%4) * time.Second).UnixMilli()}
		}
	}

	want := order(Rank(contacts, summaries))
	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := slices.Clone(contacts)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := order(Rank(shuffled, summaries)); !slices.Equal(got, want) {
			t.Fatalf("order depends on input order:\n got %v\nwant %v", got, want)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	contacts := []store.Contact{contact("b", false, 0), contact("a", true, 0)}
	Rank(contacts, nil)
	if contacts[0].WaID != "b" || contacts[1].WaID != "a" {
		t.Errorf("input reordered: %v", contacts)
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil, nil); len(got) != 0 {
		t.Errorf("Rank(nil) = %v, want empty", got)
	}
}
