package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/botforge/flowbot/internal/models"
)

// countingStore wraps InMemoryStore and counts ListFlows calls.
type countingStore struct {
	*InMemoryStore
	mu    sync.Mutex
	calls int
}

func (c *countingStore) ListFlows(botID string) ([]models.Flow, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.InMemoryStore.ListFlows(botID)
}

func (c *countingStore) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCachedFlowsServesFromCache(t *testing.T) {
	cs := &countingStore{InMemoryStore: NewInMemoryStore()}
	cs.AddFlow(models.Flow{ID: "f1", BotID: "bot-a", Enabled: true, TriggerType: models.TriggerNewMessage})
	cached := NewCachedFlows(cs)

	first := cached.Load("bot-a")
	second := cached.Load("bot-a")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one flow, got %d then %d", len(first), len(second))
	}
	if got := cs.callCount(); got != 1 {
		t.Errorf("expected a single store fetch, got %d", got)
	}
}

func TestCachedFlowsInvalidateForcesRefetch(t *testing.T) {
	cs := &countingStore{InMemoryStore: NewInMemoryStore()}
	cs.AddFlow(models.Flow{ID: "f1", BotID: "bot-a", Enabled: true, TriggerType: models.TriggerNewMessage})
	cached := NewCachedFlows(cs)

	cached.Load("bot-a")
	cs.AddFlow(models.Flow{ID: "f2", BotID: "bot-a", Enabled: true, TriggerType: models.TriggerNewMessage})

	if got := cached.Load("bot-a"); len(got) != 1 {
		t.Fatalf("stale cache expected before invalidation, got %d flows", len(got))
	}
	cached.Invalidate("bot-a")
	if got := cached.Load("bot-a"); len(got) != 2 {
		t.Errorf("expected refetched list of 2 flows, got %d", len(got))
	}
	if got := cs.callCount(); got != 2 {
		t.Errorf("expected two store fetches, got %d", got)
	}
}

func TestCachedFlowsDegradesToEmptyOnError(t *testing.T) {
	ms := NewInMemoryStore()
	ms.FailList = errors.New("connection refused")
	cached := NewCachedFlows(ms)

	if got := cached.Load("bot-a"); got != nil {
		t.Errorf("expected nil flow list on store failure, got %v", got)
	}
}

func TestListFlowsOrderAndEnabledFilter(t *testing.T) {
	ms := NewInMemoryStore()
	ms.AddFlow(models.Flow{ID: "p5", BotID: "b", Enabled: true, Priority: 5, TriggerType: models.TriggerNewMessage})
	ms.AddFlow(models.Flow{ID: "p1", BotID: "b", Enabled: true, Priority: 1, TriggerType: models.TriggerNewMessage})
	ms.AddFlow(models.Flow{ID: "p3", BotID: "b", Enabled: true, Priority: 3, TriggerType: models.TriggerNewMessage})
	ms.AddFlow(models.Flow{ID: "off", BotID: "b", Enabled: false, Priority: 0, TriggerType: models.TriggerNewMessage})

	flows, err := ms.ListFlows("b")
	if err != nil {
		t.Fatalf("ListFlows failed: %v", err)
	}
	if len(flows) != 3 {
		t.Fatalf("expected 3 enabled flows, got %d", len(flows))
	}
	want := []string{"p1", "p3", "p5"}
	for i, id := range want {
		if flows[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, flows[i].ID)
		}
	}
}

func TestInMemoryVotes(t *testing.T) {
	ms := NewInMemoryStore()
	first, err := ms.RecordVote("tpl-1", "opt-a", "user-1")
	if err != nil || !first {
		t.Fatalf("first vote should be recorded, got %v %v", first, err)
	}
	again, err := ms.RecordVote("tpl-1", "opt-b", "user-1")
	if err != nil || again {
		t.Errorf("second vote by same user should be rejected, got %v %v", again, err)
	}
	counts, err := ms.CountVotes("tpl-1")
	if err != nil {
		t.Fatalf("CountVotes failed: %v", err)
	}
	if counts["opt-a"] != 1 || counts["opt-b"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
