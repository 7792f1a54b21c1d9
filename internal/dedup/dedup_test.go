package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestClaimIsExclusive(t *testing.T) {
	c := NewCache(time.Second, 10)
	if !c.Claim("evt-1") {
		t.Fatal("first claim should succeed")
	}
	if c.Claim("evt-1") {
		t.Error("second claim of same key should fail")
	}
	if !c.Claim("evt-2") {
		t.Error("claim of unrelated key should succeed")
	}
}

func TestClaimExpiresAfterTTL(t *testing.T) {
	now := time.Now()
	c := NewCache(5*time.Second, 10)
	c.now = func() time.Time { return now }

	if !c.Claim("evt-1") {
		t.Fatal("first claim should succeed")
	}
	now = now.Add(4 * time.Second)
	if c.Claim("evt-1") {
		t.Error("claim inside TTL should fail")
	}
	now = now.Add(2 * time.Second)
	if !c.Claim("evt-1") {
		t.Error("claim after TTL should succeed again")
	}
}

func TestReleaseMakesKeyClaimable(t *testing.T) {
	c := NewCache(time.Minute, 10)
	if !c.Claim("evt-1") {
		t.Fatal("first claim should succeed")
	}
	c.Release("evt-1")
	if !c.Claim("evt-1") {
		t.Error("claim after release should succeed")
	}
	// Releasing an unclaimed key must be harmless.
	c.Release("never-claimed")
}

func TestOldestEvictedOnOverflow(t *testing.T) {
	c := NewCache(time.Minute, 3)
	for i := 0; i < 4; i++ {
		if !c.Claim(fmt.Sprintf("evt-%d", i)) {
			t.Fatalf("claim %d should succeed", i)
		}
	}
	// evt-0 was the oldest entry and must have been evicted.
	if !c.Claim("evt-0") {
		t.Error("oldest key should be claimable again after eviction")
	}
	if c.Claim("evt-3") {
		t.Error("newest key should still be held")
	}
}

func TestReclaimedKeySurvivesOverflowEviction(t *testing.T) {
	// An expired key that is claimed again leaves a stale slot at its old
	// position in the insertion order. With a live entry between the stale
	// slot and the re-claim, cap pressure must evict that oldest live entry,
	// not the re-claim via its stale slot. Otherwise a duplicate claim of the
	// re-claimed key succeeds inside its TTL window.
	now := time.Now()
	c := NewCache(10*time.Second, 2)
	c.now = func() time.Time { return now }

	if !c.Claim("evt-x") {
		t.Fatal("first claim should succeed")
	}
	now = now.Add(5 * time.Second)
	if !c.Claim("evt-y") {
		t.Fatal("claim of second key should succeed")
	}
	now = now.Add(6 * time.Second)
	if !c.Claim("evt-x") {
		t.Fatal("claim after expiry should succeed")
	}
	// Overflow: evt-y is the oldest live entry and must be the one evicted.
	c.Claim("evt-z")

	if c.Claim("evt-x") {
		t.Error("duplicate claim succeeded within the TTL window")
	}
	if !c.Claim("evt-y") {
		t.Error("oldest live key should have been the evicted one")
	}
}

func TestReleasedKeySlotDoesNotEvictNewClaim(t *testing.T) {
	// Same shape via Release: the released key's old slot sits behind a live
	// front entry and must not evict the later claim of the same key ahead of
	// older live entries.
	c := NewCache(time.Minute, 2)

	c.Claim("evt-y")
	if !c.Claim("evt-x") {
		t.Fatal("first claim should succeed")
	}
	c.Release("evt-x")
	c.Claim("evt-a")
	if !c.Claim("evt-x") {
		t.Fatal("claim after release should succeed")
	}
	c.Claim("evt-z")

	if c.Claim("evt-x") {
		t.Error("duplicate claim succeeded after overflow eviction")
	}
	if !c.Claim("evt-a") {
		t.Error("oldest live key should have been the evicted one")
	}
}

func TestLenCountsLiveEntries(t *testing.T) {
	now := time.Now()
	c := NewCache(5*time.Second, 10)
	c.now = func() time.Time { return now }

	c.Claim("a")
	c.Claim("b")
	if got := c.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
	now = now.Add(6 * time.Second)
	if got := c.Len(); got != 0 {
		t.Errorf("Len after expiry = %d, want 0", got)
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	c := NewCache(time.Minute, 1024)
	const goroutines = 64

	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.Claim("contested") {
				wins <- struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("expected exactly one winning claim, got %d", won)
	}
}

func TestGuardLayersAreIndependent(t *testing.T) {
	g := NewGuard()

	if !g.ClaimEvent("evt-1") {
		t.Fatal("event claim should succeed")
	}
	if !g.ClaimHandler("bot-a", "evt-1") {
		t.Error("handler claim should succeed despite event claim")
	}
	if !g.ClaimReply("bot-a", "evt-1") {
		t.Error("reply claim should succeed despite other layers")
	}
	// Same event id under a different bot gets its own handler claim.
	if !g.ClaimHandler("bot-b", "evt-1") {
		t.Error("handler layer must be scoped per bot")
	}
	if g.ClaimHandler("bot-a", "evt-1") {
		t.Error("repeated handler claim should fail")
	}
}

func TestGuardReplyRetryAfterSendFailure(t *testing.T) {
	g := NewGuard()

	if !g.ClaimReply("bot-a", "evt-1") {
		t.Fatal("reply claim should succeed")
	}
	// A failed send removes the sent record so the event is retryable.
	g.ReleaseReply("bot-a", "evt-1")
	if !g.ClaimReply("bot-a", "evt-1") {
		t.Error("reply should be claimable again after release")
	}
}

func TestGuardHandlerReleaseOnExit(t *testing.T) {
	g := NewGuard()

	handle := func(eventID string) {
		if !g.ClaimHandler("bot-a", eventID) {
			t.Fatalf("handler claim for %s should succeed", eventID)
		}
		defer g.ReleaseHandler("bot-a", eventID)
	}
	handle("evt-1")
	// Release on exit means the same event can be handled again, leaving the
	// event-id and reply layers to suppress actual duplicates.
	if !g.ClaimHandler("bot-a", "evt-1") {
		t.Error("handler claim should succeed after prior handler exited")
	}
}
