// Package dedup provides in-memory idempotency guards for the event path.
//
// The gateway may deliver the same event more than once, and multiple logical
// handling paths can decide to respond to the same event concurrently. Every
// guard here is a synchronous test-and-insert under one mutex, so no window
// exists between check and mark; a second concurrent claim for the same key
// always fails.
package dedup

import (
	"log/slog"
	"sync"
	"time"
)

// claimRecord is one live claim. seq ties the record to its order slot, so a
// stale slot left behind by a re-claimed key can never evict the live claim.
type claimRecord struct {
	at  time.Time
	seq uint64
}

// orderSlot is one insertion-order bookkeeping entry.
type orderSlot struct {
	key string
	seq uint64
}

// Cache is a bounded TTL set of claimed keys. Entries expire after the TTL
// and the oldest entries are evicted first once the cap is exceeded.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	cap   int
	seen  map[string]claimRecord
	order []orderSlot // insertion order, for oldest-first eviction
	seq   uint64
	now   func() time.Time
}

// NewCache creates a Cache with the given TTL and maximum entry count.
func NewCache(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		ttl:  ttl,
		cap:  capacity,
		seen: make(map[string]claimRecord),
		now:  time.Now,
	}
}

// Claim atomically records the key as seen. It returns true when the caller
// won the claim, false when the key is already present and unexpired.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if rec, ok := c.seen[key]; ok {
		if now.Sub(rec.at) < c.ttl {
			return false
		}
		// Expired entry: claimable again. Its order slot keeps the old seq
		// and is skipped during eviction.
		delete(c.seen, key)
	}

	c.seq++
	c.seen[key] = claimRecord{at: now, seq: c.seq}
	c.order = append(c.order, orderSlot{key: key, seq: c.seq})
	c.evictLocked(now)
	return true
}

// Release removes a claimed key so it can be claimed again immediately.
// Releasing an unclaimed key is a no-op.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
}

// Len returns the number of live (unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, rec := range c.seen {
		if now.Sub(rec.at) < c.ttl {
			n++
		}
	}
	return n
}

// evictLocked drops expired entries and, if the cap is still exceeded, the
// oldest live entries. A slot whose seq no longer matches the live record is
// stale (its key was released or re-claimed) and only the slot is discarded.
// Caller must hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	// Drop expired and stale slots from the front of the order list.
	i := 0
	for ; i < len(c.order); i++ {
		slot := c.order[i]
		rec, ok := c.seen[slot.key]
		if !ok || rec.seq != slot.seq {
			continue
		}
		if now.Sub(rec.at) >= c.ttl {
			delete(c.seen, slot.key)
			continue
		}
		break
	}
	c.order = c.order[i:]

	for len(c.seen) > c.cap && len(c.order) > 0 {
		slot := c.order[0]
		c.order = c.order[1:]
		if rec, ok := c.seen[slot.key]; ok && rec.seq == slot.seq {
			delete(c.seen, slot.key)
			slog.Debug("dedup cache evicted oldest entry", "key", slot.key)
		}
	}
}

// Default layer parameters. Each layer is scoped and tuned independently.
const (
	// DefaultEventTTL bounds the global event-id window.
	DefaultEventTTL = 10 * time.Second
	// DefaultHandlerTTL bounds the per-bot handler window.
	DefaultHandlerTTL = 5 * time.Second
	// DefaultReplyTTL bounds the reply-sent window.
	DefaultReplyTTL = 10 * time.Second
	// DefaultCap bounds each layer's entry count; oldest entries are dropped
	// on overflow.
	DefaultCap = 512
)

// Guard layers three independent idempotency caches over the event path:
//
//   - event: duplicate gateway deliveries, across all consumers
//   - handler: reprocessing of an event by the same bot instance
//   - reply: two logical code paths both deciding to respond to one event
type Guard struct {
	event   *Cache
	handler *Cache
	reply   *Cache
}

// Option configures a Guard.
type Option func(*guardOpts)

type guardOpts struct {
	eventTTL, handlerTTL, replyTTL time.Duration
	cap                            int
}

// WithTTLs overrides the per-layer TTLs.
func WithTTLs(event, handler, reply time.Duration) Option {
	return func(o *guardOpts) {
		o.eventTTL, o.handlerTTL, o.replyTTL = event, handler, reply
	}
}

// WithCap overrides the per-layer entry cap.
func WithCap(capacity int) Option {
	return func(o *guardOpts) { o.cap = capacity }
}

// NewGuard creates a Guard with the default layer parameters.
func NewGuard(opts ...Option) *Guard {
	cfg := guardOpts{
		eventTTL:   DefaultEventTTL,
		handlerTTL: DefaultHandlerTTL,
		replyTTL:   DefaultReplyTTL,
		cap:        DefaultCap,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Guard{
		event:   NewCache(cfg.eventTTL, cfg.cap),
		handler: NewCache(cfg.handlerTTL, cfg.cap),
		reply:   NewCache(cfg.replyTTL, cfg.cap),
	}
}

// ClaimEvent claims the global event-id layer.
func (g *Guard) ClaimEvent(eventID string) bool {
	return g.event.Claim(eventID)
}

// ClaimHandler claims the per-bot handler layer.
func (g *Guard) ClaimHandler(botID, eventID string) bool {
	return g.handler.Claim(botID + ":" + eventID)
}

// ReleaseHandler releases the per-bot handler claim. It must run on every
// exit path of a handler, regardless of outcome.
func (g *Guard) ReleaseHandler(botID, eventID string) {
	g.handler.Release(botID + ":" + eventID)
}

// ClaimReply claims the reply-sent layer for an event, ensuring only one
// outbound response is attempted within the window.
func (g *Guard) ClaimReply(botID, eventID string) bool {
	return g.reply.Claim(botID + ":" + eventID)
}

// ReleaseReply removes a reply-sent claim after the underlying send failed,
// so the next delivery of the event can retry.
func (g *Guard) ReleaseReply(botID, eventID string) {
	g.reply.Release(botID + ":" + eventID)
}
