package store

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/botforge/flowbot/internal/models"
)

// FlowCacheTTL is how long a per-bot flow list is served without refetching.
// Dashboard writes bust the cache explicitly through Invalidate.
const FlowCacheTTL = 30 * time.Second

// CachedFlows wraps a Store with a per-bot flow cache. A cache entry younger
// than FlowCacheTTL is served directly; otherwise the list is refetched
// synchronously. A fetch failure degrades to an empty list and a log line,
// never an error into the event loop.
type CachedFlows struct {
	store Store
	cache *gocache.Cache
}

// NewCachedFlows creates the cache wrapper around a Store.
func NewCachedFlows(s Store) *CachedFlows {
	return &CachedFlows{
		store: s,
		cache: gocache.New(FlowCacheTTL, 2*FlowCacheTTL),
	}
}

// Load returns the enabled flows of a bot, ascending by priority. It never
// returns an error: persistence failures yield an empty list for this cycle.
func (c *CachedFlows) Load(botID string) []models.Flow {
	if cached, ok := c.cache.Get(botID); ok {
		return cached.([]models.Flow)
	}

	flows, err := c.store.ListFlows(botID)
	if err != nil {
		slog.Error("CachedFlows load failed, serving no flows this cycle", "error", err, "bot_id", botID)
		return nil
	}
	c.cache.Set(botID, flows, gocache.DefaultExpiration)
	slog.Debug("CachedFlows refreshed", "bot_id", botID, "count", len(flows))
	return flows
}

// Invalidate drops the cached list of one bot, forcing a refetch on the next
// Load. Callers invoke it after a flow write.
func (c *CachedFlows) Invalidate(botID string) {
	c.cache.Delete(botID)
	slog.Debug("CachedFlows invalidated", "bot_id", botID)
}

// InvalidateAll drops every cached flow list.
func (c *CachedFlows) InvalidateAll() {
	c.cache.Flush()
	slog.Debug("CachedFlows invalidated all entries")
}
