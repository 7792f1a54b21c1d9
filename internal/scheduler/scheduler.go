// Package scheduler provides the poll loop driving time-based flows.
//
// It runs on its own fixed tick, independent of event ingestion, and fires
// `scheduled` flows directly through the action executor. Last-fired
// bookkeeping is in-memory only and pruned after an hour of inactivity.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"

	"github.com/botforge/flowbot/internal/engine"
	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
	"github.com/botforge/flowbot/internal/store"
)

const (
	// DefaultPollInterval is the tick period when none is configured.
	DefaultPollInterval = 30 * time.Second
	// firedRecordTTL prunes last-fired records after this much inactivity,
	// regardless of whether the flow is still enabled.
	firedRecordTTL = time.Hour
)

// botRuntime is one registered bot the scheduler evaluates each tick.
type botRuntime struct {
	client gateway.Client
	exec   *engine.Executor
}

// Scheduler polls every registered bot's scheduled flows and fires those
// whose schedule has elapsed.
type Scheduler struct {
	flows    *store.CachedFlows
	interval time.Duration
	cron     *cron.Cron
	fired    *gocache.Cache // flow id -> last-fired time.Time

	mu   sync.RWMutex
	bots map[string]botRuntime

	now func() time.Time
}

// New creates a Scheduler polling at the given interval (DefaultPollInterval
// when zero).
func New(flows *store.CachedFlows, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		flows:    flows,
		interval: interval,
		fired:    gocache.New(firedRecordTTL, 10*time.Minute),
		bots:     make(map[string]botRuntime),
		now:      time.Now,
	}
}

// AddBot registers a bot session for scheduled-flow evaluation.
func (s *Scheduler) AddBot(botID string, client gateway.Client, exec *engine.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[botID] = botRuntime{client: client, exec: exec}
}

// RemoveBot drops a bot from evaluation, after its session closed.
func (s *Scheduler) RemoveBot(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, botID)
}

// Start begins the poll loop. The tick runs under cron's panic recovery so a
// bad flow configuration never kills the process.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule poll job: %w", err)
	}
	c.Start()
	s.cron = c
	slog.Info("Scheduler started", "poll_interval", s.interval.String())
	return nil
}

// Stop halts the poll loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		slog.Info("Scheduler stopped")
	}
}

// Tick evaluates every registered bot's scheduled flows once.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.RLock()
	bots := make(map[string]botRuntime, len(s.bots))
	for id, rt := range s.bots {
		bots[id] = rt
	}
	s.mu.RUnlock()

	now := s.now()
	for botID, rt := range bots {
		for _, flow := range s.flows.Load(botID) {
			if flow.TriggerType != models.TriggerScheduled {
				continue
			}
			f := flow
			s.evaluate(ctx, botID, &f, rt, now)
		}
	}
}

// evaluate fires one scheduled flow if its schedule has elapsed.
func (s *Scheduler) evaluate(ctx context.Context, botID string, flow *models.Flow, rt botRuntime, now time.Time) {
	due := false
	switch flow.TriggerConfig.ScheduleType {
	case models.ScheduleInterval:
		due = s.intervalDue(flow, now)
	case models.ScheduleTime:
		due = s.timeOfDayDue(flow, now)
	default:
		slog.Warn("Scheduler skipping flow with unknown schedule type",
			"flow_id", flow.ID, "schedule_type", flow.TriggerConfig.ScheduleType)
		return
	}
	if !due {
		return
	}

	channel := s.resolveChannel(ctx, flow, rt)
	if channel == "" {
		// Do not record the firing, so the next tick retries once the
		// configuration is fixed.
		slog.Warn("Scheduler skipping due flow: no channel resolved", "flow_id", flow.ID, "bot_id", botID)
		return
	}

	slog.Info("Scheduler firing flow", "flow_id", flow.ID, "flow_name", flow.Name, "bot_id", botID)
	s.fired.Set(flow.ID, now, gocache.DefaultExpiration)
	rt.exec.Execute(ctx, flow, nil, nil, channel)
}

// intervalDue implements delta-based interval schedules: fire immediately on
// first observation, thereafter once the configured minutes have elapsed.
// Delta comparison keeps the schedule robust to poll-period changes.
func (s *Scheduler) intervalDue(flow *models.Flow, now time.Time) bool {
	minutes := flow.TriggerConfig.IntervalMinutes
	if minutes <= 0 {
		slog.Warn("Scheduler interval flow without interval_minutes", "flow_id", flow.ID)
		return false
	}
	last, ok := s.lastFired(flow.ID)
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(minutes)*time.Minute
}

// timeOfDayDue fires during the tick whose local HH:MM equals the configured
// time, at most once per calendar minute, optionally restricted to a weekday
// set or a single date.
func (s *Scheduler) timeOfDayDue(flow *models.Flow, now time.Time) bool {
	cfg := flow.TriggerConfig
	if now.Format("15:04") != cfg.Time {
		return false
	}
	if len(cfg.Days) > 0 {
		match := false
		for _, d := range cfg.Days {
			if d == int(now.Weekday()) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if cfg.Date != "" && now.Format("2006-01-02") != cfg.Date {
		return false
	}
	// Sub-minute polling must not refire within the same calendar minute.
	if last, ok := s.lastFired(flow.ID); ok {
		if last.Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
			return false
		}
	}
	return true
}

func (s *Scheduler) lastFired(flowID string) (time.Time, bool) {
	v, ok := s.fired.Get(flowID)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// resolveChannel picks the target channel of a fired flow: the first
// send-capable action's configured channel, else the first joined guild's
// system channel.
func (s *Scheduler) resolveChannel(ctx context.Context, flow *models.Flow, rt botRuntime) string {
	for _, action := range flow.Actions {
		if action.SendCapable() && action.ChannelID() != "" {
			return action.ChannelID()
		}
	}
	guilds, err := rt.client.Guilds(ctx)
	if err != nil {
		slog.Debug("Scheduler guild lookup failed", "error", err, "flow_id", flow.ID)
		return ""
	}
	if len(guilds) > 0 {
		return guilds[0].SystemChannelID
	}
	return ""
}
