package engine

import (
	"context"
	"log/slog"

	"github.com/botforge/flowbot/internal/dedup"
	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
	"github.com/botforge/flowbot/internal/store"
)

// Processor drives the full event path of one bot: dedup claim, cached flow
// load, first-match-wins selection and action execution. The dedup guard is
// shared across processors so the global event-id layer spans all consumers.
type Processor struct {
	botID  string
	client gateway.Client
	flows  *store.CachedFlows
	guard  *dedup.Guard
	exec   *Executor
}

// NewProcessor wires the event path of one bot.
func NewProcessor(botID string, client gateway.Client, flows *store.CachedFlows, guard *dedup.Guard, exec *Executor) *Processor {
	return &Processor{
		botID:  botID,
		client: client,
		flows:  flows,
		guard:  guard,
		exec:   exec,
	}
}

// Run consumes gateway deliveries until the context ends or the event
// channel closes. A panic inside one event's handling is contained so the
// host process survives bad flow configurations.
func (p *Processor) Run(ctx context.Context) {
	slog.Info("Processor started", "bot_id", p.botID)
	defer slog.Info("Processor stopped", "bot_id", p.botID)

	for {
		select {
		case ev, ok := <-p.client.Events():
			if !ok {
				slog.Debug("Processor event channel closed", "bot_id", p.botID)
				return
			}
			p.handleSafely(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Processor) handleSafely(ctx context.Context, ev gateway.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Processor recovered from panic in event handling",
				"panic", r, "bot_id", p.botID, "event_id", ev.ID)
		}
	}()
	p.HandleEvent(ctx, ev)
}

// HandleEvent runs one delivery through the dedup layers and the flow engine.
// At most one flow executes per event; duplicate deliveries within the dedup
// window cause no side effects at all.
func (p *Processor) HandleEvent(ctx context.Context, ev gateway.Event) {
	if ev.ID == "" {
		slog.Warn("Processor dropping event without id", "bot_id", p.botID)
		return
	}

	// Layer (a): duplicate gateway deliveries, across all consumers.
	if !p.guard.ClaimEvent(ev.ID) {
		slog.Debug("Processor suppressing duplicate delivery", "bot_id", p.botID, "event_id", ev.ID)
		return
	}
	// Layer (b): reprocessing by this bot instance. Released on every exit
	// path; the event-id and reply layers keep suppressing duplicates.
	if !p.guard.ClaimHandler(p.botID, ev.ID) {
		slog.Debug("Processor event already in flight", "bot_id", p.botID, "event_id", ev.ID)
		return
	}
	defer p.guard.ReleaseHandler(p.botID, ev.ID)

	// Interactions on components this service generated (template pagers,
	// votes) are routed directly, outside flow matching.
	if ev.ComponentID != "" && p.exec.HandleComponent(ctx, ev) {
		return
	}

	kind := Classify(ev)
	if kind == "" {
		slog.Debug("Processor ignoring unclassifiable event", "bot_id", p.botID, "kind", ev.Kind)
		return
	}

	actor := p.resolveActor(ctx, ev)
	flows := p.flows.Load(p.botID)

	// Flows arrive ordered by priority; the first full match wins.
	for i := range flows {
		flow := &flows[i]
		if flow.TriggerType == models.TriggerScheduled {
			continue
		}
		if !Matches(flow, ev, kind) {
			continue
		}
		if !p.correlatesComponent(flow, ev) {
			continue
		}
		if !Passes(flow, ev, actor) {
			continue
		}

		p.fire(ctx, flow, ev, actor)
		return
	}
	slog.Debug("Processor no flow matched", "bot_id", p.botID, "event_id", ev.ID, "kind", kind)
}

// correlatesComponent applies the identity check the matcher leaves to its
// caller: a component-triggered flow with a configured component id only
// fires for that id.
func (p *Processor) correlatesComponent(flow *models.Flow, ev gateway.Event) bool {
	expected := flow.TriggerConfig.ComponentID
	if expected == "" {
		return true
	}
	if ev.ComponentID == expected {
		return true
	}
	if cid, err := ParseComponentID(ev.ComponentID); err == nil {
		return cid.ElementID == expected
	}
	return false
}

// fire executes the selected flow under the reply-sent layer, so two logical
// paths deciding to respond to the same event produce one outbound send.
func (p *Processor) fire(ctx context.Context, flow *models.Flow, ev gateway.Event, actor *gateway.Actor) {
	// Layer (c): reply-sent.
	if !p.guard.ClaimReply(p.botID, ev.ID) {
		slog.Debug("Processor reply already sent for event", "bot_id", p.botID, "event_id", ev.ID)
		return
	}

	defaultChannel := ""
	if ev.Kind == gateway.KindMemberJoin {
		defaultChannel = p.systemChannel(ctx, ev.GuildID)
	}

	slog.Info("Processor executing flow",
		"bot_id", p.botID, "flow_id", flow.ID, "flow_name", flow.Name, "event_id", ev.ID)
	res := p.exec.Execute(ctx, flow, &ev, actor, defaultChannel)

	// A send that failed must not pin the sent record, so the next delivery
	// of this event can retry.
	if res.Sends == 0 && res.Failures > 0 {
		p.guard.ReleaseReply(p.botID, ev.ID)
	}
}

func (p *Processor) resolveActor(ctx context.Context, ev gateway.Event) *gateway.Actor {
	if ev.AuthorID == "" {
		return nil
	}
	actor, err := p.client.Actor(ctx, ev)
	if err != nil {
		slog.Debug("Processor actor resolution failed", "error", err, "bot_id", p.botID, "author_id", ev.AuthorID)
		return nil
	}
	return &actor
}

func (p *Processor) systemChannel(ctx context.Context, guildID string) string {
	guilds, err := p.client.Guilds(ctx)
	if err != nil {
		slog.Debug("Processor guild lookup failed", "error", err, "bot_id", p.botID)
		return ""
	}
	for _, g := range guilds {
		if g.ID == guildID {
			return g.SystemChannelID
		}
	}
	return ""
}
