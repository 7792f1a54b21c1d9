package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/botforge/flowbot/internal/gateway"
)

// Pager element ids embedded in generated component ids.
const (
	pagerPrev = "pg-prev"
	pagerNext = "pg-next"
)

// HandleComponent routes an interaction on a template message this service
// published: pager clicks and votes. Returns true when the interaction was
// consumed, so the processor skips flow matching for it. Everything else with
// a generated component id, modal submissions and clicks on flow-configured
// buttons included, falls through to flow matching.
//
// All routing context comes from the parsed component id; in particular the
// template id is always resolved from the identifier, never from ambient
// state.
func (e *Executor) HandleComponent(ctx context.Context, ev gateway.Event) bool {
	if !IsComponentID(ev.ComponentID) {
		return false
	}
	if ev.Kind != gateway.KindButtonClick {
		return false
	}
	cid, err := ParseComponentID(ev.ComponentID)
	if err != nil {
		slog.Warn("Executor ignoring malformed component id", "error", err, "component_id", ev.ComponentID)
		return true
	}

	if cid.ElementID == pagerPrev || cid.ElementID == pagerNext {
		if err := e.turnTemplatePage(ctx, ev, cid); err != nil {
			slog.Error("Executor template page turn failed", "error", err, "template_id", cid.TemplateID)
		}
		return true
	}

	// Votes only happen on messages published from a template. A click on any
	// other generated button belongs to the flow engine.
	link, err := e.store.GetMessageLink(ev.MessageID)
	if err != nil || link == nil {
		return false
	}
	if err := e.recordTemplateVote(ctx, ev, cid); err != nil {
		slog.Error("Executor template vote failed", "error", err, "template_id", cid.TemplateID)
	}
	return true
}

// turnTemplatePage re-renders the linked message at the adjacent page.
func (e *Executor) turnTemplatePage(ctx context.Context, ev gateway.Event, cid ComponentID) error {
	tpl, err := e.store.GetTemplate(cid.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %q: %w", cid.TemplateID, err)
	}

	page := cid.Page
	if link, err := e.store.GetMessageLink(ev.MessageID); err == nil && link != nil {
		page = link.Page
	}
	if cid.ElementID == pagerNext {
		page++
	} else {
		page--
	}
	if page < 0 {
		page = 0
	}
	if page > tpl.PageCount()-1 {
		page = tpl.PageCount() - 1
	}

	p := tpl.Page(page)
	rows := templateRows(tpl, page, p)
	embed := p.Embed
	if err := e.client.EditMessage(ctx, ev.ChannelID, ev.MessageID, "", &embed, rows); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if err := e.store.LinkMessage(ev.MessageID, tpl.ID, page); err != nil {
		slog.Error("Executor failed to update message link", "error", err, "message_id", ev.MessageID)
	}
	return nil
}

// recordTemplateVote stores a one-vote-per-user mark and refreshes the
// message footer with the running total.
func (e *Executor) recordTemplateVote(ctx context.Context, ev gateway.Event, cid ComponentID) error {
	first, err := e.store.RecordVote(cid.TemplateID, cid.ElementID, ev.AuthorID)
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	if !first {
		slog.Debug("Executor ignoring repeat vote", "template_id", cid.TemplateID, "user_id", ev.AuthorID)
		return nil
	}

	tpl, err := e.store.GetTemplate(cid.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %q: %w", cid.TemplateID, err)
	}
	counts, err := e.store.CountVotes(cid.TemplateID)
	if err != nil {
		return fmt.Errorf("count votes: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	p := tpl.Page(cid.Page)
	embed := p.Embed
	embed.Footer = fmt.Sprintf("%d votes", total)
	rows := templateRows(tpl, cid.Page, p)
	if err := e.client.EditMessage(ctx, ev.ChannelID, ev.MessageID, "", &embed, rows); err != nil {
		return fmt.Errorf("refresh vote footer: %w", err)
	}
	return nil
}
