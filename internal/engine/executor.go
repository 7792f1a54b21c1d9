package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/genai"
	"github.com/botforge/flowbot/internal/models"
	"github.com/botforge/flowbot/internal/store"
)

// Result summarizes one flow execution.
type Result struct {
	// Sends counts successful outbound operations.
	Sends int
	// Failures counts actions that errored and were skipped.
	Failures int
}

// Executor runs a flow's actions, in order, against one bot's gateway client.
// Execution is best-effort: a failing action is logged and skipped, the rest
// of the list still runs. There is no rollback and no atomicity across the
// list; the next triggering event retries naturally.
type Executor struct {
	botID     string
	client    gateway.Client
	store     store.Store
	responder genai.Responder // nil disables ai_response

	mu         sync.Mutex
	guildNames map[string]string // guild id -> name, lazily populated
}

// NewExecutor creates an Executor for one bot session. responder may be nil,
// in which case ai_response actions are skipped.
func NewExecutor(botID string, client gateway.Client, st store.Store, responder genai.Responder) *Executor {
	return &Executor{
		botID:      botID,
		client:     client,
		store:      st,
		responder:  responder,
		guildNames: make(map[string]string),
	}
}

// Execute runs flow.Actions strictly in order. ev and actor may be nil for
// scheduler-fired flows; defaultChannel is the fallback channel for callers
// without an originating message (scheduler, member-join path).
func (e *Executor) Execute(ctx context.Context, flow *models.Flow, ev *gateway.Event, actor *gateway.Actor, defaultChannel string) Result {
	var res Result
	for i, action := range flow.Actions {
		sent, err := e.runAction(ctx, flow, action, ev, actor, defaultChannel)
		if err != nil {
			res.Failures++
			slog.Error("Executor action failed, continuing",
				"error", err, "flow_id", flow.ID, "action_index", i, "action_type", action.Type)
			continue
		}
		if sent {
			res.Sends++
		}
	}
	slog.Debug("Executor flow finished", "flow_id", flow.ID, "sends", res.Sends, "failures", res.Failures)
	return res
}

// resolveChannel applies the channel precedence: explicit action config, then
// the triggering event's channel, then the caller-supplied default.
func resolveChannel(action models.Action, ev *gateway.Event, defaultChannel string) string {
	if ch := action.ChannelID(); ch != "" {
		return ch
	}
	if ev != nil && ev.ChannelID != "" {
		return ev.ChannelID
	}
	return defaultChannel
}

// substitute performs plain token replacement of the supported placeholders.
// This is deliberately not a templating language.
func (e *Executor) substitute(ctx context.Context, text string, ev *gateway.Event, actor *gateway.Actor) string {
	if !strings.Contains(text, "{") {
		return text
	}
	user, mention, server := "", "", ""
	if actor != nil {
		user = actor.Username
		mention = "<@" + actor.ID + ">"
	} else if ev != nil {
		user = ev.AuthorName
		mention = "<@" + ev.AuthorID + ">"
	}
	if ev != nil {
		server = e.guildName(ctx, ev.GuildID)
	}
	text = strings.ReplaceAll(text, "{user}", user)
	text = strings.ReplaceAll(text, "{mention}", mention)
	text = strings.ReplaceAll(text, "{server}", server)
	return text
}

func (e *Executor) guildName(ctx context.Context, guildID string) string {
	if guildID == "" {
		return ""
	}
	e.mu.Lock()
	name, ok := e.guildNames[guildID]
	e.mu.Unlock()
	if ok {
		return name
	}
	guilds, err := e.client.Guilds(ctx)
	if err != nil {
		slog.Debug("Executor guild lookup failed", "error", err, "guild_id", guildID)
		return ""
	}
	e.mu.Lock()
	for _, g := range guilds {
		e.guildNames[g.ID] = g.Name
	}
	name = e.guildNames[guildID]
	e.mu.Unlock()
	return name
}

// runAction dispatches one action. It returns whether a successful outbound
// send happened, so the caller can maintain the reply-sent dedup record.
func (e *Executor) runAction(ctx context.Context, flow *models.Flow, action models.Action, ev *gateway.Event, actor *gateway.Actor, defaultChannel string) (bool, error) {
	switch action.Type {
	case models.ActionSendMessage:
		channel := resolveChannel(action, ev, defaultChannel)
		if channel == "" {
			slog.Warn("Executor skipping send_message: no channel resolved", "flow_id", flow.ID)
			return false, nil
		}
		text := e.substitute(ctx, action.Message.Text, ev, actor)
		if _, err := e.client.SendMessage(ctx, channel, text); err != nil {
			return false, fmt.Errorf("send_message: %w", err)
		}
		return true, nil

	case models.ActionSendDM:
		userID := ""
		if actor != nil {
			userID = actor.ID
		} else if ev != nil {
			userID = ev.AuthorID
		}
		if userID == "" {
			slog.Warn("Executor skipping send_dm: no recipient", "flow_id", flow.ID)
			return false, nil
		}
		text := e.substitute(ctx, action.Message.Text, ev, actor)
		if err := e.client.SendDM(ctx, userID, text); err != nil {
			return false, fmt.Errorf("send_dm: %w", err)
		}
		return true, nil

	case models.ActionSendEmbed:
		channel := resolveChannel(action, ev, defaultChannel)
		if channel == "" {
			slog.Warn("Executor skipping send_embed: no channel resolved", "flow_id", flow.ID)
			return false, nil
		}
		embed := action.EmbedMsg.Embed
		embed.Title = e.substitute(ctx, embed.Title, ev, actor)
		embed.Description = e.substitute(ctx, embed.Description, ev, actor)
		if _, err := e.client.SendEmbed(ctx, channel, "", &embed); err != nil {
			return false, fmt.Errorf("send_embed: %w", err)
		}
		return true, nil

	case models.ActionAssignRole:
		return e.runRoleChange(ctx, flow, action, ev, actor)

	case models.ActionPingRole:
		channel := resolveChannel(action, ev, defaultChannel)
		if channel == "" {
			slog.Warn("Executor skipping ping_role: no channel resolved", "flow_id", flow.ID)
			return false, nil
		}
		text := "<@&" + action.Role.RoleID + ">"
		if action.Role.Text != "" {
			text += " " + e.substitute(ctx, action.Role.Text, ev, actor)
		}
		if _, err := e.client.SendMessage(ctx, channel, text); err != nil {
			return false, fmt.Errorf("ping_role: %w", err)
		}
		return true, nil

	case models.ActionSendButtons:
		channel := resolveChannel(action, ev, defaultChannel)
		if channel == "" {
			slog.Warn("Executor skipping send_buttons: no channel resolved", "flow_id", flow.ID)
			return false, nil
		}
		cfg := action.Buttons
		row := gateway.ComponentRow{Buttons: encodeButtons(flow.ID, 0, cfg.Buttons)}
		text := e.substitute(ctx, cfg.Text, ev, actor)
		if _, err := e.client.SendComponents(ctx, channel, text, cfg.Embed, []gateway.ComponentRow{row}); err != nil {
			return false, fmt.Errorf("send_buttons: %w", err)
		}
		return true, nil

	case models.ActionSendSelectMenu:
		channel := resolveChannel(action, ev, defaultChannel)
		if channel == "" {
			slog.Warn("Executor skipping send_select_menu: no channel resolved", "flow_id", flow.ID)
			return false, nil
		}
		cfg := action.SelectMenu
		sel := &models.SelectMenuConfig{Placeholder: cfg.Placeholder, Options: cfg.Options}
		text := e.substitute(ctx, cfg.Text, ev, actor)
		if _, err := e.client.SendComponents(ctx, channel, text, nil, []gateway.ComponentRow{{Select: sel}}); err != nil {
			return false, fmt.Errorf("send_select_menu: %w", err)
		}
		return true, nil

	case models.ActionOpenModal:
		if ev == nil || ev.ComponentID == "" {
			slog.Warn("Executor skipping open_modal: no originating interaction", "flow_id", flow.ID)
			return false, nil
		}
		customID := EncodeComponentID(flow.ID, 0, "modal")
		if err := e.client.OpenModal(ctx, ev.ID, *action.Modal, customID); err != nil {
			return false, fmt.Errorf("open_modal: %w", err)
		}
		return true, nil

	case models.ActionSendTemplate:
		return e.runSendTemplate(ctx, flow, action, ev, defaultChannel)

	case models.ActionAIResponse:
		return e.runAIResponse(ctx, flow, action, ev, defaultChannel)

	default:
		slog.Warn("Executor skipping unknown action type", "flow_id", flow.ID, "action_type", action.Type)
		return false, nil
	}
}

func (e *Executor) runRoleChange(ctx context.Context, flow *models.Flow, action models.Action, ev *gateway.Event, actor *gateway.Actor) (bool, error) {
	if ev == nil || ev.GuildID == "" {
		slog.Warn("Executor skipping assign_role: no guild context", "flow_id", flow.ID)
		return false, nil
	}
	userID := ev.AuthorID
	if actor != nil {
		userID = actor.ID
	}
	if userID == "" {
		slog.Warn("Executor skipping assign_role: no target user", "flow_id", flow.ID)
		return false, nil
	}
	if action.Role.Remove {
		if err := e.client.RemoveRole(ctx, ev.GuildID, userID, action.Role.RoleID); err != nil {
			return false, fmt.Errorf("assign_role remove: %w", err)
		}
	} else {
		if err := e.client.AddRole(ctx, ev.GuildID, userID, action.Role.RoleID); err != nil {
			return false, fmt.Errorf("assign_role add: %w", err)
		}
	}
	// Role changes are side effects but not channel sends.
	return false, nil
}

// runSendTemplate renders the first page of a stored template and records the
// published message's link back to it.
func (e *Executor) runSendTemplate(ctx context.Context, flow *models.Flow, action models.Action, ev *gateway.Event, defaultChannel string) (bool, error) {
	channel := resolveChannel(action, ev, defaultChannel)
	if channel == "" {
		slog.Warn("Executor skipping send_template: no channel resolved", "flow_id", flow.ID)
		return false, nil
	}
	tpl, err := e.store.GetTemplate(action.Template.TemplateID)
	if err != nil {
		return false, fmt.Errorf("send_template load %q: %w", action.Template.TemplateID, err)
	}
	msgID, err := e.sendTemplatePage(ctx, channel, tpl, 0)
	if err != nil {
		return false, fmt.Errorf("send_template: %w", err)
	}
	if err := e.store.LinkMessage(msgID, tpl.ID, 0); err != nil {
		slog.Error("Executor failed to link template message", "error", err, "template_id", tpl.ID)
	}
	return true, nil
}

// sendTemplatePage posts one page of a template with its buttons and, for
// multi-page templates, pager controls. Returns the published message id.
func (e *Executor) sendTemplatePage(ctx context.Context, channel string, tpl *models.Template, page int) (string, error) {
	p := tpl.Page(page)
	rows := templateRows(tpl, page, p)
	embed := p.Embed
	return e.client.SendComponents(ctx, channel, "", &embed, rows)
}

// templateRows builds the component rows of a template page: configured
// buttons first, then pager controls when the template has several pages.
func templateRows(tpl *models.Template, page int, p models.TemplatePage) []gateway.ComponentRow {
	var rows []gateway.ComponentRow
	if len(p.Buttons) > 0 {
		rows = append(rows, gateway.ComponentRow{Buttons: encodeButtons(tpl.ID, page, p.Buttons)})
	}
	if tpl.PageCount() > 1 {
		pager := []models.Button{
			{Label: "◀", ID: EncodeComponentID(tpl.ID, page, pagerPrev), Disable: page == 0},
			{Label: "▶", ID: EncodeComponentID(tpl.ID, page, pagerNext), Disable: page == tpl.PageCount()-1},
		}
		rows = append(rows, gateway.ComponentRow{Buttons: pager})
	}
	return rows
}

// encodeButtons rewrites button ids into routable component ids.
func encodeButtons(scope string, page int, buttons []models.Button) []models.Button {
	out := make([]models.Button, len(buttons))
	for i, b := range buttons {
		out[i] = b
		if b.URL == "" {
			out[i].ID = EncodeComponentID(scope, page, b.ID)
		}
	}
	return out
}

func (e *Executor) runAIResponse(ctx context.Context, flow *models.Flow, action models.Action, ev *gateway.Event, defaultChannel string) (bool, error) {
	if e.responder == nil {
		slog.Debug("Executor skipping ai_response: no responder configured", "flow_id", flow.ID)
		return false, nil
	}
	if ev == nil || ev.Text == "" {
		slog.Debug("Executor skipping ai_response: no message text", "flow_id", flow.ID)
		return false, nil
	}
	channel := resolveChannel(action, ev, defaultChannel)
	if channel == "" {
		slog.Warn("Executor skipping ai_response: no channel resolved", "flow_id", flow.ID)
		return false, nil
	}
	reply, err := e.responder.Respond(ctx, genai.Request{Message: ev.Text, BotID: e.botID})
	if err != nil || reply == "" {
		// A failed or empty generation produces silent non-response in chat.
		if err != nil {
			slog.Error("Executor ai_response generation failed", "error", err, "flow_id", flow.ID)
		}
		return false, nil
	}
	if _, err := e.client.SendMessage(ctx, channel, reply); err != nil {
		return false, fmt.Errorf("ai_response send: %w", err)
	}
	return true, nil
}
