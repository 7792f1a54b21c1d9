// Package models defines the action catalog for flowbot.
//
// Actions form a closed tagged union: every action type owns its config
// schema. Decoding happens at the persistence boundary and fails closed, so a
// malformed or unrecognized action is logged and skipped rather than carried
// into the engine.
package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ActionType identifies one unit of externally-visible work a flow performs.
type ActionType string

const (
	ActionSendMessage    ActionType = "send_message"
	ActionSendEmbed      ActionType = "send_embed"
	ActionSendDM         ActionType = "send_dm"
	ActionAssignRole     ActionType = "assign_role"
	ActionPingRole       ActionType = "ping_role"
	ActionSendButtons    ActionType = "send_buttons"
	ActionSendSelectMenu ActionType = "send_select_menu"
	ActionOpenModal      ActionType = "open_modal"
	ActionSendTemplate   ActionType = "send_template"
	ActionAIResponse     ActionType = "ai_response"
)

// IsValidActionType checks if the given action type is supported.
func IsValidActionType(at ActionType) bool {
	switch at {
	case ActionSendMessage, ActionSendEmbed, ActionSendDM, ActionAssignRole,
		ActionPingRole, ActionSendButtons, ActionSendSelectMenu, ActionOpenModal,
		ActionSendTemplate, ActionAIResponse:
		return true
	default:
		return false
	}
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed describes a rich embed message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Image       string       `json:"image,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   bool         `json:"timestamp,omitempty"`
}

// Button is one interactive button definition.
type Button struct {
	Label   string `json:"label"`
	Style   string `json:"style,omitempty"`
	Emoji   string `json:"emoji,omitempty"`
	ID      string `json:"id"`
	URL     string `json:"url,omitempty"`
	Disable bool   `json:"disable,omitempty"`
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// ModalField is one text input of a modal.
type ModalField struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Multiline   bool   `json:"multiline,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// SendMessageConfig configures send_message and send_dm actions. Text supports
// the {user}, {mention} and {server} placeholders (plain token replacement).
type SendMessageConfig struct {
	Text      string `json:"text"`
	ChannelID string `json:"channel_id,omitempty"`
}

// SendEmbedConfig configures the send_embed action.
type SendEmbedConfig struct {
	Embed     Embed  `json:"embed"`
	ChannelID string `json:"channel_id,omitempty"`
}

// RoleConfig configures assign_role (Remove=false adds, true removes) and
// ping_role actions.
type RoleConfig struct {
	RoleID    string `json:"role_id"`
	Remove    bool   `json:"remove,omitempty"`
	Text      string `json:"text,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// ButtonsConfig configures the send_buttons action.
type ButtonsConfig struct {
	Text      string   `json:"text,omitempty"`
	Embed     *Embed   `json:"embed,omitempty"`
	Buttons   []Button `json:"buttons"`
	ChannelID string   `json:"channel_id,omitempty"`
}

// SelectMenuConfig configures the send_select_menu action.
type SelectMenuConfig struct {
	Text        string         `json:"text,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []SelectOption `json:"options"`
	ChannelID   string         `json:"channel_id,omitempty"`
}

// ModalConfig configures the open_modal action. Modals can only be opened in
// response to an interaction, never from the scheduler.
type ModalConfig struct {
	Title  string       `json:"title"`
	Fields []ModalField `json:"fields"`
}

// TemplateConfig configures the send_template action.
type TemplateConfig struct {
	TemplateID string `json:"template_id"`
	ChannelID  string `json:"channel_id,omitempty"`
}

// AIResponseConfig configures the ai_response action.
type AIResponseConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
}

// Action is one decoded member of the action tagged union. Exactly one config
// field is non-nil, matching Type.
type Action struct {
	Type       ActionType         `json:"type"`
	Message    *SendMessageConfig `json:"-"`
	EmbedMsg   *SendEmbedConfig   `json:"-"`
	Role       *RoleConfig        `json:"-"`
	Buttons    *ButtonsConfig     `json:"-"`
	SelectMenu *SelectMenuConfig  `json:"-"`
	Modal      *ModalConfig       `json:"-"`
	Template   *TemplateConfig    `json:"-"`
	AI         *AIResponseConfig  `json:"-"`
}

// rawAction is the wire shape of an action row: a type tag plus an arbitrary
// config payload.
type rawAction struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config"`
}

// decodeAction decodes a single tagged action payload into its typed variant.
func decodeAction(raw rawAction) (Action, error) {
	a := Action{Type: raw.Type}
	cfg := raw.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	var err error
	switch raw.Type {
	case ActionSendMessage, ActionSendDM:
		a.Message = &SendMessageConfig{}
		err = json.Unmarshal(cfg, a.Message)
	case ActionSendEmbed:
		a.EmbedMsg = &SendEmbedConfig{}
		err = json.Unmarshal(cfg, a.EmbedMsg)
	case ActionAssignRole, ActionPingRole:
		a.Role = &RoleConfig{}
		err = json.Unmarshal(cfg, a.Role)
	case ActionSendButtons:
		a.Buttons = &ButtonsConfig{}
		err = json.Unmarshal(cfg, a.Buttons)
	case ActionSendSelectMenu:
		a.SelectMenu = &SelectMenuConfig{}
		err = json.Unmarshal(cfg, a.SelectMenu)
	case ActionOpenModal:
		a.Modal = &ModalConfig{}
		err = json.Unmarshal(cfg, a.Modal)
	case ActionSendTemplate:
		a.Template = &TemplateConfig{}
		err = json.Unmarshal(cfg, a.Template)
	case ActionAIResponse:
		a.AI = &AIResponseConfig{}
		err = json.Unmarshal(cfg, a.AI)
	default:
		return a, fmt.Errorf("%w: %q", ErrUnknownActionType, raw.Type)
	}
	if err != nil {
		return a, fmt.Errorf("decode %s config: %w", raw.Type, err)
	}
	return a, nil
}

// DecodeActions decodes a stored action list, failing closed: each
// unrecognized or malformed entry is logged and dropped, never propagated.
func DecodeActions(data []byte) []Action {
	if len(data) == 0 {
		return nil
	}
	var raws []rawAction
	if err := json.Unmarshal(data, &raws); err != nil {
		slog.Warn("DecodeActions: malformed action list, dropping all", "error", err)
		return nil
	}
	actions := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := decodeAction(raw)
		if err != nil {
			slog.Warn("DecodeActions: skipping action", "error", err, "index", i, "type", raw.Type)
			continue
		}
		actions = append(actions, a)
	}
	return actions
}

// ChannelID returns the explicitly configured channel of an action, if any.
func (a Action) ChannelID() string {
	switch {
	case a.Message != nil:
		return a.Message.ChannelID
	case a.EmbedMsg != nil:
		return a.EmbedMsg.ChannelID
	case a.Role != nil:
		return a.Role.ChannelID
	case a.Buttons != nil:
		return a.Buttons.ChannelID
	case a.SelectMenu != nil:
		return a.SelectMenu.ChannelID
	case a.Template != nil:
		return a.Template.ChannelID
	case a.AI != nil:
		return a.AI.ChannelID
	default:
		return ""
	}
}

// SendCapable reports whether the action posts into a channel, which makes it
// usable for scheduler channel resolution.
func (a Action) SendCapable() bool {
	switch a.Type {
	case ActionSendMessage, ActionSendEmbed, ActionPingRole, ActionSendButtons,
		ActionSendSelectMenu, ActionSendTemplate, ActionAIResponse:
		return true
	default:
		return false
	}
}
