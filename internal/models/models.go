// Package models defines the core data structures for flowbot.
//
// It includes the flow definition model shared between the store, the rule
// engine and the scheduler. Flow records are owned by the external dashboard;
// this service only reads them.
package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// TriggerType identifies the event classification that can activate a flow.
type TriggerType string

const (
	// TriggerNewMessage fires on any message that is not a bot mention.
	TriggerNewMessage TriggerType = "new_message"
	// TriggerMention fires on messages that mention the bot.
	TriggerMention TriggerType = "mention"
	// TriggerKeywordMatch fires when any configured keyword appears in the message text.
	TriggerKeywordMatch TriggerType = "keyword_match"
	// TriggerRegexMatch fires when the configured pattern matches the message text.
	TriggerRegexMatch TriggerType = "regex_match"
	// TriggerSlashCommand fires on "/<command>" messages.
	TriggerSlashCommand TriggerType = "slash_command"
	// TriggerMemberJoin fires when a member joins the guild.
	TriggerMemberJoin TriggerType = "member_join"
	// TriggerButtonClick fires on button interactions.
	TriggerButtonClick TriggerType = "button_click"
	// TriggerSelectMenu fires on select-menu interactions.
	TriggerSelectMenu TriggerType = "select_menu"
	// TriggerModalSubmit fires on modal submissions.
	TriggerModalSubmit TriggerType = "modal_submit"
	// TriggerScheduled is never matched against gateway events; it is driven
	// exclusively by the scheduler's poll loop.
	TriggerScheduled TriggerType = "scheduled"
)

// IsValidTriggerType checks if the given trigger type is supported.
func IsValidTriggerType(tt TriggerType) bool {
	switch tt {
	case TriggerNewMessage, TriggerMention, TriggerKeywordMatch, TriggerRegexMatch,
		TriggerSlashCommand, TriggerMemberJoin, TriggerButtonClick, TriggerSelectMenu,
		TriggerModalSubmit, TriggerScheduled:
		return true
	default:
		return false
	}
}

// ScheduleType identifies how a scheduled flow decides when to fire.
type ScheduleType string

const (
	// ScheduleInterval fires every N minutes of elapsed wall-clock time.
	ScheduleInterval ScheduleType = "interval"
	// ScheduleTime fires at a fixed local HH:MM, optionally limited to
	// certain weekdays or a single calendar date.
	ScheduleTime ScheduleType = "time"
)

// Error variables for better error handling and testability.
var (
	ErrUnknownActionType  = errors.New("unknown action type")
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrEmptyFlowID        = errors.New("flow id cannot be empty")
	ErrEmptyBotID         = errors.New("bot id cannot be empty")
)

// KeywordList holds keyword_match keywords. The dashboard historically stored
// keywords either as a comma-separated string or as a JSON array; both
// encodings must normalize to the same list.
type KeywordList []string

// UnmarshalJSON accepts both `"a, b"` and `["a","b"]` encodings.
func (k *KeywordList) UnmarshalJSON(data []byte) error {
	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		*k = normalizeKeywords(asList)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	*k = normalizeKeywords(strings.Split(asString, ","))
	return nil
}

func normalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// TriggerConfig carries the per-type trigger payload. Fields not used by the
// flow's trigger type are zero-valued.
type TriggerConfig struct {
	// keyword_match
	Keywords KeywordList `json:"keywords,omitempty"`
	// regex_match
	Pattern string `json:"pattern,omitempty"`
	// slash_command
	Command string `json:"command,omitempty"`
	// button_click / select_menu / modal_submit identity correlation,
	// checked by the caller rather than the matcher.
	ComponentID string `json:"component_id,omitempty"`
	// scheduled
	ScheduleType    ScheduleType `json:"schedule_type,omitempty"`
	IntervalMinutes int          `json:"interval_minutes,omitempty"`
	Time            string       `json:"time,omitempty"` // "HH:MM", local time
	Days            []int        `json:"days,omitempty"` // 0=Sunday .. 6=Saturday
	Date            string       `json:"date,omitempty"` // "YYYY-MM-DD" one-shot
}

// Conditions narrows when a matched trigger actually fires. Every field is
// optional; absent fields impose no restriction, present fields are ANDed.
//
// CooldownSeconds and OncePerUser are part of the dashboard schema but are
// not enforced by the evaluator; they decode and round-trip untouched.
type Conditions struct {
	AllowedChannels []string `json:"allowed_channels,omitempty"`
	IgnoredChannels []string `json:"ignored_channels,omitempty"`
	RequiredRoles   []string `json:"required_roles,omitempty"`
	AdminOnly       bool     `json:"admin_only,omitempty"`
	CooldownSeconds int      `json:"cooldown_seconds,omitempty"`
	OncePerUser     bool     `json:"once_per_user,omitempty"`
}

// AIConfig carries optional per-flow settings forwarded to the
// text-generation collaborator.
type AIConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	Personality  string `json:"personality,omitempty"`
	HistoryDepth int    `json:"history_depth,omitempty"`
}

// Flow is a stored automation rule: one trigger, optional conditions and an
// ordered action list. Lower Priority evaluates earlier.
type Flow struct {
	ID            string        `json:"id"`
	BotID         string        `json:"bot_id"`
	Module        string        `json:"module,omitempty"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Priority      int           `json:"priority"`
	TriggerType   TriggerType   `json:"trigger_type"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
	Conditions    *Conditions   `json:"conditions,omitempty"`
	Actions       []Action      `json:"actions"`
	AIConfig      *AIConfig     `json:"ai_config,omitempty"`
}

// Validate checks the identifying fields of a flow record.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return ErrEmptyFlowID
	}
	if f.BotID == "" {
		return ErrEmptyBotID
	}
	if !IsValidTriggerType(f.TriggerType) {
		return ErrUnknownTriggerType
	}
	return nil
}

// Bot is a chat-platform bot account managed by this service.
type Bot struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}
