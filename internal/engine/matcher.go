package engine

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
)

// regexCache memoizes compiled trigger patterns per flow. A pattern that
// fails to compile is memoized as nil and never matches.
var regexCache sync.Map // flowID+"\x00"+pattern -> *regexp.Regexp (nil = invalid)

func compiledPattern(flowID, pattern string) *regexp.Regexp {
	key := flowID + "\x00" + pattern
	if cached, ok := regexCache.Load(key); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		slog.Warn("Matcher: invalid regex pattern, treating as never-match", "error", err, "flow_id", flowID)
		re = nil
	}
	regexCache.Store(key, re)
	return re
}

// Matches reports whether an event activates a flow's trigger. It is a pure
// predicate over (flow, event, kind): no side effects, deterministic for
// fixed inputs. kind is the classification computed once by Classify.
//
// Identity correlation of component interactions (does this button id belong
// to this flow) is the caller's concern, not the matcher's.
func Matches(flow *models.Flow, ev gateway.Event, kind models.TriggerType) bool {
	switch flow.TriggerType {
	case models.TriggerNewMessage, models.TriggerMention:
		return kind == flow.TriggerType

	case models.TriggerKeywordMatch:
		if ev.Kind != gateway.KindMessage {
			return false
		}
		text := strings.ToLower(ev.Text)
		for _, kw := range flow.TriggerConfig.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
		return false

	case models.TriggerRegexMatch:
		if ev.Kind != gateway.KindMessage {
			return false
		}
		re := compiledPattern(flow.ID, flow.TriggerConfig.Pattern)
		if re == nil {
			return false
		}
		return re.MatchString(ev.Text)

	case models.TriggerSlashCommand:
		if ev.Kind != gateway.KindMessage {
			return false
		}
		command := strings.TrimPrefix(flow.TriggerConfig.Command, "/")
		if command == "" {
			return false
		}
		return strings.HasPrefix(ev.Text, "/"+command)

	case models.TriggerMemberJoin, models.TriggerButtonClick,
		models.TriggerSelectMenu, models.TriggerModalSubmit:
		return kind == flow.TriggerType

	case models.TriggerScheduled:
		// Driven exclusively by the scheduler's poll loop.
		return false

	default:
		// Unknown trigger type fails closed.
		return false
	}
}
