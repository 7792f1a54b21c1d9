// Package engine implements the flow rule engine: event classification,
// trigger matching, condition evaluation, action execution and the
// first-match-wins event processor.
package engine

import (
	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
)

// Classify maps one gateway event to its trigger kind. It runs once per
// event, upstream of all matching, so every flow sees the same kind.
func Classify(ev gateway.Event) models.TriggerType {
	switch ev.Kind {
	case gateway.KindMessage:
		if ev.MentionsBot {
			return models.TriggerMention
		}
		return models.TriggerNewMessage
	case gateway.KindMemberJoin:
		return models.TriggerMemberJoin
	case gateway.KindButtonClick:
		return models.TriggerButtonClick
	case gateway.KindSelectMenu:
		return models.TriggerSelectMenu
	case gateway.KindModalSubmit:
		return models.TriggerModalSubmit
	default:
		return ""
	}
}
