package engine

import (
	"slices"

	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
)

// Passes evaluates a flow's conditions against the event and its actor. It is
// a pure, read-only predicate: every present field must hold (AND), absent
// fields impose no restriction.
//
// CooldownSeconds and OncePerUser exist in the schema but are not enforced
// here; see the schema notes on models.Conditions.
func Passes(flow *models.Flow, ev gateway.Event, actor *gateway.Actor) bool {
	c := flow.Conditions
	if c == nil {
		return true
	}

	if len(c.AllowedChannels) > 0 && !slices.Contains(c.AllowedChannels, ev.ChannelID) {
		return false
	}
	if len(c.IgnoredChannels) > 0 && slices.Contains(c.IgnoredChannels, ev.ChannelID) {
		return false
	}
	if len(c.RequiredRoles) > 0 {
		if actor == nil {
			return false
		}
		held := false
		for _, role := range c.RequiredRoles {
			if slices.Contains(actor.RoleIDs, role) {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	if c.AdminOnly {
		if actor == nil || !actor.IsAdmin {
			return false
		}
	}
	return true
}
