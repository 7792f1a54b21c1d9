// Package gateway defines the boundary to the chat-platform gateway.
//
// The concrete client library is an external collaborator; this package only
// specifies the event shape the core consumes and the operations it performs.
// Platform adapters register a Connector at init time, sql-driver style, and
// the service opens per-bot clients through the registry.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/botforge/flowbot/internal/models"
)

// EventKind is the raw category of a gateway delivery, before trigger
// classification.
type EventKind string

const (
	KindMessage     EventKind = "message"
	KindMemberJoin  EventKind = "member_join"
	KindButtonClick EventKind = "button_click"
	KindSelectMenu  EventKind = "select_menu"
	KindModalSubmit EventKind = "modal_submit"
)

// Event is one gateway delivery. The gateway may deliver the same event more
// than once; dedup is the consumer's responsibility.
type Event struct {
	ID          string
	BotID       string
	Kind        EventKind
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	Text        string
	MentionsBot bool
	ComponentID string
	Values      []string // selected values / modal field inputs
	Timestamp   time.Time
}

// Actor describes the member behind an event, resolved by the gateway.
type Actor struct {
	ID       string
	Username string
	RoleIDs  []string
	IsAdmin  bool
}

// Guild is the minimal guild view the core needs.
type Guild struct {
	ID              string
	Name            string
	SystemChannelID string
}

// ComponentRow is one row of interactive components attached to a message.
type ComponentRow struct {
	Buttons []models.Button
	Select  *models.SelectMenuConfig
}

// Client is one connected bot session against the chat gateway.
type Client interface {
	// SendMessage posts plain text into a channel and returns the message id.
	SendMessage(ctx context.Context, channelID, text string) (string, error)

	// SendEmbed posts an embed, optionally with leading text.
	SendEmbed(ctx context.Context, channelID, text string, embed *models.Embed) (string, error)

	// SendComponents posts text/embed plus interactive component rows.
	SendComponents(ctx context.Context, channelID, text string, embed *models.Embed, rows []ComponentRow) (string, error)

	// SendDM opens (or reuses) a direct channel to a user and sends text.
	SendDM(ctx context.Context, userID, text string) error

	// AddRole grants a role to a guild member.
	AddRole(ctx context.Context, guildID, userID, roleID string) error

	// RemoveRole revokes a role from a guild member.
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// EditMessage replaces the content of a previously sent message.
	EditMessage(ctx context.Context, channelID, messageID, text string, embed *models.Embed, rows []ComponentRow) error

	// OpenModal opens a modal in response to the given interaction.
	OpenModal(ctx context.Context, interactionID string, modal models.ModalConfig, customID string) error

	// Guilds lists the guilds the bot is joined to.
	Guilds(ctx context.Context) ([]Guild, error)

	// Events returns the channel of inbound deliveries. Closed on Close.
	Events() <-chan Event

	// Actor resolves the member behind an event. Returns a zero Actor when
	// the gateway cannot resolve one (DMs, departed members).
	Actor(ctx context.Context, ev Event) (Actor, error)

	// Close tears the session down and closes the Events channel.
	Close() error
}

// Connector dials one bot session from its credential token.
type Connector interface {
	Connect(ctx context.Context, token string) (Client, error)
}

var (
	connectorsMu sync.RWMutex
	connectors   = make(map[string]Connector)
)

// Register makes a platform connector available under the given name. It
// panics on duplicate registration, matching database/sql driver semantics.
func Register(name string, c Connector) {
	connectorsMu.Lock()
	defer connectorsMu.Unlock()
	if c == nil {
		panic("gateway: Register connector is nil")
	}
	if _, dup := connectors[name]; dup {
		panic("gateway: Register called twice for connector " + name)
	}
	connectors[name] = c
}

// Open connects one bot session using the named registered connector.
func Open(ctx context.Context, driver, token string) (Client, error) {
	connectorsMu.RLock()
	c, ok := connectors[driver]
	connectorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gateway: unknown connector %q (forgotten import?)", driver)
	}
	return c.Connect(ctx, token)
}

// Drivers returns the names of registered connectors, for startup diagnostics.
func Drivers() []string {
	connectorsMu.RLock()
	defer connectorsMu.RUnlock()
	names := make([]string, 0, len(connectors))
	for name := range connectors {
		names = append(names, name)
	}
	return names
}
