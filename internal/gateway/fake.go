package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/botforge/flowbot/internal/models"
)

// SentRecord captures one outbound operation performed on a FakeClient.
type SentRecord struct {
	Op        string // "message", "embed", "components", "dm", "add_role", "remove_role", "edit", "modal"
	ChannelID string
	UserID    string
	GuildID   string
	RoleID    string
	Text      string
	Embed     *models.Embed
	Rows      []ComponentRow
	MessageID string
}

// FakeClient is an in-memory Client used by tests across the repo. It records
// every outbound call and can be told to fail specific operations.
type FakeClient struct {
	mu      sync.Mutex
	sent    []SentRecord
	nextID  int
	events  chan Event
	actors  map[string]Actor
	guilds  []Guild
	FailOps map[string]error // op name -> error to return
}

// NewFakeClient creates a FakeClient with a buffered event channel.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		events:  make(chan Event, 16),
		actors:  make(map[string]Actor),
		FailOps: make(map[string]error),
	}
}

// Deliver injects an inbound event, as the gateway would.
func (f *FakeClient) Deliver(ev Event) { f.events <- ev }

// SetActor registers the actor resolved for events authored by userID.
func (f *FakeClient) SetActor(userID string, a Actor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors[userID] = a
}

// SetGuilds sets the guild list returned by Guilds.
func (f *FakeClient) SetGuilds(guilds []Guild) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = guilds
}

// Sent returns a copy of the recorded outbound operations.
func (f *FakeClient) Sent() []SentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentRecord, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeClient) record(r SentRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailOps[r.Op]; ok && err != nil {
		return "", err
	}
	f.nextID++
	r.MessageID = fmt.Sprintf("msg-%d", f.nextID)
	f.sent = append(f.sent, r)
	return r.MessageID, nil
}

func (f *FakeClient) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	return f.record(SentRecord{Op: "message", ChannelID: channelID, Text: text})
}

func (f *FakeClient) SendEmbed(ctx context.Context, channelID, text string, embed *models.Embed) (string, error) {
	return f.record(SentRecord{Op: "embed", ChannelID: channelID, Text: text, Embed: embed})
}

func (f *FakeClient) SendComponents(ctx context.Context, channelID, text string, embed *models.Embed, rows []ComponentRow) (string, error) {
	return f.record(SentRecord{Op: "components", ChannelID: channelID, Text: text, Embed: embed, Rows: rows})
}

func (f *FakeClient) SendDM(ctx context.Context, userID, text string) error {
	_, err := f.record(SentRecord{Op: "dm", UserID: userID, Text: text})
	return err
}

func (f *FakeClient) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := f.record(SentRecord{Op: "add_role", GuildID: guildID, UserID: userID, RoleID: roleID})
	return err
}

func (f *FakeClient) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := f.record(SentRecord{Op: "remove_role", GuildID: guildID, UserID: userID, RoleID: roleID})
	return err
}

func (f *FakeClient) EditMessage(ctx context.Context, channelID, messageID, text string, embed *models.Embed, rows []ComponentRow) error {
	_, err := f.record(SentRecord{Op: "edit", ChannelID: channelID, Text: text, Embed: embed, Rows: rows})
	return err
}

func (f *FakeClient) OpenModal(ctx context.Context, interactionID string, modal models.ModalConfig, customID string) error {
	_, err := f.record(SentRecord{Op: "modal", Text: modal.Title, UserID: interactionID})
	return err
}

func (f *FakeClient) Guilds(ctx context.Context) ([]Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailOps["guilds"]; ok && err != nil {
		return nil, err
	}
	out := make([]Guild, len(f.guilds))
	copy(out, f.guilds)
	return out, nil
}

func (f *FakeClient) Events() <-chan Event { return f.events }

func (f *FakeClient) Actor(ctx context.Context, ev Event) (Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actors[ev.AuthorID]; ok {
		return a, nil
	}
	return Actor{ID: ev.AuthorID, Username: ev.AuthorName}, nil
}

func (f *FakeClient) Close() error {
	close(f.events)
	return nil
}
