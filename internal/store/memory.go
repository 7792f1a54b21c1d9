package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/botforge/flowbot/internal/models"
)

// InMemoryStore is a Store kept entirely in process memory. Used in tests and
// for throwaway local runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	bots      []models.Bot
	flows     map[string][]models.Flow // bot id -> flows
	templates map[string]*models.Template
	links     map[string]models.MessageLink
	votes     map[string]map[string]string // template id -> user id -> option id

	// FailList, when set, makes ListFlows return this error. Lets tests
	// exercise the degrade-to-empty path.
	FailList error
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows:     make(map[string][]models.Flow),
		templates: make(map[string]*models.Template),
		links:     make(map[string]models.MessageLink),
		votes:     make(map[string]map[string]string),
	}
}

// AddBot registers a bot account.
func (s *InMemoryStore) AddBot(b models.Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots = append(s.bots, b)
}

// AddFlow registers a flow under its bot id.
func (s *InMemoryStore) AddFlow(f models.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.BotID] = append(s.flows[f.BotID], f)
}

// AddTemplate registers a template.
func (s *InMemoryStore) AddTemplate(t *models.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

func (s *InMemoryStore) ListBots() ([]models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var bots []models.Bot
	for _, b := range s.bots {
		if b.Enabled {
			bots = append(bots, b)
		}
	}
	return bots, nil
}

func (s *InMemoryStore) ListFlows(botID string) ([]models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	var flows []models.Flow
	for _, f := range s.flows[botID] {
		if f.Enabled {
			flows = append(flows, f)
		}
	}
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].Priority < flows[j].Priority })
	return flows, nil
}

func (s *InMemoryStore) GetTemplate(id string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found")
	}
	return t, nil
}

func (s *InMemoryStore) LinkMessage(messageID, templateID string, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[messageID] = models.MessageLink{MessageID: messageID, TemplateID: templateID, Page: page}
	return nil
}

func (s *InMemoryStore) GetMessageLink(messageID string) (*models.MessageLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[messageID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *InMemoryStore) RecordVote(templateID, optionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.votes[templateID]
	if !ok {
		byUser = make(map[string]string)
		s.votes[templateID] = byUser
	}
	if _, voted := byUser[userID]; voted {
		return false, nil
	}
	byUser[userID] = optionID
	return true, nil
}

func (s *InMemoryStore) CountVotes(templateID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, option := range s.votes[templateID] {
		counts[option]++
	}
	return counts, nil
}

func (s *InMemoryStore) Close() error { return nil }
