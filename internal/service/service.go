// Package service assembles the flowbot runtime: per-bot gateway sessions,
// event processors, the scheduler and the shared dedup guard.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botforge/flowbot/internal/dedup"
	"github.com/botforge/flowbot/internal/engine"
	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/genai"
	"github.com/botforge/flowbot/internal/scheduler"
	"github.com/botforge/flowbot/internal/store"
	"github.com/botforge/flowbot/internal/util"
)

// Opts holds service configuration.
type Opts struct {
	GatewayDriver string
	EncryptionKey string
	PollInterval  time.Duration
}

// Option configures the service.
type Option func(*Opts)

// WithGatewayDriver names the registered gateway connector to use.
func WithGatewayDriver(name string) Option {
	return func(o *Opts) { o.GatewayDriver = name }
}

// WithEncryptionKey sets the bot-token encryption key. Empty means tokens
// are stored plaintext.
func WithEncryptionKey(key string) Option {
	return func(o *Opts) { o.EncryptionKey = key }
}

// WithPollInterval overrides the scheduler poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// Service is the assembled runtime of all bots of this instance.
type Service struct {
	cfg   Opts
	store store.Store
	flows *store.CachedFlows
	guard *dedup.Guard
	sched *scheduler.Scheduler

	responder genai.Responder // nil disables ai_response

	mu      sync.Mutex
	clients []gateway.Client
	wg      sync.WaitGroup
}

// New assembles a Service over the given store. responder may be nil.
func New(st store.Store, responder genai.Responder, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	flows := store.NewCachedFlows(st)
	return &Service{
		cfg:       cfg,
		store:     st,
		flows:     flows,
		guard:     dedup.NewGuard(),
		sched:     scheduler.New(flows, cfg.PollInterval),
		responder: responder,
	}
}

// Flows exposes the flow cache so external write paths can invalidate it.
func (s *Service) Flows() *store.CachedFlows { return s.flows }

// Start connects every enabled bot and begins event processing and the
// scheduler. A bot whose credential cannot be decrypted or whose connection
// fails is marked errored and skipped; the rest continue. Start fails only
// when no bot could be started at all.
func (s *Service) Start(ctx context.Context) error {
	bots, err := s.store.ListBots()
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}
	if len(bots) == 0 {
		return fmt.Errorf("no enabled bots configured")
	}

	started := 0
	for _, bot := range bots {
		if err := s.startBot(ctx, bot.ID, bot.Token); err != nil {
			slog.Error("Service bot failed to start, continuing with others", "error", err, "bot_id", bot.ID)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("all %d bots failed to start", len(bots))
	}

	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	slog.Info("Service started", "bots", started, "gateway_driver", s.cfg.GatewayDriver)
	return nil
}

func (s *Service) startBot(ctx context.Context, botID, token string) error {
	plainToken, err := util.DecryptToken(token, s.cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid credential: %w", err)
	}

	client, err := gateway.Open(ctx, s.cfg.GatewayDriver, plainToken)
	if err != nil {
		return fmt.Errorf("gateway connect: %w", err)
	}

	exec := engine.NewExecutor(botID, client, s.store, s.responder)
	proc := engine.NewProcessor(botID, client, s.flows, s.guard, exec)
	s.sched.AddBot(botID, client, exec)

	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		proc.Run(ctx)
	}()
	return nil
}

// Stop halts the scheduler, closes every gateway session and waits for the
// processors to drain.
func (s *Service) Stop() {
	s.sched.Stop()

	s.mu.Lock()
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			slog.Error("Service failed to close gateway session", "error", err)
		}
	}
	s.wg.Wait()
	slog.Info("Service stopped")
}
