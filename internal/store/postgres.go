// Package store provides persistence backends for flowbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/botforge/flowbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the Postgres-backed Store implementation.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ListBots() ([]models.Bot, error) {
	rows, err := s.db.Query(`SELECT id, token, enabled FROM bots WHERE enabled = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("query bots: %w", err)
	}
	defer rows.Close()

	var bots []models.Bot
	for rows.Next() {
		var b models.Bot
		if err := rows.Scan(&b.ID, &b.Token, &b.Enabled); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *PostgresStore) ListFlows(botID string) ([]models.Flow, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, module, name, enabled, priority, trigger_type,
		        trigger_config, conditions, actions, ai_config
		 FROM flows WHERE bot_id = $1 AND enabled = TRUE ORDER BY priority ASC`,
		botID,
	)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	return collectFlows(rows)
}

func (s *PostgresStore) GetTemplate(id string) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, bot_id, name, pages FROM templates WHERE id = $1`, id)
	return scanTemplate(row)
}

func (s *PostgresStore) LinkMessage(messageID, templateID string, page int) error {
	_, err := s.db.Exec(
		`INSERT INTO message_links (message_id, template_id, page) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO UPDATE SET template_id = $2, page = $3`,
		messageID, templateID, page,
	)
	if err != nil {
		return fmt.Errorf("link message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessageLink(messageID string) (*models.MessageLink, error) {
	var l models.MessageLink
	err := s.db.QueryRow(
		`SELECT message_id, template_id, page FROM message_links WHERE message_id = $1`,
		messageID,
	).Scan(&l.MessageID, &l.TemplateID, &l.Page)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message link: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) RecordVote(templateID, optionID, userID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO template_votes (template_id, option_id, user_id) VALUES ($1, $2, $3)
		 ON CONFLICT (template_id, user_id) DO NOTHING`,
		templateID, optionID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("record vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record vote rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) CountVotes(templateID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT option_id, COUNT(*) FROM template_votes WHERE template_id = $1 GROUP BY option_id`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var option string
		var n int
		if err := rows.Scan(&option, &n); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[option] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore closing database connection")
	return s.db.Close()
}
