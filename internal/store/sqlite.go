// Package store provides persistence backends for flowbot.
//
// This file implements the SQLite-backed store, used for single-host
// deployments without a Postgres instance.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/botforge/flowbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the SQLite-backed Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The containing directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListBots() ([]models.Bot, error) {
	rows, err := s.db.Query(`SELECT id, token, enabled FROM bots WHERE enabled = 1`)
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

func (s *SQLiteStore) ListFlows(botID string) ([]models.Flow, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, module, name, enabled, priority, trigger_type,
		        trigger_config, conditions, actions, ai_config
		 FROM flows WHERE bot_id = ? AND enabled = 1 ORDER BY priority ASC`,
		botID,
	)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	return collectFlows(rows)
}

func (s *SQLiteStore) GetTemplate(id string) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, bot_id, name, pages FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

func (s *SQLiteStore) LinkMessage(messageID, templateID string, page int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO message_links (message_id, template_id, page) VALUES (?, ?, ?)`,
		messageID, templateID, page,
	)
	if err != nil {
		return fmt.Errorf("link message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessageLink(messageID string) (*models.MessageLink, error) {
	var l models.MessageLink
	err := s.db.QueryRow(
		`SELECT message_id, template_id, page FROM message_links WHERE message_id = ?`,
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

func (s *SQLiteStore) RecordVote(templateID, optionID, userID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO template_votes (template_id, option_id, user_id) VALUES (?, ?, ?)`,
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

func (s *SQLiteStore) CountVotes(templateID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT option_id, COUNT(*) FROM template_votes WHERE template_id = ? GROUP BY option_id`,
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

func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore closing database connection")
	return s.db.Close()
}
