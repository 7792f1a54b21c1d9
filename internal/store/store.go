// Package store provides persistence backends for flowbot.
//
// Flow, bot and template records are owned by the external dashboard; this
// service reads them and writes only the auxiliary records specific actions
// need (message-to-template links, per-user vote state). Postgres and SQLite
// backends are provided, plus an in-memory store used in tests.
package store

import (
	"strings"

	"github.com/botforge/flowbot/internal/models"
)

// Store is the keyed read/write persistence boundary of the core.
type Store interface {
	// ListBots returns every enabled bot account.
	ListBots() ([]models.Bot, error)

	// ListFlows returns the enabled flows of one bot, ascending by priority.
	ListFlows(botID string) ([]models.Flow, error)

	// GetTemplate loads one stored multi-page template.
	GetTemplate(id string) (*models.Template, error)

	// LinkMessage records that a published message renders a template page.
	LinkMessage(messageID, templateID string, page int) error

	// GetMessageLink resolves a published message back to its template.
	// Returns nil when no link exists.
	GetMessageLink(messageID string) (*models.MessageLink, error)

	// RecordVote stores one user's vote on a template option. Returns false
	// when the user already voted on that template.
	RecordVote(templateID, optionID, userID string) (bool, error)

	// CountVotes returns vote counts per option id for a template.
	CountVotes(templateID string) (map[string]int, error)

	// Close releases the underlying connections.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
