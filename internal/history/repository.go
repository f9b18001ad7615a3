// Package history persists a classification audit trail in an embedded
// sqlite database. The idempotency stamp lives on the remote resource, not
// here; this log is observability only and losing it affects nothing.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS classification_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  INTEGER NOT NULL,
	category    TEXT    NOT NULL,
	tags        TEXT    NOT NULL,
	confidence  REAL    NOT NULL,
	method      TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_product ON classification_history (product_id, recorded_at);
`

// Entry is one audit record.
type Entry struct {
	ID         int64     `db:"id"          json:"id"`
	ProductID  int64     `db:"product_id"  json:"product_id"`
	Category   string    `db:"category"    json:"category"`
	Tags       string    `db:"tags"        json:"tags"`
	Confidence float64   `db:"confidence"  json:"confidence"`
	Method     string    `db:"method"      json:"method"`
	Source     string    `db:"source"      json:"source"`
	Status     string    `db:"status"      json:"status"`
	Error      string    `db:"error"       json:"error,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Repository stores audit entries.
type Repository struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path (":memory:" works for tests)
// and ensures the schema exists.
func Open(path string) (*Repository, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record appends one audit entry.
func (r *Repository) Record(ctx context.Context, entry Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO classification_history
			(product_id, category, tags, confidence, method, source, status, error, recorded_at)
		VALUES
			(:product_id, :category, :tags, :confidence, :method, :source, :status, :error, :recorded_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("record history entry: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries, most recent first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	query := `
		SELECT id, product_id, category, tags, confidence, method, source, status, error, recorded_at
		FROM classification_history
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// JoinTags renders a tag list into the stored representation.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
