// Package history persists terminal download sessions to SQLite so
// recent transfers survive beyond the registry's grace window. It is an
// audit log, not a queue: nothing is ever replayed from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hexfold/streamrelay/internal/config"
	"github.com/hexfold/streamrelay/internal/domain"
)

// Entry is one recorded transfer.
type Entry struct {
	SessionID string    `json:"sessionId"`
	TargetURL string    `json:"targetUrl"`
	FormatID  string    `json:"formatId"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	Bytes     int64     `json:"bytes"`
	Total     int64     `json:"total,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Store is a SQLite-backed transfer log.
type Store struct {
	db     *sql.DB
	cfg    config.HistoryConfig
	logger *slog.Logger
}

// NewStore opens (or creates) the history database.
func NewStore(cfg config.HistoryConfig, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transfers (
			session_id TEXT PRIMARY KEY,
			target_url TEXT NOT NULL,
			format_id TEXT,
			filename TEXT,
			status TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transfers_ended_at ON transfers(ended_at);
		CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record saves a terminal session. It satisfies session.Recorder and is
// called off the request path, so a failed insert only logs.
func (s *Store) Record(ctx context.Context, sess *domain.Session) {
	bytes, total, _ := sess.Progress()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transfers
			(session_id, target_url, format_id, filename, status, bytes, total, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID.String(), sess.TargetURL, sess.FormatID, sess.Filename,
		string(sess.Status()), bytes, total, sess.StartedAt().Unix(), sess.EndedAt().Unix())

	if err != nil {
		s.logger.Warn("failed to record transfer", "session_id", sess.ID, "error", err)
	}
}

// List returns recorded transfers, most recent first, with the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, target_url, format_id, filename, status, bytes, total, started_at, ended_at
		FROM transfers
		ORDER BY ended_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var started, ended int64
		if err := rows.Scan(&e.SessionID, &e.TargetURL, &e.FormatID, &e.Filename,
			&e.Status, &e.Bytes, &e.Total, &started, &ended); err != nil {
			return nil, 0, fmt.Errorf("scan transfer: %w", err)
		}
		e.StartedAt = time.Unix(started, 0).UTC()
		e.EndedAt = time.Unix(ended, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transfers: %w", err)
	}

	return entries, total, nil
}

// CleanupOld removes transfers older than the retention period.
func (s *Store) CleanupOld(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM transfers WHERE ended_at < ?", cutoff.Unix())
	if err != nil {
		return fmt.Errorf("delete old transfers: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("cleaned up old transfers", "deleted", deleted, "cutoff", cutoff)
	}

	return nil
}
