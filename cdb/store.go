// Package cdb provides a cache.Store backed by CockroachDB (or any
// PostgreSQL-compatible database) so that outcomes can be reused across
// processes.
package cdb

import (
	"database/sql"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/link"
	_ "github.com/lib/pq"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring Store implements cache.Store.
var _ cache.Store = (*Store)(nil)

var (
	createOutcomesTableQuery = `
CREATE TABLE IF NOT EXISTS outcomes (
	key TEXT PRIMARY KEY,
	status SMALLINT NOT NULL,
	reason SMALLINT NOT NULL,
	status_code INT NOT NULL DEFAULT 0,
	note TEXT NOT NULL DEFAULT '',
	checked_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
)`

	upsertOutcomeQuery = `
INSERT INTO outcomes (key, status, reason, status_code, note, checked_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (key) DO UPDATE SET
	status = EXCLUDED.status,
	reason = EXCLUDED.reason,
	status_code = EXCLUDED.status_code,
	note = EXCLUDED.note,
	checked_at = EXCLUDED.checked_at,
	expires_at = EXCLUDED.expires_at`

	findOutcomeQuery = "SELECT status, reason, status_code, note, checked_at, expires_at FROM outcomes WHERE key=$1"

	deleteOutcomeQuery = "DELETE FROM outcomes WHERE key=$1"

	deleteStaleOutcomeQuery = "DELETE FROM outcomes WHERE key=$1 AND checked_at <= $2"

	purgeOutcomesQuery = "DELETE FROM outcomes"
)

// Store implements cache.Store on top of a SQL database.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection to the database at dsn and makes sure the
// outcomes table exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open outcome store: %w", err)
	}

	if _, err = db.Exec(createOutcomesTableQuery); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("create outcomes table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close terminates the connection to the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements cache.Store.
func (s *Store) Get(key link.Key) (cache.Entry, bool, error) {
	var (
		entry     cache.Entry
		status    int16
		reason    int16
		expiresAt sql.NullTime
	)

	row := s.db.QueryRow(findOutcomeQuery, string(key))
	err := row.Scan(&status, &reason, &entry.Outcome.Reason.StatusCode, &entry.Outcome.Note, &entry.CheckedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return cache.Entry{}, false, nil
	} else if err != nil {
		return cache.Entry{}, false, xerrors.Errorf("get outcome: %w", err)
	}

	entry.Outcome.Status = link.Status(status)
	entry.Outcome.Reason.Kind = link.ReasonKind(reason)
	entry.CheckedAt = entry.CheckedAt.UTC()
	if expiresAt.Valid {
		entry.ExpiresAt = expiresAt.Time.UTC()
	}
	return entry, true, nil
}

// Put implements cache.Store.
func (s *Store) Put(key link.Key, entry cache.Entry) error {
	var expiresAt *time.Time
	if !entry.ExpiresAt.IsZero() {
		t := entry.ExpiresAt.UTC()
		expiresAt = &t
	}

	_, err := s.db.Exec(
		upsertOutcomeQuery,
		string(key),
		int16(entry.Outcome.Status),
		int16(entry.Outcome.Reason.Kind),
		entry.Outcome.Reason.StatusCode,
		entry.Outcome.Note,
		entry.CheckedAt.UTC(),
		expiresAt,
	)
	if err != nil {
		return xerrors.Errorf("put outcome: %w", err)
	}
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(key link.Key) error {
	if _, err := s.db.Exec(deleteOutcomeQuery, string(key)); err != nil {
		return xerrors.Errorf("delete outcome: %w", err)
	}
	return nil
}

// DeleteStale implements cache.Store.
func (s *Store) DeleteStale(key link.Key, checkedAt time.Time) error {
	if _, err := s.db.Exec(deleteStaleOutcomeQuery, string(key), checkedAt.UTC()); err != nil {
		return xerrors.Errorf("delete stale outcome: %w", err)
	}
	return nil
}

// Purge implements cache.Store.
func (s *Store) Purge() error {
	if _, err := s.db.Exec(purgeOutcomesQuery); err != nil {
		return xerrors.Errorf("purge outcomes: %w", err)
	}
	return nil
}
