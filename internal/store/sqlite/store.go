// Package sqlite implements the idempotency store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

//go:embed schema.sql
var schemaSQL string

// Store records replied posts in the links table.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// It is safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Contains implements snapshot.Store.
func (s *Store) Contains(ctx context.Context, postID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM links WHERE id = ?", postID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup %s: %w", postID, err)
	}
	return true, nil
}

// Insert implements snapshot.Store.
func (s *Store) Insert(ctx context.Context, postID, replyID string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO links (id, reply) VALUES (?, ?)", postID, replyID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return snapshot.ErrAlreadyRecorded
		}
		return fmt.Errorf("insert %s: %w", postID, err)
	}
	return nil
}

// Reply returns the reply id recorded for postID.
func (s *Store) Reply(ctx context.Context, postID string) (string, error) {
	var reply string
	err := s.db.QueryRowContext(ctx, "SELECT reply FROM links WHERE id = ?", postID).Scan(&reply)
	if errors.Is(err, sql.ErrNoRows) {
		return "", snapshot.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup reply for %s: %w", postID, err)
	}
	return reply, nil
}
