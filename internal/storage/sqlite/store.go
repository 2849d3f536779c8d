// Package sqlite is a SQLite-backed RecordStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/restkit/restkit/internal/storage"
)

// Store is a SQLite implementation of RecordStore.
type Store struct {
	db *sql.DB
}

var _ storage.RecordStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *storage.Record) error {
	rec.Version = 1
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	query := `INSERT INTO records (id, title, body, version, updated_at)
	          VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Title, rec.Body, rec.Version, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}

	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	query := `SELECT id, title, body, version, updated_at FROM records WHERE id = ?`

	var rec storage.Record
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Title, &rec.Body, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec *storage.Record, expectedVersion int64) error {
	rec.Version = expectedVersion + 1
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	query := `UPDATE records SET title = ?, body = ?, version = ?, updated_at = ?
	          WHERE id = ? AND version = ?`

	res, err := s.db.ExecContext(ctx, query,
		rec.Title, rec.Body, rec.Version, rec.UpdatedAt, rec.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the record is gone or someone updated it first.
		if _, err := s.GetRecord(ctx, rec.ID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}

	return nil
}

func (s *Store) ListRecords(ctx context.Context) ([]*storage.Record, error) {
	query := `SELECT id, title, body, version, updated_at FROM records ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Body, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
