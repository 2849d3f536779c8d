// Package storage defines the persistence contract for the demo records
// resource. Records are versioned so handlers can derive ETag and
// Last-Modified validators from stored state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// ErrVersionConflict indicates a concurrent update: the expected version no
// longer matches the stored one.
var ErrVersionConflict = errors.New("storage: version conflict")

// Record is a versioned stored document. Version increments on every update;
// UpdatedAt has second precision (HTTP validator granularity).
type Record struct {
	ID        string    `json:"id" xml:"id"`
	Title     string    `json:"title" xml:"title"`
	Body      string    `json:"body" xml:"body"`
	Version   int64     `json:"version" xml:"version"`
	UpdatedAt time.Time `json:"updated_at" xml:"updated_at"`
}

// RecordStore persists records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)

	// UpdateRecord applies rec's fields when the stored version equals
	// expectedVersion, bumping the version. Returns ErrVersionConflict
	// otherwise.
	UpdateRecord(ctx context.Context, rec *Record, expectedVersion int64) error

	ListRecords(ctx context.Context) ([]*Record, error)
	Close() error
}
