// Package store defines the generic record store used for leads and
// conversation history.
package store

import (
	"context"
	"errors"
)

// Record is one row, keyed by column name.
type Record map[string]any

// Filters selects rows by column equality.
type Filters map[string]any

// Patch holds the columns to change in UpdateOne.
type Patch map[string]any

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
)

// RecordStore persists records in named tables.
type RecordStore interface {
	// InsertMany inserts all records in one transaction: either every record
	// is stored or none is. Missing ids and timestamps are filled in and the
	// stored records are returned.
	InsertMany(ctx context.Context, table string, records []Record) ([]Record, error)

	// SelectFiltered returns one page (1-based) of matching records, newest
	// first, and the total number of matches. limit <= 0 returns all.
	SelectFiltered(ctx context.Context, table string, filters Filters, page, limit int) ([]Record, int, error)

	// UpdateOne applies patch to the record with id and returns it.
	UpdateOne(ctx context.Context, table, id string, patch Patch) (Record, error)

	// DeleteOne removes the record with id.
	DeleteOne(ctx context.Context, table, id string) error

	// Get returns the record with id.
	Get(ctx context.Context, table, id string) (Record, error)
}
