package types

import (
	"context"
	"errors"
)

// Table provides uniform CRUD operations for a single resource.
// Records passed to Set are expected to be typed already (see Resource.Coerce);
// the table only checks that every key is a known column.
type Table interface {
	// Resource returns the configuration the table was built from.
	Resource() Resource

	// Get retrieves the record with the given ID.
	// Returns ErrNotFound if no record exists with that ID.
	Get(ctx context.Context, id string) (Record, error)

	// Set creates or updates a record. When id is empty a new UUID v7 is
	// generated and created_at/updated_at are stamped. When id is not empty
	// only the columns present in rec are updated and ErrNotFound is returned
	// if the record does not exist. Returns the ID used.
	Set(ctx context.Context, id string, rec Record) (string, error)

	// Delete removes the record with the given ID.
	// Returns ErrNotFound if no record exists with that ID.
	Delete(ctx context.Context, id string) error

	// Fetch returns one page of records matching the query.
	Fetch(ctx context.Context, q Query) (Page, error)

	// Count returns how many records match the equality filter.
	Count(ctx context.Context, filter map[string]any) (int, error)
}

// Tables resolves tables by resource name.
type Tables interface {
	// Table returns the Table for the given resource name.
	// Returns ErrTableNotFound if no such resource is registered.
	Table(name string) (Table, error)
}

// Store is the backend-agnostic entry point to resource storage.
// Callers attach to a backend, access tables by resource name, and detach
// when done.
type Store interface {
	Tables

	// Attach connects the Store to the backend described by config and
	// migrates the schema of every registered resource.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, table operations return ErrStoreDetached.
	Detach() error

	// Resources returns the registered resources in registration order.
	Resources() []Resource

	// WithTx runs fn inside a database transaction. Tables obtained from
	// the argument share the transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tables) error) error
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
)

// Table operation errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidID     = errors.New("invalid record ID")
	ErrInvalidData   = errors.New("invalid record data")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidSort   = errors.New("invalid sort column")
	ErrConflict      = errors.New("record conflicts with an existing record")
	ErrReadOnly      = errors.New("resource is read-only")
)

// ErrInvalidResource is wrapped by Resource.Validate failures.
var ErrInvalidResource = errors.New("invalid resource")
