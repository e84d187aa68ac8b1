// Package sqlstore implements the resource Store on SQL databases through
// sqlx. SQLite (modernc.org/sqlite) is the default engine; Postgres
// (lib/pq) is selected with Config.Backend = "postgres".
//
// Every statement is generated from resource configuration: table and
// column names come from validated resources and every value is bound as a
// parameter.
package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/pantry/internal/paths"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// connectTimeout bounds Attach, including retries.
const connectTimeout = 30 * time.Second

// Backend implements types.Store over a SQL database.
type Backend struct {
	mu         sync.RWMutex
	attached   bool
	config     types.Config
	db         *sqlx.DB
	dialect    dialect
	resources  []types.Resource
	byName     map[string]types.Resource
	migrations []string
}

var _ types.Store = (*Backend)(nil)

// NewBackend creates a backend serving the given resources, which must
// already be validated (see resources.Registry); they are normalized here.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(res []types.Resource) *Backend {
	b := &Backend{
		resources: make([]types.Resource, len(res)),
		byName:    make(map[string]types.Resource, len(res)),
	}
	for i, r := range res {
		r = r.Normalized()
		b.resources[i] = r
		b.byName[r.Name] = r
	}
	return b
}

// Attach opens the database described by config and migrates every
// resource table. For SQLite the DataDir is created if missing.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	d, err := dialectFor(config.Backend)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := open(ctx, d, config)
	if err != nil {
		return err
	}

	var applied []string
	for _, res := range b.resources {
		ddl, err := migrate(ctx, db, d, res)
		if err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		applied = append(applied, ddl...)
	}

	b.db = db
	b.dialect = d
	b.config = config
	b.migrations = applied
	b.attached = true
	return nil
}

// open connects to the database. Postgres connections are retried since
// the server may still be starting; SQLite is limited to one connection so
// that writers never see SQLITE_BUSY.
func open(ctx context.Context, d dialect, config types.Config) (*sqlx.DB, error) {
	switch config.Backend {
	case types.BackendSQLite:
		dbFile := paths.DatabaseFile(config.DataDir)
		if err := os.MkdirAll(filepath.Dir(dbFile), 0o755); err != nil {
			return nil, err
		}
		dsn := "file:" + dbFile +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err := sqlx.ConnectContext(ctx, d.driver(), dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, nil

	default:
		var db *sqlx.DB
		err := retry.Do(
			func() error {
				var err error
				db, err = sqlx.ConnectContext(ctx, d.driver(), config.DSN)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(5),
			retry.Delay(500*time.Millisecond),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", config.Backend, err)
		}
		return db, nil
	}
}

// Detach closes the database. After Detach all operations return
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		return err
	}
	return nil
}

// Table returns the table for the named resource.
// Returns ErrStoreDetached if the backend is not attached and
// ErrTableNotFound if the resource is not registered.
func (b *Backend) Table(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	res, ok := b.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, name)
	}
	return &table{backend: b, res: res}, nil
}

// Resources returns the resources served by this backend.
func (b *Backend) Resources() []types.Resource {
	out := make([]types.Resource, len(b.resources))
	copy(out, b.resources)
	return out
}

// Migrations returns the DDL statements applied by the last Attach, not
// counting idempotent index statements.
func (b *Backend) Migrations() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.migrations))
	copy(out, b.migrations)
	return out
}

// WithTx runs fn in a transaction. Tables resolved through the argument
// share the transaction; fn must not use tables obtained from the Backend
// itself while it runs.
func (b *Backend) WithTx(ctx context.Context, fn func(tx types.Tables) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txTables{backend: b, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txTables resolves tables bound to one transaction.
type txTables struct {
	backend *Backend
	tx      *sqlx.Tx
}

func (t *txTables) Table(name string) (types.Table, error) {
	res, ok := t.backend.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, name)
	}
	return &table{backend: t.backend, res: res, tx: t.tx}, nil
}

// newID generates a UUID v7 for record IDs.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to UUID v4 if v7 generation fails.
		return uuid.New().String()
	}
	return id.String()
}
