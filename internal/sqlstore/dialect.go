package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// timeLayout is fixed-width so that TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// dialect captures the differences between the supported SQL engines.
type dialect interface {
	// driver is the database/sql driver name.
	driver() string
	// columnType returns the DDL column type for a field type.
	columnType(ft types.FieldType) string
	// encode converts a typed record value into a driver argument.
	encode(ft types.FieldType, v any) any
	// likeOp is the case-insensitive pattern match operator.
	likeOp() string
	// columns lists the existing columns of a table.
	columns(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error)
	// isUniqueViolation reports whether err is a unique constraint failure.
	isUniqueViolation(err error) bool
}

func dialectFor(backend string) (dialect, error) {
	switch backend {
	case types.BackendSQLite:
		return sqliteDialect{}, nil
	case types.BackendPostgres:
		return postgresDialect{}, nil
	default:
		return nil, types.ErrBackendUnknown
	}
}

type sqliteDialect struct{}

func (sqliteDialect) driver() string { return "sqlite" }

func (sqliteDialect) columnType(ft types.FieldType) string {
	switch ft {
	case types.FieldInteger, types.FieldMoney, types.FieldBoolean:
		return "INTEGER"
	case types.FieldDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) encode(ft types.FieldType, v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (sqliteDialect) likeOp() string { return "LIKE" }

func (sqliteDialect) columns(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error) {
	var cols []string
	if err := sqlx.SelectContext(ctx, q, &cols, "SELECT name FROM pragma_table_info(?)", table); err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", table, err)
	}
	return cols, nil
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type postgresDialect struct{}

func (postgresDialect) driver() string { return "postgres" }

func (postgresDialect) columnType(ft types.FieldType) string {
	switch ft {
	case types.FieldInteger, types.FieldMoney:
		return "BIGINT"
	case types.FieldDecimal:
		return "DOUBLE PRECISION"
	case types.FieldBoolean:
		return "BOOLEAN"
	case types.FieldTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (postgresDialect) encode(ft types.FieldType, v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func (postgresDialect) likeOp() string { return "ILIKE" }

func (postgresDialect) columns(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error) {
	var cols []string
	err := sqlx.SelectContext(ctx, q, &cols,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1", table)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", table, err)
	}
	return cols, nil
}

func (postgresDialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// quote quotes an identifier. Identifiers come from validated resource
// configuration, never from request input.
func quote(ident string) string {
	return `"` + ident + `"`
}
