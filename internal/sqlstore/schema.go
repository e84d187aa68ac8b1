package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// createTableDDL builds the CREATE TABLE statement for a resource.
// Required is enforced by Resource.Coerce rather than NOT NULL so that
// fields can be added to populated tables.
func createTableDDL(d dialect, res types.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quote(res.Table))
	fmt.Fprintf(&b, "    %s TEXT PRIMARY KEY", quote(types.ColumnID))
	for _, f := range res.Fields {
		fmt.Fprintf(&b, ",\n    %s %s", quote(f.Name), d.columnType(f.Type))
	}
	ts := d.columnType(types.FieldTimestamp)
	fmt.Fprintf(&b, ",\n    %s %s NOT NULL", quote(types.ColumnCreatedAt), ts)
	fmt.Fprintf(&b, ",\n    %s %s NOT NULL\n)", quote(types.ColumnUpdatedAt), ts)
	return b.String()
}

// indexDDL builds the index statements for a resource: unique indexes for
// Unique fields, plain indexes for references and the creation time.
func indexDDL(res types.Resource) []string {
	var out []string
	for _, f := range res.Fields {
		name := quote(fmt.Sprintf("idx_%s_%s", res.Table, f.Name))
		switch {
		case f.Unique:
			out = append(out, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)", name, quote(res.Table), quote(f.Name)))
		case f.Type == types.FieldReference:
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, quote(res.Table), quote(f.Name)))
		}
	}
	out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
		quote(fmt.Sprintf("idx_%s_created_at", res.Table)), quote(res.Table), quote(types.ColumnCreatedAt)))
	return out
}

// migrate creates the table of res if needed and adds any declared field
// missing from an existing table. Columns are never dropped or retyped.
func migrate(ctx context.Context, db *sqlx.DB, d dialect, res types.Resource) ([]string, error) {
	var applied []string

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin migration of %s: %w", res.Name, err)
	}
	defer tx.Rollback()

	existing, err := d.columns(ctx, tx, res.Table)
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		ddl := createTableDDL(d, res)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating table %s: %w", res.Table, err)
		}
		applied = append(applied, ddl)
	} else {
		have := make(map[string]bool, len(existing))
		for _, c := range existing {
			have[c] = true
		}
		for _, f := range res.Fields {
			if have[f.Name] {
				continue
			}
			ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(res.Table), quote(f.Name), d.columnType(f.Type))
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return nil, fmt.Errorf("adding column %s.%s: %w", res.Table, f.Name, err)
			}
			applied = append(applied, ddl)
		}
	}

	for _, ddl := range indexDDL(res) {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating index on %s: %w", res.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit migration of %s: %w", res.Name, err)
	}
	return applied, nil
}
