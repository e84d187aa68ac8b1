package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// table implements types.Table for one resource. A table resolved through
// WithTx carries the transaction; otherwise it uses the backend's pool.
type table struct {
	backend *Backend
	res     types.Resource
	tx      *sqlx.Tx
}

// Resource returns the resource configuration of the table.
func (t *table) Resource() types.Resource {
	return t.res
}

// run calls fn with the transaction or, outside one, the attached pool.
func (t *table) run(fn func(x sqlx.ExtContext) error) error {
	if t.tx != nil {
		return fn(t.tx)
	}
	b := t.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return fn(b.db)
}

// atomic calls fn inside a transaction, starting one when the table is not
// already bound to a transaction.
func (t *table) atomic(ctx context.Context, fn func(x sqlx.ExtContext) error) error {
	if t.tx != nil {
		return fn(t.tx)
	}
	b := t.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *table) selectList() string {
	cols := t.res.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

func (t *table) encode(col string, v any) any {
	return t.backend.dialect.encode(t.res.ColumnType(col), v)
}

// Get retrieves a record by ID.
// Returns ErrInvalidID if id is empty, ErrNotFound if not found.
func (t *table) Get(ctx context.Context, id string) (types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var rec types.Record
	err := t.run(func(x sqlx.ExtContext) error {
		var err error
		rec, err = t.get(ctx, x, id)
		return err
	})
	return rec, err
}

func (t *table) get(ctx context.Context, x sqlx.ExtContext, id string) (types.Record, error) {
	query := x.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		t.selectList(), quote(t.res.Table), quote(types.ColumnID)))
	row := make(map[string]any)
	if err := x.QueryRowxContext(ctx, query, id).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get %s %s: %w", t.res.Name, id, err)
	}
	return decodeRecord(t.res, row), nil
}

// Set creates a record when id is empty and updates it otherwise.
func (t *table) Set(ctx context.Context, id string, rec types.Record) (string, error) {
	for key := range rec {
		if !t.res.HasColumn(key) {
			return "", fmt.Errorf("%w: unknown column %q", types.ErrInvalidData, key)
		}
	}

	var out string
	err := t.atomic(ctx, func(x sqlx.ExtContext) error {
		if id == "" {
			var err error
			out, err = t.insert(ctx, x, rec.Without(types.ColumnID))
			return err
		}
		if _, err := t.get(ctx, x, id); err != nil {
			return err
		}
		out = id
		return t.update(ctx, x, id, rec)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// insert writes a new row. A missing id is generated and missing
// timestamps are stamped with the current time.
func (t *table) insert(ctx context.Context, x sqlx.ExtContext, rec types.Record) (string, error) {
	rec = rec.Clone()
	if rec.ID() == "" {
		rec[types.ColumnID] = newID()
	}
	now := time.Now().UTC()
	if _, ok := rec[types.ColumnCreatedAt].(time.Time); !ok {
		rec[types.ColumnCreatedAt] = now
	}
	if _, ok := rec[types.ColumnUpdatedAt].(time.Time); !ok {
		rec[types.ColumnUpdatedAt] = now
	}
	id := rec.ID()

	if err := t.checkConstraints(ctx, x, id, rec); err != nil {
		return "", err
	}

	var cols, marks []string
	var args []any
	for _, col := range t.res.Columns() {
		v, ok := rec[col]
		if !ok {
			continue
		}
		cols = append(cols, quote(col))
		marks = append(marks, "?")
		args = append(args, t.encode(col, v))
	}
	query := x.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.res.Table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if _, err := x.ExecContext(ctx, query, args...); err != nil {
		if t.backend.dialect.isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", types.ErrConflict, t.res.Name)
		}
		return "", fmt.Errorf("insert %s: %w", t.res.Name, err)
	}
	return id, nil
}

// update writes the columns present in rec. updated_at is stamped unless
// rec carries one.
func (t *table) update(ctx context.Context, x sqlx.ExtContext, id string, rec types.Record) error {
	rec = rec.Without(types.ColumnID, types.ColumnCreatedAt)
	if _, ok := rec[types.ColumnUpdatedAt].(time.Time); !ok {
		rec[types.ColumnUpdatedAt] = time.Now().UTC()
	}

	if err := t.checkConstraints(ctx, x, id, rec); err != nil {
		return err
	}

	var sets []string
	var args []any
	for _, col := range t.res.Columns() {
		v, ok := rec[col]
		if !ok {
			continue
		}
		sets = append(sets, quote(col)+" = ?")
		args = append(args, t.encode(col, v))
	}
	args = append(args, id)
	query := x.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(t.res.Table), strings.Join(sets, ", "), quote(types.ColumnID)))
	if _, err := x.ExecContext(ctx, query, args...); err != nil {
		if t.backend.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", types.ErrConflict, t.res.Name)
		}
		return fmt.Errorf("update %s %s: %w", t.res.Name, id, err)
	}
	return nil
}

// checkConstraints verifies reference targets and unique fields for the
// values in rec, reporting failures per field.
func (t *table) checkConstraints(ctx context.Context, x sqlx.ExtContext, id string, rec types.Record) error {
	verr := &types.ValidationError{}
	for _, f := range t.res.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		if f.Type == types.FieldReference {
			target, ok := t.backend.byName[f.References]
			if !ok {
				return fmt.Errorf("%w: %s", types.ErrTableNotFound, f.References)
			}
			var n int
			query := x.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quote(target.Table), quote(types.ColumnID)))
			if err := sqlx.GetContext(ctx, x, &n, query, v); err != nil {
				return fmt.Errorf("check reference %s.%s: %w", t.res.Name, f.Name, err)
			}
			if n == 0 {
				verr.Add(f.Name, "references a missing record")
			}
		}
		if f.Unique {
			var n int
			query := x.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s <> ?",
				quote(t.res.Table), quote(f.Name), quote(types.ColumnID)))
			if err := sqlx.GetContext(ctx, x, &n, query, t.encode(f.Name, v), id); err != nil {
				return fmt.Errorf("check unique %s.%s: %w", t.res.Name, f.Name, err)
			}
			if n > 0 {
				verr.Add(f.Name, "is already taken")
			}
		}
	}
	if !verr.Empty() {
		return verr
	}
	return nil
}

// Delete removes a record. Records of other resources that reference it
// through a required reference are deleted with it; optional references
// are cleared.
func (t *table) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return t.atomic(ctx, func(x sqlx.ExtContext) error {
		return t.backend.deleteCascade(ctx, x, t.res, id, make(map[string]map[string]bool))
	})
}

// deleteCascade deletes id and its dependents. deleting holds the records
// already being deleted per resource, so self and cyclic references end the
// recursion.
func (b *Backend) deleteCascade(ctx context.Context, x sqlx.ExtContext, res types.Resource, id string, deleting map[string]map[string]bool) error {
	if deleting[res.Name][id] {
		return nil
	}
	if deleting[res.Name] == nil {
		deleting[res.Name] = make(map[string]bool)
	}
	deleting[res.Name][id] = true

	var n int
	query := x.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quote(res.Table), quote(types.ColumnID)))
	if err := sqlx.GetContext(ctx, x, &n, query, id); err != nil {
		return fmt.Errorf("check %s %s: %w", res.Name, id, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}

	for _, other := range b.resources {
		for _, f := range other.Fields {
			if f.Type != types.FieldReference || f.References != res.Name {
				continue
			}
			if f.Required {
				var children []string
				query := x.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
					quote(types.ColumnID), quote(other.Table), quote(f.Name)))
				if err := sqlx.SelectContext(ctx, x, &children, query, id); err != nil {
					return fmt.Errorf("list %s referencing %s: %w", other.Name, id, err)
				}
				for _, child := range children {
					if err := b.deleteCascade(ctx, x, other, child, deleting); err != nil && !errors.Is(err, types.ErrNotFound) {
						return err
					}
				}
				continue
			}
			query := x.Rebind(fmt.Sprintf("UPDATE %s SET %s = NULL, %s = ? WHERE %s = ?",
				quote(other.Table), quote(f.Name), quote(types.ColumnUpdatedAt), quote(f.Name)))
			now := b.dialect.encode(types.FieldTimestamp, time.Now().UTC())
			if _, err := x.ExecContext(ctx, query, now, id); err != nil {
				return fmt.Errorf("clear %s.%s: %w", other.Name, f.Name, err)
			}
		}
	}

	query = x.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(res.Table), quote(types.ColumnID)))
	if _, err := x.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", res.Name, id, err)
	}
	return nil
}

// Fetch returns one page of records matching q.
func (t *table) Fetch(ctx context.Context, q types.Query) (types.Page, error) {
	where, args, err := t.where(q.Filter, q.Search)
	if err != nil {
		return types.Page{}, err
	}
	order, err := t.orderBy(q.Sort, q.Desc)
	if err != nil {
		return types.Page{}, err
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	page := types.Page{Records: []types.Record{}, Limit: q.Limit, Offset: offset}
	if q.Limit <= 0 {
		page.Limit, page.Offset = 0, 0
	}

	err = t.run(func(x sqlx.ExtContext) error {
		countQuery := x.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(t.res.Table), where))
		if err := sqlx.GetContext(ctx, x, &page.Total, countQuery, args...); err != nil {
			return fmt.Errorf("count %s: %w", t.res.Name, err)
		}

		query := fmt.Sprintf("SELECT %s FROM %s%s%s", t.selectList(), quote(t.res.Table), where, order)
		selectArgs := append([]any{}, args...)
		if page.Limit > 0 {
			query += " LIMIT ? OFFSET ?"
			selectArgs = append(selectArgs, page.Limit, page.Offset)
		}
		rows, err := x.QueryxContext(ctx, x.Rebind(query), selectArgs...)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", t.res.Name, err)
		}
		defer rows.Close()
		for rows.Next() {
			row := make(map[string]any)
			if err := rows.MapScan(row); err != nil {
				return fmt.Errorf("scan %s: %w", t.res.Name, err)
			}
			page.Records = append(page.Records, decodeRecord(t.res, row))
		}
		return rows.Err()
	})
	if err != nil {
		return types.Page{}, err
	}
	return page, nil
}

// Count returns the number of records matching filter.
func (t *table) Count(ctx context.Context, filter map[string]any) (int, error) {
	where, args, err := t.where(filter, "")
	if err != nil {
		return 0, err
	}
	var n int
	err = t.run(func(x sqlx.ExtContext) error {
		query := x.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(t.res.Table), where))
		return sqlx.GetContext(ctx, x, &n, query, args...)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.res.Name, err)
	}
	return n, nil
}

// where builds the WHERE clause for an equality filter and a search term.
func (t *table) where(filter map[string]any, search string) (string, []any, error) {
	var conds []string
	var args []any

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !t.res.HasColumn(key) {
			return "", nil, fmt.Errorf("%w: unknown column %q", types.ErrInvalidFilter, key)
		}
		switch v := filter[key].(type) {
		case nil:
			conds = append(conds, quote(key)+" IS NULL")
		case []string:
			if len(v) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			marks := make([]string, len(v))
			for i, s := range v {
				cv, err := t.filterValue(key, s)
				if err != nil {
					return "", nil, err
				}
				marks[i] = "?"
				args = append(args, cv)
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", quote(key), strings.Join(marks, ", ")))
		default:
			cv, err := t.filterValue(key, v)
			if err != nil {
				return "", nil, err
			}
			if cv == nil {
				conds = append(conds, quote(key)+" IS NULL")
				continue
			}
			conds = append(conds, quote(key)+" = ?")
			args = append(args, cv)
		}
	}

	if search = strings.TrimSpace(search); search != "" {
		fields := t.res.SearchFields()
		if len(fields) == 0 && t.res.TitleField != "" {
			if f, ok := t.res.Field(t.res.TitleField); ok {
				fields = []types.Field{f}
			}
		}
		if len(fields) > 0 {
			pattern := "%" + escapeLike(search) + "%"
			ors := make([]string, len(fields))
			for i, f := range fields {
				ors[i] = fmt.Sprintf("CAST(%s AS TEXT) %s ? ESCAPE '\\'", quote(f.Name), t.backend.dialect.likeOp())
				args = append(args, pattern)
			}
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// filterValue coerces a filter value to the column type and encodes it.
func (t *table) filterValue(col string, v any) (any, error) {
	f, ok := t.res.Field(col)
	if !ok {
		f = types.Field{Name: col, Type: t.res.ColumnType(col)}
	}
	cv, err := types.CoerceValue(f, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %v", types.ErrInvalidFilter, col, err)
	}
	if cv == nil {
		return nil, nil
	}
	return t.encode(col, cv), nil
}

// orderBy builds the ORDER BY clause, defaulting to the resource sort.
// The id is a tiebreaker so that pagination is stable.
func (t *table) orderBy(sortCol string, desc bool) (string, error) {
	if sortCol == "" {
		sortCol, desc = t.res.SortSpec()
	}
	if !t.res.HasColumn(sortCol) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidSort, sortCol)
	}
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	return " ORDER BY " + quote(sortCol) + dir + ", " + quote(types.ColumnID) + dir, nil
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
