package types

import (
	"fmt"
	"time"
)

// Reserved column names present on every resource table.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// reservedColumns cannot be declared as resource fields.
var reservedColumns = map[string]bool{
	ColumnID:        true,
	ColumnCreatedAt: true,
	ColumnUpdatedAt: true,
}

// Record is one row of a resource table keyed by column name.
// Values are typed according to the column's FieldType: string for string,
// text, enum and reference fields; int64 for integer and money; float64 for
// decimal; bool for boolean; time.Time for timestamp. Missing values are nil.
type Record map[string]any

// ID returns the record's primary key, or "" when unset.
func (r Record) ID() string {
	return r.String(ColumnID)
}

// String returns the value at key formatted as a string.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value at key as an int64. Non-numeric values yield 0.
func (r Record) Int(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Bool returns the value at key as a bool.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	default:
		return false
	}
}

// Time returns the value at key as a time.Time, or the zero time.
func (r Record) Time(key string) time.Time {
	if v, ok := r[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of the record with the given keys removed.
func (r Record) Without(keys ...string) Record {
	out := r.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Query selects a page of records from a Table.
// Filter is an equality filter on column names; a []string value matches
// any of its elements. Search is matched case-insensitively against the
// resource's searchable fields. Sort names a column; an empty Sort uses the
// resource's default ordering. A Limit of zero or less returns every
// matching record.
type Query struct {
	Filter map[string]any
	Search string
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}

// Page is the result of Table.Fetch.
type Page struct {
	Records []Record `json:"data"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Number returns the 1-based page number.
func (p Page) Number() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Pages returns the total number of pages, at least 1.
func (p Page) Pages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasNext reports whether a page follows this one.
func (p Page) HasNext() bool {
	return p.Number() < p.Pages()
}

// HasPrev reports whether a page precedes this one.
func (p Page) HasPrev() bool {
	return p.Number() > 1
}
