package types

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType determines how a field is stored, coerced and rendered.
type FieldType string

// Field types.
const (
	FieldString    FieldType = "string"
	FieldText      FieldType = "text"
	FieldInteger   FieldType = "integer"
	FieldMoney     FieldType = "money"
	FieldDecimal   FieldType = "decimal"
	FieldBoolean   FieldType = "boolean"
	FieldTimestamp FieldType = "timestamp"
	FieldEnum      FieldType = "enum"
	FieldReference FieldType = "reference"
)

// validFieldTypes is the set of recognized field types.
var validFieldTypes = map[FieldType]bool{
	FieldString:    true,
	FieldText:      true,
	FieldInteger:   true,
	FieldMoney:     true,
	FieldDecimal:   true,
	FieldBoolean:   true,
	FieldTimestamp: true,
	FieldEnum:      true,
	FieldReference: true,
}

// IsValid reports whether t is a recognized field type.
func (t FieldType) IsValid() bool {
	return validFieldTypes[t]
}

// Field describes one column of a resource.
type Field struct {
	Name       string    `json:"name" yaml:"name" toml:"name"`
	Label      string    `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Type       FieldType `json:"type" yaml:"type" toml:"type"`
	Required   bool      `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Unique     bool      `json:"unique,omitempty" yaml:"unique,omitempty" toml:"unique,omitempty"`
	List       bool      `json:"list,omitempty" yaml:"list,omitempty" toml:"list,omitempty"`
	Searchable bool      `json:"searchable,omitempty" yaml:"searchable,omitempty" toml:"searchable,omitempty"`
	Hidden     bool      `json:"hidden,omitempty" yaml:"hidden,omitempty" toml:"hidden,omitempty"`
	ReadOnly   bool      `json:"read_only,omitempty" yaml:"read_only,omitempty" toml:"read_only,omitempty"`
	Options    []string  `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	References string    `json:"references,omitempty" yaml:"references,omitempty" toml:"references,omitempty"`
	MaxLength  int       `json:"max_length,omitempty" yaml:"max_length,omitempty" toml:"max_length,omitempty"`
	Default    string    `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Help       string    `json:"help,omitempty" yaml:"help,omitempty" toml:"help,omitempty"`
}

// Resource maps one entity to a table, its CRUD routes and its pages.
type Resource struct {
	Name        string  `json:"name" yaml:"name" toml:"name"`
	Table       string  `json:"table,omitempty" yaml:"table,omitempty" toml:"table,omitempty"`
	Label       string  `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Plural      string  `json:"plural,omitempty" yaml:"plural,omitempty" toml:"plural,omitempty"`
	TitleField  string  `json:"title_field,omitempty" yaml:"title_field,omitempty" toml:"title_field,omitempty"`
	DefaultSort string  `json:"default_sort,omitempty" yaml:"default_sort,omitempty" toml:"default_sort,omitempty"`
	PerPage     int     `json:"per_page,omitempty" yaml:"per_page,omitempty" toml:"per_page,omitempty"`
	Public      bool    `json:"public,omitempty" yaml:"public,omitempty" toml:"public,omitempty"`
	Internal    bool    `json:"internal,omitempty" yaml:"internal,omitempty" toml:"internal,omitempty"`
	ReadOnly    bool    `json:"read_only,omitempty" yaml:"read_only,omitempty" toml:"read_only,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields" toml:"fields"`
}

// DefaultPerPage is used when a resource does not set PerPage.
const DefaultPerPage = 25

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks that the resource is well-formed. Call it on a
// normalized resource; failures wrap ErrInvalidResource.
func (r Resource) Validate() error {
	if !identRe.MatchString(r.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidResource, r.Name, identRe)
	}
	if r.Table != "" && !identRe.MatchString(r.Table) {
		return fmt.Errorf("%w: %s: table %q must match %s", ErrInvalidResource, r.Name, r.Table, identRe)
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: %s: at least one field is required", ErrInvalidResource, r.Name)
	}
	seen := make(map[string]bool, len(r.Fields))
	for _, f := range r.Fields {
		if !identRe.MatchString(f.Name) {
			return fmt.Errorf("%w: %s: field name %q must match %s", ErrInvalidResource, r.Name, f.Name, identRe)
		}
		if reservedColumns[f.Name] {
			return fmt.Errorf("%w: %s: field name %q is reserved", ErrInvalidResource, r.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidResource, r.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.IsValid() {
			return fmt.Errorf("%w: %s.%s: unknown type %q", ErrInvalidResource, r.Name, f.Name, f.Type)
		}
		if f.Type == FieldEnum && len(f.Options) == 0 {
			return fmt.Errorf("%w: %s.%s: enum needs options", ErrInvalidResource, r.Name, f.Name)
		}
		if f.Type == FieldReference && f.References == "" {
			return fmt.Errorf("%w: %s.%s: reference needs a target resource", ErrInvalidResource, r.Name, f.Name)
		}
		if f.Default != "" {
			if _, err := coerceValue(f, f.Default); err != nil {
				return fmt.Errorf("%w: %s.%s: default: %v", ErrInvalidResource, r.Name, f.Name, err)
			}
		}
	}
	if r.TitleField != "" && !seen[r.TitleField] && r.TitleField != ColumnID {
		return fmt.Errorf("%w: %s: title field %q is not a field", ErrInvalidResource, r.Name, r.TitleField)
	}
	if r.DefaultSort != "" {
		col := strings.TrimPrefix(r.DefaultSort, "-")
		if !seen[col] && !reservedColumns[col] {
			return fmt.Errorf("%w: %s: default sort %q is not a column", ErrInvalidResource, r.Name, r.DefaultSort)
		}
	}
	if r.PerPage < 0 {
		return fmt.Errorf("%w: %s: per_page must not be negative", ErrInvalidResource, r.Name)
	}
	return nil
}

// Normalized returns a copy of the resource with derived defaults filled
// in: table name, labels, title field and page size.
func (r Resource) Normalized() Resource {
	out := r
	out.Fields = make([]Field, len(r.Fields))
	copy(out.Fields, r.Fields)
	if out.Table == "" {
		out.Table = out.Name
	}
	if out.Plural == "" {
		out.Plural = Humanize(out.Name)
	}
	if out.Label == "" {
		out.Label = Humanize(Singular(out.Name))
	}
	if out.PerPage == 0 {
		out.PerPage = DefaultPerPage
	}
	for i := range out.Fields {
		if out.Fields[i].Label == "" {
			out.Fields[i].Label = Humanize(out.Fields[i].Name)
		}
	}
	if out.TitleField == "" {
		for _, f := range out.Fields {
			if f.Type == FieldString && !f.Hidden {
				out.TitleField = f.Name
				break
			}
		}
	}
	return out
}

// Columns returns every column of the resource table: id, the declared
// fields in order, then the timestamps.
func (r Resource) Columns() []string {
	cols := make([]string, 0, len(r.Fields)+3)
	cols = append(cols, ColumnID)
	for _, f := range r.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, ColumnCreatedAt, ColumnUpdatedAt)
}

// HasColumn reports whether name is a column of the resource table.
func (r Resource) HasColumn(name string) bool {
	if reservedColumns[name] {
		return true
	}
	_, ok := r.Field(name)
	return ok
}

// Field returns the declared field with the given name.
func (r Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnType returns the field type of a column, treating the reserved
// columns as string id and timestamps.
func (r Resource) ColumnType(name string) FieldType {
	switch name {
	case ColumnID:
		return FieldString
	case ColumnCreatedAt, ColumnUpdatedAt:
		return FieldTimestamp
	}
	f, _ := r.Field(name)
	return f.Type
}

// VisibleFields returns the fields that are not Hidden.
func (r Resource) VisibleFields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if !f.Hidden {
			out = append(out, f)
		}
	}
	return out
}

// FormFields returns the fields a user may edit.
func (r Resource) FormFields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if !f.Hidden && !f.ReadOnly {
			out = append(out, f)
		}
	}
	return out
}

// ListFields returns the fields shown in list views: those marked List, or
// the first three visible fields when none are.
func (r Resource) ListFields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.List && !f.Hidden {
			out = append(out, f)
		}
	}
	if len(out) > 0 {
		return out
	}
	visible := r.VisibleFields()
	if len(visible) > 3 {
		visible = visible[:3]
	}
	return visible
}

// SearchFields returns the fields matched by Query.Search.
func (r Resource) SearchFields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Searchable {
			out = append(out, f)
		}
	}
	return out
}

// SortSpec returns the default sort column and direction.
func (r Resource) SortSpec() (string, bool) {
	if r.DefaultSort == "" {
		return ColumnCreatedAt, true
	}
	if strings.HasPrefix(r.DefaultSort, "-") {
		return r.DefaultSort[1:], true
	}
	return r.DefaultSort, false
}

// Title returns the human label of a record.
func (r Resource) Title(rec Record) string {
	if r.TitleField != "" {
		if s := rec.String(r.TitleField); s != "" {
			return s
		}
	}
	return rec.ID()
}

// Humanize turns an identifier such as "order_items" into "Order items".
func Humanize(ident string) string {
	s := strings.ReplaceAll(ident, "_", " ")
	s = strings.TrimSuffix(s, " id")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Singular makes a best-effort English singular of a plural identifier.
func Singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "sses"), strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"), strings.HasSuffix(s, "xes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
