package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productResource() Resource {
	return Resource{
		Name: "products",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true, List: true, Searchable: true, MaxLength: 20},
			{Name: "description", Type: FieldText, Searchable: true},
			{Name: "price", Type: FieldMoney, Required: true, List: true},
			{Name: "stock", Type: FieldInteger, Default: "0"},
			{Name: "active", Type: FieldBoolean, List: true},
			{Name: "status", Type: FieldEnum, Options: []string{"draft", "live"}, Default: "draft"},
			{Name: "category_id", Type: FieldReference, References: "categories"},
			{Name: "secret", Type: FieldString, Hidden: true},
			{Name: "sku", Type: FieldString, ReadOnly: true},
		},
	}.Normalized()
}

func TestResourceNormalized(t *testing.T) {
	r := productResource()

	assert.Equal(t, "products", r.Table)
	assert.Equal(t, "Product", r.Label)
	assert.Equal(t, "Products", r.Plural)
	assert.Equal(t, "name", r.TitleField)
	assert.Equal(t, DefaultPerPage, r.PerPage)

	f, ok := r.Field("category_id")
	require.True(t, ok)
	assert.Equal(t, "Category", f.Label)
}

func TestResourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Resource)
		wantErr bool
	}{
		{name: "valid resource", mutate: func(r *Resource) {}},
		{name: "bad name", mutate: func(r *Resource) { r.Name = "Bad-Name" }, wantErr: true},
		{name: "no fields", mutate: func(r *Resource) { r.Fields = nil }, wantErr: true},
		{name: "reserved field", mutate: func(r *Resource) { r.Fields[0].Name = "id" }, wantErr: true},
		{name: "duplicate field", mutate: func(r *Resource) { r.Fields[1].Name = "name" }, wantErr: true},
		{name: "unknown type", mutate: func(r *Resource) { r.Fields[0].Type = "blob" }, wantErr: true},
		{name: "enum without options", mutate: func(r *Resource) { r.Fields[5].Options = nil }, wantErr: true},
		{name: "reference without target", mutate: func(r *Resource) { r.Fields[6].References = "" }, wantErr: true},
		{name: "bad default", mutate: func(r *Resource) { r.Fields[3].Default = "many" }, wantErr: true},
		{name: "unknown default sort", mutate: func(r *Resource) { r.DefaultSort = "-weight" }, wantErr: true},
		{name: "default sort on reserved column", mutate: func(r *Resource) { r.DefaultSort = "-updated_at" }},
		{name: "unknown title field", mutate: func(r *Resource) { r.TitleField = "nope" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := productResource()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResource)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceColumnsAndFieldSets(t *testing.T) {
	r := productResource()

	cols := r.Columns()
	assert.Equal(t, "id", cols[0])
	assert.Equal(t, []string{"created_at", "updated_at"}, cols[len(cols)-2:])
	assert.True(t, r.HasColumn("price"))
	assert.True(t, r.HasColumn("updated_at"))
	assert.False(t, r.HasColumn("weight"))

	var list []string
	for _, f := range r.ListFields() {
		list = append(list, f.Name)
	}
	assert.Equal(t, []string{"name", "price", "active"}, list)

	var form []string
	for _, f := range r.FormFields() {
		form = append(form, f.Name)
	}
	assert.NotContains(t, form, "secret")
	assert.NotContains(t, form, "sku")

	assert.Len(t, r.SearchFields(), 2)
	assert.Equal(t, FieldTimestamp, r.ColumnType("created_at"))
	assert.Equal(t, FieldMoney, r.ColumnType("price"))
}

func TestResourceSortSpec(t *testing.T) {
	r := productResource()
	col, desc := r.SortSpec()
	assert.Equal(t, "created_at", col)
	assert.True(t, desc)

	r.DefaultSort = "name"
	col, desc = r.SortSpec()
	assert.Equal(t, "name", col)
	assert.False(t, desc)
}

func TestResourceTitle(t *testing.T) {
	r := productResource()
	assert.Equal(t, "Lamp", r.Title(Record{"id": "x", "name": "Lamp"}))
	assert.Equal(t, "x", r.Title(Record{"id": "x"}))
}

func TestSingularAndHumanize(t *testing.T) {
	assert.Equal(t, "category", Singular("categories"))
	assert.Equal(t, "order_item", Singular("order_items"))
	assert.Equal(t, "address", Singular("addresses"))
	assert.Equal(t, "box", Singular("boxes"))
	assert.Equal(t, "Order items", Humanize("order_items"))
	assert.Equal(t, "Product", Humanize("product_id"))
}
