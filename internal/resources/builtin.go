package resources

import "github.com/mesh-intelligence/pantry/pkg/types"

// Built-in resource names.
const (
	Categories = "categories"
	Products   = "products"
	Orders     = "orders"
	OrderItems = "order_items"
	Users      = "users"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderShipped   = "shipped"
	OrderCancelled = "cancelled"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// Builtin returns the resources the storefront and auth depend on, in
// registration order.
func Builtin() []types.Resource {
	return []types.Resource{
		{
			Name:        Categories,
			Plural:      "Categories",
			Label:       "Category",
			DefaultSort: "position",
			Public:      true,
			Fields: []types.Field{
				{Name: "name", Type: types.FieldString, Required: true, List: true, Searchable: true, MaxLength: 80},
				{Name: "slug", Type: types.FieldString, Required: true, Unique: true, List: true, MaxLength: 80},
				{Name: "description", Type: types.FieldText},
				{Name: "position", Type: types.FieldInteger, Default: "0", List: true},
			},
		},
		{
			Name:   Products,
			Public: true,
			Fields: []types.Field{
				{Name: "name", Type: types.FieldString, Required: true, List: true, Searchable: true, MaxLength: 120},
				{Name: "slug", Type: types.FieldString, Required: true, Unique: true, MaxLength: 120},
				{Name: "description", Type: types.FieldText, Searchable: true},
				{Name: "price", Type: types.FieldMoney, Required: true, List: true, Help: "Amount such as 19.99"},
				{Name: "stock", Type: types.FieldInteger, Default: "0", List: true},
				{Name: "active", Type: types.FieldBoolean, Default: "true", List: true},
				{Name: "category_id", Label: "Category", Type: types.FieldReference, References: Categories},
				{Name: "image_url", Label: "Image URL", Type: types.FieldString, MaxLength: 500},
			},
		},
		{
			Name:       Orders,
			TitleField: "reference",
			Fields: []types.Field{
				{Name: "reference", Type: types.FieldString, Unique: true, ReadOnly: true, List: true, Searchable: true},
				{Name: "customer_name", Type: types.FieldString, Required: true, List: true, Searchable: true, MaxLength: 120},
				{Name: "email", Type: types.FieldString, Required: true, Searchable: true, MaxLength: 254},
				{Name: "address", Type: types.FieldText, Required: true},
				{Name: "status", Type: types.FieldEnum, Options: []string{OrderPending, OrderPaid, OrderShipped, OrderCancelled}, Default: OrderPending, List: true},
				{Name: "total", Type: types.FieldMoney, ReadOnly: true, List: true},
				{Name: "currency", Type: types.FieldString, ReadOnly: true},
			},
		},
		{
			Name:     OrderItems,
			Label:    "Order item",
			ReadOnly: true,
			Fields: []types.Field{
				{Name: "order_id", Label: "Order", Type: types.FieldReference, References: Orders, Required: true, List: true},
				{Name: "product_id", Label: "Product", Type: types.FieldReference, References: Products},
				{Name: "name", Type: types.FieldString, Required: true, List: true},
				{Name: "unit_price", Type: types.FieldMoney, Required: true},
				{Name: "quantity", Type: types.FieldInteger, Required: true, List: true},
				{Name: "line_total", Type: types.FieldMoney, List: true},
			},
		},
		{
			Name:     Users,
			Internal: true,
			Fields: []types.Field{
				{Name: "email", Type: types.FieldString, Required: true, Unique: true, List: true, Searchable: true, MaxLength: 254},
				{Name: "name", Type: types.FieldString, List: true, MaxLength: 120},
				{Name: "role", Type: types.FieldEnum, Options: []string{RoleAdmin, RoleEditor}, Default: RoleEditor, List: true},
				{Name: "password_hash", Type: types.FieldString, Hidden: true},
			},
		},
	}
}
