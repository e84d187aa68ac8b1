package storefront

import "github.com/mesh-intelligence/pantry/pkg/types"

type layout struct {
	Title     string
	CartCount int64
	Notice    string
}

type categoryLink struct {
	ID      string
	Name    string
	Slug    string
	Current bool
}

type productCard struct {
	ID          string
	Name        string
	Slug        string
	Description string
	ImageURL    string
	CategoryID  string
	Price       int64
	Stock       int64
	Active      bool
}

// InStock reports whether at least one item can be ordered.
func (p productCard) InStock() bool {
	return p.Active && p.Stock > 0
}

func toCard(rec types.Record) productCard {
	return productCard{
		ID:          rec.ID(),
		Name:        rec.String("name"),
		Slug:        rec.String("slug"),
		Description: rec.String("description"),
		ImageURL:    rec.String("image_url"),
		CategoryID:  rec.String("category_id"),
		Price:       rec.Int("price"),
		Stock:       rec.Int("stock"),
		Active:      rec.Bool("active"),
	}
}

type homePage struct {
	layout
	Categories []categoryLink
	Products   []productCard
}

type productsPage struct {
	layout
	Categories []categoryLink
	Category   string
	Query      string
	Products   []productCard
	Total      int
	Page       int
	Pages      int
	PrevURL    string
	NextURL    string
}

type productPage struct {
	layout
	Product  productCard
	Category *categoryLink
}

type cartLine struct {
	Product  productCard
	Quantity int64
	Total    int64
}

type cartPage struct {
	layout
	Lines []cartLine
	Total int64
	Error string
}

type checkoutPage struct {
	layout
	Lines  []cartLine
	Total  int64
	Values map[string]string
	Errors map[string]string
	Error  string
}

type orderLine struct {
	Name      string
	Quantity  int64
	UnitPrice string
	LineTotal string
}

type orderPage struct {
	layout
	Reference    string
	CustomerName string
	Email        string
	Address      string
	Status       string
	Total        string
	Items        []orderLine
}

type errorPage struct {
	layout
	Status  int
	Message string
}

// checkoutFields are the order fields a customer fills in.
var checkoutFields = []string{"customer_name", "email", "address"}
