package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

type fixture struct {
	store   *sqlstore.Backend
	shop    *Handler
	handler http.Handler
	cookie  *http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := sqlstore.NewBackend(resources.Builtin())
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })
	_, err := sqlstore.Seed(context.Background(), store)
	require.NoError(t, err)

	shop, err := New(store, Options{Currency: "EUR", CartTTL: time.Hour}, logging.Test(t))
	require.NoError(t, err)
	return &fixture{store: store, shop: shop, handler: shop.Routes()}
}

func (f *fixture) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if f.cookie != nil {
		req.AddCookie(f.cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == CartCookie {
			f.cookie = c
		}
	}
	return rec
}

func (f *fixture) product(t *testing.T, slug string) types.Record {
	t.Helper()
	tbl, err := f.store.Table(resources.Products)
	require.NoError(t, err)
	page, err := tbl.Fetch(context.Background(), types.Query{Filter: map[string]any{"slug": slug}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	return page.Records[0]
}

func (f *fixture) addToCart(t *testing.T, slug string, qty string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/cart/items", url.Values{"product_id": {f.product(t, slug).ID()}, "quantity": {qty}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/cart?notice=added", rec.Header().Get("Location"))
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Preserves")
	assert.Contains(t, body, "Breakfast tea")
	assert.Contains(t, body, "12.90 EUR")

	rec = f.do(t, http.MethodGet, "/products?category=preserves", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "2 products")
	assert.Contains(t, body, "Pickled walnuts")
	assert.NotContains(t, body, "Arborio rice")

	rec = f.do(t, http.MethodGet, "/products?q=rice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 products")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/products?category=nope", nil).Code)

	rec = f.do(t, http.MethodGet, "/products/coffee-beans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "Out of stock")
	assert.NotContains(t, body, "Add to cart")
	assert.Contains(t, body, `href="/products?category=tea-coffee"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/products/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nowhere", nil).Code)
}

func TestInactiveProductsAreHidden(t *testing.T) {
	f := newFixture(t)
	tbl, err := f.store.Table(resources.Products)
	require.NoError(t, err)
	_, err = tbl.Set(context.Background(), f.product(t, "arborio-rice").ID(), types.Record{"active": false})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/products/arborio-rice", nil).Code)
	assert.NotContains(t, f.do(t, http.MethodGet, "/products", nil).Body.String(), "Arborio rice")

	rec := f.do(t, http.MethodPost, "/cart/items", url.Values{"product_id": {f.product(t, "arborio-rice").ID()}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your cart is empty.")
	assert.Nil(t, f.cookie, "viewing the cart does not issue a cookie")

	f.addToCart(t, "breakfast-tea", "2")
	require.NotNil(t, f.cookie)
	assert.True(t, f.cookie.HttpOnly)
	f.addToCart(t, "breakfast-tea", "")
	f.addToCart(t, "olive-oil", "1")

	rec = f.do(t, http.MethodGet, "/cart?notice=added", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Added to your cart.")
	assert.Contains(t, body, "Cart (4)")
	assert.Contains(t, body, "14.85 EUR", "3 x 4.95")
	assert.Contains(t, body, "27.75 EUR", "14.85 + 12.90")

	tea := f.product(t, "breakfast-tea").ID()
	rec = f.do(t, http.MethodPost, "/cart/items/"+tea+"/update", url.Values{"quantity": {"1"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, int64(2), f.shop.Carts().Get(f.cookie.Value).Quantity())

	rec = f.do(t, http.MethodPost, "/cart/items/"+tea+"/update", url.Values{"quantity": {"lots"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/cart/items/"+tea+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart?notice=removed", rec.Header().Get("Location"))
	assert.Equal(t, int64(1), f.shop.Carts().Get(f.cookie.Value).Quantity())

	rec = f.do(t, http.MethodPost, "/cart/items", url.Values{"product_id": {tea}, "quantity": {"0"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/checkout", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, "empty carts go back to the cart page")
	assert.Equal(t, "/cart", rec.Header().Get("Location"))

	f.addToCart(t, "pickled-walnuts", "3")
	f.addToCart(t, "orange-marmalade", "1")

	rec = f.do(t, http.MethodGet, "/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "28.90 EUR")

	rec = f.do(t, http.MethodPost, "/checkout", url.Values{"customer_name": {"Ada"}, "email": {"not an email"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Email must be an email address")
	assert.Contains(t, body, "Address is required")
	assert.Contains(t, body, `value="Ada"`)

	rec = f.do(t, http.MethodPost, "/checkout", url.Values{
		"customer_name": {"Ada"}, "email": {"ada@example.com"}, "address": {"1 Analytical Way"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/orders/"), location)
	ref := strings.TrimPrefix(location, "/orders/")
	assert.Len(t, ref, 27, "ksuid reference")

	assert.Equal(t, int64(5), f.product(t, "pickled-walnuts").Int("stock"))
	assert.Equal(t, int64(29), f.product(t, "orange-marmalade").Int("stock"))
	assert.Empty(t, f.shop.Carts().Get(f.cookie.Value).Lines, "the cart is cleared")

	orders, err := f.store.Table(resources.Orders)
	require.NoError(t, err)
	page, err := orders.Fetch(ctx, types.Query{Filter: map[string]any{"reference": ref}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	order := page.Records[0]
	assert.Equal(t, int64(2890), order.Int("total"))
	assert.Equal(t, "EUR", order.String("currency"))
	assert.Equal(t, resources.OrderPending, order.String("status"))

	items, err := f.store.Table(resources.OrderItems)
	require.NoError(t, err)
	n, err := items.Count(ctx, map[string]any{"order_id": order.ID()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec = f.do(t, http.MethodGet, location, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "Thank you, Ada")
	assert.Contains(t, body, ref)
	assert.Contains(t, body, "23.40 EUR", "3 x 7.80")
	assert.Less(t, strings.Index(body, "Pickled walnuts"), strings.Index(body, "Seville orange marmalade"), "items keep cart order")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/orders/unknown", nil).Code)
}

func TestCheckoutOutOfStock(t *testing.T) {
	f := newFixture(t)
	f.addToCart(t, "olive-oil", "2")
	f.addToCart(t, "pickled-walnuts", "9")

	rec := f.do(t, http.MethodPost, "/checkout", url.Values{
		"customer_name": {"Ada"}, "email": {"ada@example.com"}, "address": {"1 Analytical Way"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "only 8 of Pickled walnuts left in stock")

	assert.Equal(t, int64(12), f.product(t, "olive-oil").Int("stock"), "the transaction rolled back")
	orders, err := f.store.Table(resources.Orders)
	require.NoError(t, err)
	n, err := orders.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(11), f.shop.Carts().Get(f.cookie.Value).Quantity(), "the cart is kept")
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := types.Record{"customer_name": "Ada", "email": "ada@example.com", "address": "1 Analytical Way"}

	_, err := f.shop.PlaceOrder(ctx, Cart{}, customer)
	assert.ErrorIs(t, err, types.ErrInvalidData)

	beans := f.product(t, "coffee-beans")
	_, err = f.shop.PlaceOrder(ctx, Cart{Lines: []Line{{beans.ID(), 1}}}, customer)
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.ErrorIs(t, err, types.ErrConflict)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Single origin beans is out of stock", stockErr.Error())

	_, err = f.shop.PlaceOrder(ctx, Cart{Lines: []Line{{"missing", 1}}}, customer)
	assert.ErrorIs(t, err, types.ErrInvalidData, "only deleted products left")

	oil := f.product(t, "olive-oil")
	placed, err := f.shop.PlaceOrder(ctx, Cart{Lines: []Line{{oil.ID(), 12}}}, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(12*1290), placed.Total)
	assert.NotEmpty(t, placed.ID)
	assert.Zero(t, f.product(t, "olive-oil").Int("stock"))
}
