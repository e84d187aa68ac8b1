package storefront

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

func TestCheckoutAfterProductDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToCart(t, "pickled-walnuts", "2")
	f.addToCart(t, "orange-marmalade", "1")
	marmalade := f.product(t, "orange-marmalade")

	products, err := f.store.Table(resources.Products)
	require.NoError(t, err)
	require.NoError(t, products.Delete(ctx, f.product(t, "pickled-walnuts").ID()))

	rec := f.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Pickled walnuts")
	assert.Contains(t, rec.Body.String(), "Cart (1)")
	assert.Equal(t, int64(1), f.shop.Carts().Get(f.cookie.Value).Quantity(), "the stale line is dropped")

	rec = f.do(t, http.MethodPost, "/checkout", url.Values{
		"customer_name": {"Ada"}, "email": {"ada@example.com"}, "address": {"1 Analytical Way"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	orders, err := f.store.Table(resources.Orders)
	require.NoError(t, err)
	page, err := orders.Fetch(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, marmalade.Int("price"), page.Records[0].Int("total"))
}

func TestPlaceOrderSkipsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := types.Record{"customer_name": "Ada", "email": "ada@example.com", "address": "1 Analytical Way"}
	oil := f.product(t, "olive-oil")

	placed, err := f.shop.PlaceOrder(ctx, Cart{Lines: []Line{{"gone", 3}, {oil.ID(), 2}}}, customer)
	require.NoError(t, err)
	assert.Equal(t, 2*oil.Int("price"), placed.Total)

	items, err := f.store.Table(resources.OrderItems)
	require.NoError(t, err)
	n, err := items.Count(ctx, map[string]any{"order_id": placed.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckoutWithOnlyDeletedProducts(t *testing.T) {
	f := newFixture(t)
	f.addToCart(t, "pickled-walnuts", "1")

	products, err := f.store.Table(resources.Products)
	require.NoError(t, err)
	require.NoError(t, products.Delete(context.Background(), f.product(t, "pickled-walnuts").ID()))

	rec := f.do(t, http.MethodPost, "/checkout", url.Values{
		"customer_name": {"Ada"}, "email": {"ada@example.com"}, "address": {"1 Analytical Way"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Empty(t, f.shop.Carts().Get(f.cookie.Value).Lines)
}
