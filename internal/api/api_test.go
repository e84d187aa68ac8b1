package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

type fixture struct {
	store  *sqlstore.Backend
	router http.Handler
	admin  string
	editor string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := resources.NewWithBuiltins()
	store := sqlstore.NewBackend(reg.All())
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })

	users := auth.NewUsers(store)
	users.Cost = bcrypt.MinCost
	issuer := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	f := &fixture{store: store}
	for _, u := range []struct {
		email, role string
		token       *string
	}{
		{"admin@example.com", resources.RoleAdmin, &f.admin},
		{"editor@example.com", resources.RoleEditor, &f.editor},
	} {
		user, err := users.Create(ctx, u.email, "", u.role, "long enough")
		require.NoError(t, err)
		*u.token, _, err = issuer.Issue(user)
		require.NoError(t, err)
	}

	r := chi.NewRouter()
	r.Mount(Prefix, New(store, reg.Exposed(), users, issuer, logging.Test(t)).Routes())
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, Prefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type item struct {
	Data map[string]any `json:"data"`
}

type list struct {
	Data []map[string]any `json:"data"`
	Meta listMeta         `json:"meta"`
}

type apiError struct {
	Error struct {
		Status int               `json:"status"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func TestToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/token", "", map[string]string{"email": "admin@example.com", "password": "long enough"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[tokenResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, resources.RoleAdmin, resp.User.Role)

	rec = f.do(t, http.MethodGet, "/resources", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/token", "", map[string]string{"email": "admin@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/token", "", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemas(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/resources", "", nil).Code)

	rec := f.do(t, http.MethodGet, "/resources", f.editor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Data []schema `json:"data"`
	}](t, rec)
	var names []string
	for _, s := range body.Data {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{resources.Categories, resources.Products, resources.Orders, resources.OrderItems}, names, "internal resources are not listed")
}

func TestCRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/categories", f.editor, map[string]any{"name": "Bakery", "slug": "bakery"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[item](t, rec).Data
	id := created["id"].(string)
	assert.Equal(t, Prefix+"/categories/"+id, rec.Header().Get("Location"))
	assert.Equal(t, "Bakery", created["name"])
	assert.NotEmpty(t, created["created_at"])

	rec = f.do(t, http.MethodPost, "/products", f.editor, map[string]any{
		"name": "Rye loaf", "slug": "rye-loaf", "price": "4.50", "category_id": id,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decode[item](t, rec).Data
	assert.EqualValues(t, 450, product["price"], "decimal strings are major units")
	assert.EqualValues(t, 0, product["stock"], "defaults apply")
	assert.Equal(t, true, product["active"])
	productID := product["id"].(string)

	rec = f.do(t, http.MethodPatch, "/products/"+productID, f.editor, map[string]any{"price": 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 500, decode[item](t, rec).Data["price"], "JSON numbers are minor units")
	assert.Equal(t, "Rye loaf", decode[item](t, rec).Data["name"])

	rec = f.do(t, http.MethodPut, "/products/"+productID, f.editor, map[string]any{"name": "Rye", "slug": "rye"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "PUT needs every required field")
	assert.Contains(t, decode[apiError](t, rec).Error.Fields, "price")

	rec = f.do(t, http.MethodGet, "/products/"+productID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/products/"+productID, f.editor, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/products/"+productID, f.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/products/"+productID, "", nil).Code)
}

func TestAccess(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"anonymous public list", http.MethodGet, "/products", "", nil, http.StatusOK},
		{"anonymous private list", http.MethodGet, "/orders", "", nil, http.StatusUnauthorized},
		{"bad token on public read", http.MethodGet, "/products", "garbage", nil, http.StatusUnauthorized},
		{"anonymous write", http.MethodPost, "/categories", "", map[string]any{"name": "x", "slug": "x"}, http.StatusUnauthorized},
		{"editor private list", http.MethodGet, "/orders", f.editor, nil, http.StatusOK},
		{"internal resource", http.MethodGet, "/users", f.admin, nil, http.StatusNotFound},
		{"unknown resource", http.MethodGet, "/widgets", f.admin, nil, http.StatusNotFound},
		{"read-only resource", http.MethodPost, "/order_items", f.admin, map[string]any{"name": "x"}, http.StatusMethodNotAllowed},
		{"unknown field", http.MethodPost, "/categories", f.editor, map[string]any{"name": "x", "slug": "x", "colour": "red"}, http.StatusUnprocessableEntity},
		{"non-object body", http.MethodPost, "/categories", f.editor, "[1,2]", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	for i, name := range []string{"Apples", "Bread", "Cheese", "Dates", "Eggs"} {
		rec := f.do(t, http.MethodPost, "/products", f.editor, map[string]any{
			"name": name, "slug": name, "price": 100 * (i + 1), "active": i != 2,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	t.Run("pagination and sort", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/products?sort=-price&per_page=2&page=2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[list](t, rec)
		assert.Equal(t, listMeta{Total: 5, Page: 2, PerPage: 2, Pages: 3}, body.Meta)
		require.Len(t, body.Data, 2)
		assert.Equal(t, "Cheese", body.Data[0]["name"])
		assert.Equal(t, "Bread", body.Data[1]["name"])
	})

	t.Run("filter and search", func(t *testing.T) {
		body := decode[list](t, f.do(t, http.MethodGet, "/products?active=false", "", nil))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "Cheese", body.Data[0]["name"])

		body = decode[list](t, f.do(t, http.MethodGet, "/products?q=EG", "", nil))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "Eggs", body.Data[0]["name"])

		body = decode[list](t, f.do(t, http.MethodGet, "/products?slug=Apples&slug=Dates", "", nil))
		assert.Len(t, body.Data, 2)
	})

	t.Run("per_page is capped", func(t *testing.T) {
		body := decode[list](t, f.do(t, http.MethodGet, "/products?per_page=1000", "", nil))
		assert.Equal(t, MaxPerPage, body.Meta.PerPage)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, q := range []string{"page=0", "per_page=x", "sort=colour", "colour=red", "stock=lots"} {
			rec := f.do(t, http.MethodGet, "/products?"+q, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}

func TestHiddenFieldsNeverSerialized(t *testing.T) {
	f := newFixture(t)
	notes := types.Resource{Name: "notes", Public: true, Fields: []types.Field{
		{Name: "title", Type: types.FieldString},
		{Name: "secret", Type: types.FieldString, Hidden: true},
	}}.Normalized()

	reg := resources.NewWithBuiltins()
	require.NoError(t, reg.Register(notes))
	store := sqlstore.NewBackend(reg.All())
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer store.Detach()

	tbl, err := store.Table("notes")
	require.NoError(t, err)
	id, err := tbl.Set(context.Background(), "", types.Record{"title": "hello", "secret": "s3cret"})
	require.NoError(t, err)

	issuer := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	r := chi.NewRouter()
	r.Mount(Prefix, New(store, reg.Exposed(), auth.NewUsers(store), issuer, logging.Test(t)).Routes())
	f.router = r

	for _, path := range []string{"/notes", "/notes/" + id} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "s3cret", path)
	}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/notes?secret=s3cret", "", nil).Code)
}
