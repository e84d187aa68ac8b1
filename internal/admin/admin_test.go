package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
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

const base = "/admin"

type fixture struct {
	store  *sqlstore.Backend
	router http.Handler
	admin  *http.Cookie
	editor *http.Cookie
}

func newFixture(t *testing.T, extra ...types.Resource) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := resources.NewWithBuiltins()
	for _, res := range extra {
		require.NoError(t, reg.Register(res))
	}
	store := sqlstore.NewBackend(reg.All())
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })

	users := auth.NewUsers(store)
	users.Cost = bcrypt.MinCost
	issuer := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	h, err := New(store, reg.Exposed(), users, issuer, Options{Base: base, Currency: "EUR"}, logging.Test(t))
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Mount(base, h.Routes())

	f := &fixture{store: store, router: r}
	for _, u := range []struct {
		email, role string
		cookie      **http.Cookie
	}{
		{"admin@example.com", resources.RoleAdmin, &f.admin},
		{"editor@example.com", resources.RoleEditor, &f.editor},
	} {
		user, err := users.Create(ctx, u.email, "", u.role, "long enough")
		require.NoError(t, err)
		token, _, err := issuer.Issue(user)
		require.NoError(t, err)
		*u.cookie = &http.Cookie{Name: auth.SessionCookie, Value: token}
	}
	return f
}

func (f *fixture) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(t *testing.T, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, base+"/products", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, base+"/login?next=%2Fadmin%2Fproducts", rec.Header().Get("Location"))

	rec = f.get(t, base+"/login?next=/admin/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="/admin/products"`)

	rec = f.post(t, base+"/login", nil, url.Values{"email": {"admin@example.com"}, "password": {"wrong password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password.")

	rec = f.post(t, base+"/login", nil, url.Values{
		"email": {"admin@example.com"}, "password": {"long enough"}, "next": {"/admin/products"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/products", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.Equal(t, base, cookies[0].Path)

	rec = f.get(t, base+"/products", cookies[0])
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, base+"/logout", cookies[0], nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLoginRejectsOpenRedirect(t *testing.T) {
	f := newFixture(t)
	for _, next := range []string{"https://evil.example.com", "//evil.example.com", "/admin-other", ""} {
		rec := f.post(t, base+"/login", nil, url.Values{
			"email": {"admin@example.com"}, "password": {"long enough"}, "next": {next},
		})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, base+"/", rec.Header().Get("Location"), next)
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	_, err := sqlstore.Seed(context.Background(), f.store)
	require.NoError(t, err)

	rec := f.get(t, base+"/", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Categories")
	assert.Contains(t, body, "<td>7</td>", "product count")
	assert.NotContains(t, body, "Users", "internal resources are hidden")
}

func TestCreateShowEditDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, base+"/products/new", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="description"`)
	assert.Contains(t, body, `<textarea id="description"`)
	assert.Contains(t, body, `type="checkbox" value="true" checked`, "active defaults to true")
	assert.Contains(t, body, `<select id="category_id"`)

	rec = f.post(t, base+"/categories", f.editor, url.Values{"name": {"Bakery"}, "slug": {"bakery"}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	catURL, _, _ := strings.Cut(rec.Header().Get("Location"), "?")
	catID := strings.TrimPrefix(catURL, base+"/categories/")

	rec = f.post(t, base+"/products", f.editor, url.Values{
		"name": {"Rye loaf"}, "slug": {"rye-loaf"}, "price": {"4.50"}, "stock": {"3"},
		"active": {"true"}, "category_id": {catID},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasSuffix(location, "?notice=created"), location)
	productURL, _, _ := strings.Cut(location, "?")

	rec = f.get(t, location, f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "Record created.")
	assert.Contains(t, body, "4.50 EUR")
	assert.Contains(t, body, `<a href="/admin/categories/`+catID+`">Bakery</a>`, "references show the target title")
	assert.NotContains(t, body, ">Delete<", "editors cannot delete")

	rec = f.get(t, productURL+"/edit", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="4.50"`)

	rec = f.post(t, productURL, f.editor, url.Values{
		"name": {"Rye loaf"}, "slug": {"rye-loaf"}, "price": {"5"}, "stock": {"3"}, "category_id": {catID},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	id := strings.TrimPrefix(productURL, base+"/products/")
	tbl, err := f.store.Table(resources.Products)
	require.NoError(t, err)
	stored, err := tbl.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored["price"])
	assert.Equal(t, false, stored["active"], "unchecked checkbox clears the flag")

	rec = f.post(t, productURL+"/delete", f.editor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.get(t, productURL, f.admin)
	assert.Contains(t, rec.Body.String(), ">Delete<")
	rec = f.post(t, productURL+"/delete", f.admin, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, base+"/products?notice=deleted", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusNotFound, f.get(t, productURL, f.admin).Code)
}

func TestValidationRerendersForm(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, base+"/products", f.editor, url.Values{"name": {"Rye"}, "price": {"abc"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Please correct the errors below.")
	assert.Contains(t, body, "Slug is required")
	assert.Contains(t, body, "Price must be an amount")
	assert.Contains(t, body, `value="Rye"`, "submitted values are kept")

	rec = f.post(t, base+"/categories", f.editor, url.Values{"name": {"A"}, "slug": {"a"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = f.post(t, base+"/categories", f.editor, url.Values{"name": {"B"}, "slug": {"a"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Slug is already taken")
}

func TestList(t *testing.T) {
	f := newFixture(t)
	_, err := sqlstore.Seed(context.Background(), f.store)
	require.NoError(t, err)

	rec := f.get(t, base+"/products?sort=price", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "7 records")
	assert.Less(t, strings.Index(body, "Arborio rice"), strings.Index(body, "Cold-pressed olive oil"), "sorted by price")
	assert.Contains(t, body, "dir=desc", "active column links to the reverse order")

	rec = f.get(t, base+"/products?q=tea", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 records")

	rec = f.get(t, base+"/orders?f.status=paid", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No records found.")

	assert.Equal(t, http.StatusBadRequest, f.get(t, base+"/products?sort=colour", f.editor).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, base+"/products?f.colour=red", f.editor).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, base+"/users", f.admin).Code)
}

func TestReadOnlyResource(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, base+"/order_items", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/admin/order_items/new")

	assert.Equal(t, http.StatusMethodNotAllowed, f.get(t, base+"/order_items/new", f.admin).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.post(t, base+"/order_items", f.admin, url.Values{"name": {"x"}}).Code)
}

func TestTimestampKeepsSeconds(t *testing.T) {
	f := newFixture(t, types.Resource{
		Name: "events",
		Fields: []types.Field{
			{Name: "title", Type: types.FieldString, Required: true, List: true},
			{Name: "starts_at", Type: types.FieldTimestamp, Required: true},
		},
	})

	rec := f.get(t, base+"/events/new", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `type="datetime-local" step="1"`)

	rec = f.post(t, base+"/events", f.editor, url.Values{
		"title": {"Tasting"}, "starts_at": {"2026-03-01T09:30:45"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	eventURL, _, _ := strings.Cut(rec.Header().Get("Location"), "?")

	rec = f.get(t, eventURL+"/edit", f.editor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="2026-03-01T09:30:45"`)

	rec = f.post(t, eventURL, f.editor, url.Values{
		"title": {"Tasting"}, "starts_at": {"2026-03-01T09:30:45"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	tbl, err := f.store.Table("events")
	require.NoError(t, err)
	stored, err := tbl.Get(context.Background(), strings.TrimPrefix(eventURL, base+"/events/"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 45, 0, time.UTC), stored["starts_at"], "saving the edit form keeps the seconds")
}
