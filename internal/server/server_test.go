package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/pantry/internal/config"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		ConfigDir: dir,
		HTTP: config.HTTP{
			Addr:         "127.0.0.1:0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			CORSOrigin:   "*",
		},
		Database:     types.Config{Backend: types.BackendSQLite, DataDir: filepath.Join(dir, "data")},
		Auth:         config.Auth{SecretFile: filepath.Join(dir, "jwt.key"), TokenTTL: time.Hour},
		AdminPath:    "/admin",
		ResourcesDir: filepath.Join(dir, "resources"),
		Storefront:   config.Storefront{Currency: "USD", CartTTL: time.Hour},
	}
}

func newTestServer(t *testing.T, lggr logging.Logger) (*Server, *sqlstore.Backend) {
	t.Helper()
	cfg := testConfig(t)
	reg := resources.NewWithBuiltins()
	store := sqlstore.NewBackend(reg.All())
	require.NoError(t, store.Attach(cfg.Database))
	t.Cleanup(func() { store.Detach() })
	_, err := sqlstore.Seed(context.Background(), store)
	require.NoError(t, err)

	s, err := New(cfg, store, reg.Exposed(), lggr)
	require.NoError(t, err)
	return s, store
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t, logging.Test(t))
	h := s.Handler()

	rec := get(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Breakfast tea")

	rec = get(t, h, http.MethodGet, "/admin/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?next=%2Fadmin%2F", rec.Header().Get("Location"))

	rec = get(t, h, http.MethodGet, "/api/v1/products?per_page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)

	rec = get(t, h, http.MethodOptions, "/api/v1/products")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	rec = get(t, h, http.MethodGet, "/api/v1/users")
	assert.Equal(t, http.StatusNotFound, rec.Code, "internal resources are not served")

	rec = get(t, h, http.MethodGet, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestHealthz(t *testing.T) {
	s, store := newTestServer(t, logging.Test(t))

	rec := get(t, s.Handler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, store.Detach())
	rec = get(t, s.Handler(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	s, store := newTestServer(t, logging.Test(t))
	h := s.Handler()

	get(t, h, http.MethodGet, "/healthz")
	get(t, h, http.MethodGet, "/healthz")
	tbl, err := store.Table(resources.Products)
	require.NoError(t, err)
	page, err := tbl.Fetch(context.Background(), types.Query{Limit: 1})
	require.NoError(t, err)
	id := page.Records[0].ID()
	get(t, h, http.MethodGet, "/api/v1/products/"+id)

	rec := get(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `pantry_http_requests_total{method="GET",route="/healthz",status="200"} 2`)
	assert.Contains(t, out, `pantry_http_request_duration_seconds_count{method="GET",route="/healthz"} 2`)
	assert.Contains(t, out, "pantry_carts 0")
	assert.NotContains(t, out, id, "paths are reported by route pattern")
}

func TestRequestLogging(t *testing.T) {
	lggr, logs := logging.TestObserved(t, zapcore.InfoLevel)
	s, _ := newTestServer(t, lggr)

	get(t, s.Handler(), http.MethodGet, "/products")

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/products", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t, logging.Test(t))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		require.Fail(t, "server did not stop")
	}
}
