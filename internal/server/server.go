// Package server wires the storefront, the admin UI and the REST API into
// one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/pantry/internal/admin"
	"github.com/mesh-intelligence/pantry/internal/api"
	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/config"
	"github.com/mesh-intelligence/pantry/internal/httputils"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/storefront"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish
// once the server is asked to stop.
const ShutdownTimeout = 10 * time.Second

// Server serves every pantry HTTP surface.
type Server struct {
	cfg     *config.Config
	log     logging.Logger
	store   types.Store
	shop    *storefront.Handler
	metrics *metrics.Set
	handler http.Handler
}

// New builds the server for an attached store. exposed lists the resources
// served by the admin UI and the API.
func New(cfg *config.Config, store types.Store, exposed []types.Resource, lggr logging.Logger) (*Server, error) {
	secret, err := auth.LoadOrCreateSecret(cfg.Auth.SecretFile)
	if err != nil {
		return nil, err
	}
	issuer := auth.NewIssuer(secret, cfg.Auth.TokenTTL)
	users := auth.NewUsers(store)

	adminHandler, err := admin.New(store, exposed, users, issuer, admin.Options{
		Base:     cfg.AdminPath,
		Currency: cfg.Storefront.Currency,
	}, lggr)
	if err != nil {
		return nil, err
	}
	shop, err := storefront.New(store, storefront.Options{
		Currency: cfg.Storefront.Currency,
		CartTTL:  cfg.Storefront.CartTTL,
	}, lggr)
	if err != nil {
		return nil, err
	}
	apiHandler := api.New(store, exposed, users, issuer, lggr)

	s := &Server{
		cfg:     cfg,
		log:     lggr.Named("http"),
		store:   store,
		shop:    shop,
		metrics: metrics.NewSet(),
	}
	s.metrics.NewGauge("pantry_carts", func() float64 {
		return float64(shop.Carts().Len())
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", s.writeMetrics)
	r.Route(api.Prefix, func(r chi.Router) {
		r.Use(httputils.CORS(cfg.HTTP.CORSOrigin))
		r.Mount("/", apiHandler.Routes())
	})
	r.Mount(cfg.AdminPath, adminHandler.Routes())
	r.Mount("/", shop.Routes())
	s.handler = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. The
// cart janitor runs for as long as the server does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: s.cfg.HTTP.ReadTimeout,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.shop.Run(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Infow("listening", "addr", ln.Addr().String(), "admin", s.cfg.AdminPath, "api", api.Prefix)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// healthz reports whether the store answers queries.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		s.log.Warnw("health check failed", "err", err)
		httputils.WriteJSON(w, r, s.log, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputils.WriteJSON(w, r, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ping(ctx context.Context) error {
	all := s.store.Resources()
	if len(all) == 0 {
		return nil
	}
	tbl, err := s.store.Table(all[0].Name)
	if err != nil {
		return err
	}
	_, err = tbl.Count(ctx, nil)
	return err
}

func (s *Server) writeMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
