// Package api serves the registered resources as a JSON REST API.
//
// Reads of Public resources are anonymous. Every other request needs a
// bearer token from POST /auth/token, and deletes need the admin role.
// Hidden fields are never serialized.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/httputils"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// Prefix is where the API is mounted.
const Prefix = "/api/v1"

// MaxPerPage caps the per_page list parameter.
const MaxPerPage = 100

// Handler serves the REST API.
type Handler struct {
	store     types.Tables
	resources []types.Resource
	byName    map[string]types.Resource
	users     *auth.Users
	issuer    *auth.Issuer
	log       logging.Logger
}

// New returns a Handler serving the given resources.
func New(store types.Tables, exposed []types.Resource, users *auth.Users, issuer *auth.Issuer, lggr logging.Logger) *Handler {
	h := &Handler{
		store:     store,
		resources: exposed,
		byName:    make(map[string]types.Resource, len(exposed)),
		users:     users,
		issuer:    issuer,
		log:       lggr.Named("api"),
	}
	for _, res := range exposed {
		h.byName[res.Name] = res
	}
	return h
}

// Routes returns the API router, to be mounted at Prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/auth/token", h.token)
	r.With(h.issuer.RequireBearer(h.deny)).Get("/resources", h.schemas)

	r.Route("/{resource}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.replace)
		r.Patch("/{id}", h.patch)
		r.Delete("/{id}", h.remove)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, types.ErrNotFound)
	})
	return r
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r, err)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputils.WriteError(w, r, h.log, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	httputils.WriteJSON(w, r, h.log, status, v)
}
