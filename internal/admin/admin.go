// Package admin is the generic admin UI: every exposed resource gets list,
// show, create, edit and delete pages generated from its field
// configuration.
package admin

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are rendered inside layout.html.
var pages = []string{"login", "dashboard", "list", "show", "form", "error"}

// Options configures the admin UI.
type Options struct {
	// Base is the path the admin router is mounted at, e.g. "/admin".
	Base string
	// Currency is shown next to money values.
	Currency string
}

// Handler serves the admin UI.
type Handler struct {
	store     types.Tables
	resources []types.Resource
	byName    map[string]types.Resource
	users     *auth.Users
	issuer    *auth.Issuer
	opts      Options
	log       logging.Logger
	templates map[string]*template.Template
}

// New returns an admin Handler for the exposed resources.
func New(store types.Tables, exposed []types.Resource, users *auth.Users, issuer *auth.Issuer, opts Options, lggr logging.Logger) (*Handler, error) {
	h := &Handler{
		store:     store,
		resources: exposed,
		byName:    make(map[string]types.Resource, len(exposed)),
		users:     users,
		issuer:    issuer,
		opts:      opts,
		log:       lggr.Named("admin"),
		templates: make(map[string]*template.Template, len(pages)),
	}
	for _, res := range exposed {
		h.byName[res.Name] = res
	}

	funcs := template.FuncMap{
		"url": h.url,
	}
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", page, err)
		}
		h.templates[page] = t
	}
	return h, nil
}

// Routes returns the admin router, to be mounted at Options.Base.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", h.loginForm)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(h.issuer.RequireSession(h.url("login")))
		r.Get("/", h.dashboard)
		r.Get("/{resource}", h.list)
		r.Post("/{resource}", h.create)
		r.Get("/{resource}/new", h.newForm)
		r.Get("/{resource}/{id}", h.show)
		r.Post("/{resource}/{id}", h.update)
		r.Get("/{resource}/{id}/edit", h.editForm)
		r.Post("/{resource}/{id}/delete", h.remove)
	})
	return r
}

// url joins path segments under the admin base path.
func (h *Handler) url(parts ...string) string {
	u := h.opts.Base
	for _, p := range parts {
		u += "/" + p
	}
	if u == "" {
		return "/"
	}
	return u
}

// render executes a page template. Rendering failures after headers are
// written can only be logged.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	t, ok := h.templates[page]
	if !ok {
		h.log.Errorw("unknown template", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		h.log.Errorw("render", "page", page, "path", r.URL.Path, "err", err)
	}
}
