// Package storefront serves the public shop: catalog pages, an in-memory
// cart and a checkout that records orders.
package storefront

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// CartCookie holds the visitor's cart id.
const CartCookie = "pantry_cart"

// PerPage is the product listing page size.
const PerPage = 12

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"home", "products", "product", "cart", "checkout", "order", "error"}

// ErrOutOfStock is returned by checkout when a product cannot be supplied
// in the requested quantity.
var ErrOutOfStock = fmt.Errorf("%w: not enough stock", types.ErrConflict)

// Options configures the storefront.
type Options struct {
	// Currency is the ISO code orders are recorded in.
	Currency string
	// CartTTL is how long an untouched cart is kept.
	CartTTL time.Duration
}

// Handler serves the storefront pages.
type Handler struct {
	store     types.Store
	carts     *Carts
	opts      Options
	log       logging.Logger
	templates map[string]*template.Template
}

// New returns a storefront Handler backed by store.
func New(store types.Store, opts Options, lggr logging.Logger) (*Handler, error) {
	h := &Handler{
		store:     store,
		carts:     NewCarts(opts.CartTTL),
		opts:      opts,
		log:       lggr.Named("storefront"),
		templates: make(map[string]*template.Template, len(pages)),
	}
	funcs := template.FuncMap{
		"money": h.money,
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

// Carts returns the handler's cart store.
func (h *Handler) Carts() *Carts {
	return h.carts
}

// Run sweeps expired carts until ctx is done.
func (h *Handler) Run(ctx context.Context) {
	interval := h.opts.CartTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	h.carts.Janitor(ctx, interval, func(n int) {
		h.log.Debugw("expired carts removed", "count", n)
	})
}

// Routes returns the storefront router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.home)
	r.Get("/products", h.products)
	r.Get("/products/{slug}", h.product)
	r.Get("/cart", h.cart)
	r.Post("/cart/items", h.addItem)
	r.Post("/cart/items/{id}/update", h.updateItem)
	r.Post("/cart/items/{id}/delete", h.removeItem)
	r.Get("/checkout", h.checkoutForm)
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{reference}", h.order)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, types.ErrNotFound)
	})
	return r
}

func (h *Handler) money(minor int64) string {
	return types.FormatMoney(minor) + " " + h.opts.Currency
}

// cartID returns the visitor's cart id. When create is set and the visitor
// has none, a new id is issued in a cookie.
func (h *Handler) cartID(w http.ResponseWriter, r *http.Request, create bool) string {
	if c, err := r.Cookie(CartCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

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
