package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/pantry/internal/httputils"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// HomeProducts is how many new products the home page shows.
const HomeProducts = 8

var notices = map[string]string{
	"added":   "Added to your cart.",
	"updated": "Cart updated.",
	"removed": "Removed from your cart.",
}

func (h *Handler) layout(r *http.Request, title string) layout {
	l := layout{Title: title, Notice: notices[r.URL.Query().Get("notice")]}
	if c, err := r.Cookie(CartCookie); err == nil {
		l.CartCount = h.carts.Get(c.Value).Quantity()
	}
	return l
}

// fail renders an error page with the status StatusFor assigns to err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httputils.StatusFor(err)
	msg := "We could not find that page."
	switch {
	case status >= http.StatusInternalServerError:
		h.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "Something went wrong on our side. Please try again."
	case status != http.StatusNotFound:
		msg = err.Error()
	}
	h.render(w, r, status, "error", errorPage{
		layout:  h.layout(r, http.StatusText(status)),
		Status:  status,
		Message: msg,
	})
}

func (h *Handler) table(name string) (types.Table, error) {
	return h.store.Table(name)
}

// categories returns every category, marking the one with slug current.
func (h *Handler) categories(ctx context.Context, current string) ([]categoryLink, error) {
	tbl, err := h.table(resources.Categories)
	if err != nil {
		return nil, err
	}
	page, err := tbl.Fetch(ctx, types.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]categoryLink, len(page.Records))
	for i, rec := range page.Records {
		out[i] = categoryLink{
			ID:      rec.ID(),
			Name:    rec.String("name"),
			Slug:    rec.String("slug"),
			Current: rec.String("slug") == current,
		}
	}
	return out, nil
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories(r.Context(), "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tbl, err := h.table(resources.Products)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := tbl.Fetch(r.Context(), types.Query{
		Filter: map[string]any{"active": true},
		Sort:   types.ColumnCreatedAt,
		Desc:   true,
		Limit:  HomeProducts,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := homePage{layout: h.layout(r, "Welcome"), Categories: cats}
	for _, rec := range page.Records {
		data.Products = append(data.Products, toCard(rec))
	}
	h.render(w, r, http.StatusOK, "home", data)
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	slug := params.Get("category")
	cats, err := h.categories(r.Context(), slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pageNum, _ := strconv.Atoi(params.Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}
	q := types.Query{
		Filter: map[string]any{"active": true},
		Search: params.Get("q"),
		Sort:   "name",
		Limit:  PerPage,
		Offset: (pageNum - 1) * PerPage,
	}
	data := productsPage{layout: h.layout(r, "Products"), Categories: cats, Query: q.Search}
	if slug != "" {
		var found bool
		for _, c := range cats {
			if c.Current {
				q.Filter["category_id"] = c.ID
				data.Category = c.Name
				data.Title = c.Name
				found = true
			}
		}
		if !found {
			h.fail(w, r, fmt.Errorf("%w: category %q", types.ErrNotFound, slug))
			return
		}
	}

	tbl, err := h.table(resources.Products)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := tbl.Fetch(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, rec := range page.Records {
		data.Products = append(data.Products, toCard(rec))
	}
	data.Total = page.Total
	data.Page = page.Number()
	data.Pages = page.Pages()
	if page.HasPrev() {
		data.PrevURL = productsURL(params, pageNum-1)
	}
	if page.HasNext() {
		data.NextURL = productsURL(params, pageNum+1)
	}
	h.render(w, r, http.StatusOK, "products", data)
}

func productsURL(params url.Values, page int) string {
	next := url.Values{}
	for k, v := range params {
		if k != "page" {
			next[k] = v
		}
	}
	next.Set("page", strconv.Itoa(page))
	return "/products?" + next.Encode()
}

// findProduct returns the active product with the given slug.
func (h *Handler) findProduct(ctx context.Context, slug string) (types.Record, error) {
	tbl, err := h.table(resources.Products)
	if err != nil {
		return nil, err
	}
	page, err := tbl.Fetch(ctx, types.Query{
		Filter: map[string]any{"slug": slug, "active": true},
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, fmt.Errorf("%w: product %q", types.ErrNotFound, slug)
	}
	return page.Records[0], nil
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	rec, err := h.findProduct(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	card := toCard(rec)
	data := productPage{layout: h.layout(r, card.Name), Product: card}
	if card.CategoryID != "" {
		cats, err := h.table(resources.Categories)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if cat, err := cats.Get(r.Context(), card.CategoryID); err == nil {
			data.Category = &categoryLink{ID: cat.ID(), Name: cat.String("name"), Slug: cat.String("slug")}
		}
	}
	h.render(w, r, http.StatusOK, "product", data)
}

// cartLines loads the products in cart id. Products deleted since they were
// added are dropped from the cart.
func (h *Handler) cartLines(ctx context.Context, id string, cart Cart) ([]cartLine, int64, error) {
	tbl, err := h.table(resources.Products)
	if err != nil {
		return nil, 0, err
	}
	var lines []cartLine
	var total int64
	for _, l := range cart.Lines {
		rec, err := tbl.Get(ctx, l.ProductID)
		if errors.Is(err, types.ErrNotFound) {
			if id != "" {
				h.carts.Remove(id, l.ProductID)
			}
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		card := toCard(rec)
		line := cartLine{Product: card, Quantity: l.Quantity, Total: card.Price * l.Quantity}
		total += line.Total
		lines = append(lines, line)
	}
	return lines, total, nil
}

func (h *Handler) cart(w http.ResponseWriter, r *http.Request) {
	h.renderCart(w, r, http.StatusOK, "")
}

func (h *Handler) renderCart(w http.ResponseWriter, r *http.Request, status int, msg string) {
	id := h.cartID(w, r, false)
	lines, total, err := h.cartLines(r.Context(), id, h.carts.Get(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, status, "cart", cartPage{
		layout: h.layout(r, "Your cart"),
		Lines:  lines,
		Total:  total,
		Error:  msg,
	})
}

// quantity parses the quantity form value. An empty value is def.
func quantity(r *http.Request, def int64) (int64, error) {
	s := strings.TrimSpace(r.PostFormValue("quantity"))
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || n > 999 {
		return 0, fmt.Errorf("%w: quantity must be a number between 0 and 999", types.ErrInvalidData)
	}
	return n, nil
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	qty, err := quantity(r, 1)
	if err == nil && qty == 0 {
		err = fmt.Errorf("%w: quantity must be at least 1", types.ErrInvalidData)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tbl, err := h.table(resources.Products)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := tbl.Get(r.Context(), r.PostFormValue("product_id"))
	if err == nil && !rec.Bool("active") {
		err = types.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.carts.Add(h.cartID(w, r, true), rec.ID(), qty)
	http.Redirect(w, r, "/cart?notice=added", http.StatusSeeOther)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	qty, err := quantity(r, 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notice := "updated"
	if qty == 0 {
		notice = "removed"
	}
	if id := h.cartID(w, r, false); id != "" {
		h.carts.SetQuantity(id, chi.URLParam(r, "id"), qty)
	}
	http.Redirect(w, r, "/cart?notice="+notice, http.StatusSeeOther)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	if id := h.cartID(w, r, false); id != "" {
		h.carts.Remove(id, chi.URLParam(r, "id"))
	}
	http.Redirect(w, r, "/cart?notice=removed", http.StatusSeeOther)
}
