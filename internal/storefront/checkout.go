package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// StockError names the product that cannot be supplied. It matches
// ErrOutOfStock under errors.Is.
type StockError struct {
	Product   string
	Available int64
}

func (e *StockError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Product)
	}
	return fmt.Sprintf("only %d of %s left in stock", e.Available, e.Product)
}

func (e *StockError) Unwrap() error {
	return ErrOutOfStock
}

var errEmptyCart = fmt.Errorf("%w: the cart is empty", types.ErrInvalidData)

// Placed describes an order created by PlaceOrder.
type Placed struct {
	ID        string
	Reference string
	Total     int64
}

// PlaceOrder records an order for the cart in one transaction. Each
// product is re-read; inactive products or insufficient stock fail with a
// *StockError and nothing is written. Products deleted since they were
// added are left out. Stock is decremented and the order items copy the
// product name and price.
func (h *Handler) PlaceOrder(ctx context.Context, cart Cart, customer types.Record) (Placed, error) {
	if len(cart.Lines) == 0 {
		return Placed{}, errEmptyCart
	}
	placed := Placed{Reference: ksuid.New().String()}
	err := h.store.WithTx(ctx, func(tx types.Tables) error {
		products, err := tx.Table(resources.Products)
		if err != nil {
			return err
		}
		orders, err := tx.Table(resources.Orders)
		if err != nil {
			return err
		}
		items, err := tx.Table(resources.OrderItems)
		if err != nil {
			return err
		}

		lines := make([]types.Record, 0, len(cart.Lines))
		var total int64
		for _, l := range cart.Lines {
			p, err := products.Get(ctx, l.ProductID)
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			stock := p.Int("stock")
			if !p.Bool("active") {
				return &StockError{Product: p.String("name")}
			}
			if stock < l.Quantity {
				return &StockError{Product: p.String("name"), Available: stock}
			}
			if _, err := products.Set(ctx, p.ID(), types.Record{"stock": stock - l.Quantity}); err != nil {
				return fmt.Errorf("update stock of %s: %w", p.ID(), err)
			}
			lineTotal := p.Int("price") * l.Quantity
			total += lineTotal
			lines = append(lines, types.Record{
				"product_id": p.ID(),
				"name":       p.String("name"),
				"unit_price": p.Int("price"),
				"quantity":   l.Quantity,
				"line_total": lineTotal,
			})
		}

		if len(lines) == 0 {
			return errEmptyCart
		}

		order := customer.Clone()
		order["reference"] = placed.Reference
		order["status"] = resources.OrderPending
		order["total"] = total
		order["currency"] = h.opts.Currency
		id, err := orders.Set(ctx, "", order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, line := range lines {
			line["order_id"] = id
			if _, err := items.Set(ctx, "", line); err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}
		placed.ID = id
		placed.Total = total
		return nil
	})
	if err != nil {
		return Placed{}, err
	}
	return placed, nil
}

// customerInput validates the checkout form into an order record.
func (h *Handler) customerInput(r *http.Request) (types.Record, map[string]string, error) {
	values := make(map[string]string, len(checkoutFields))
	input := make(map[string]any, len(checkoutFields))
	for _, name := range checkoutFields {
		v := r.PostFormValue(name)
		values[name] = v
		input[name] = v
	}
	tbl, err := h.table(resources.Orders)
	if err != nil {
		return nil, values, err
	}
	verr := &types.ValidationError{}
	rec, err := tbl.Resource().Coerce(input, false)
	if err != nil {
		ve, ok := types.AsValidationError(err)
		if !ok {
			return nil, values, err
		}
		verr = ve
	}
	if email := strings.TrimSpace(values["email"]); email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			verr.Add("email", "must be an email address")
		}
	}
	if !verr.Empty() {
		return nil, values, verr
	}
	return rec, values, nil
}

func (h *Handler) checkoutForm(w http.ResponseWriter, r *http.Request) {
	h.renderCheckout(w, r, http.StatusOK, nil, nil, "")
}

func (h *Handler) renderCheckout(w http.ResponseWriter, r *http.Request, status int, values, errs map[string]string, msg string) {
	id := h.cartID(w, r, false)
	lines, total, err := h.cartLines(r.Context(), id, h.carts.Get(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(lines) == 0 {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	h.render(w, r, status, "checkout", checkoutPage{
		layout: h.layout(r, "Checkout"),
		Lines:  lines,
		Total:  total,
		Values: values,
		Errors: errs,
		Error:  msg,
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	cartID := h.cartID(w, r, false)
	cart := h.carts.Get(cartID)
	if len(cart.Lines) == 0 {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	customer, values, err := h.customerInput(r)
	if err != nil {
		if ve, ok := types.AsValidationError(err); ok {
			h.renderCheckout(w, r, http.StatusUnprocessableEntity, values, ve.Fields, "")
			return
		}
		h.fail(w, r, err)
		return
	}

	placed, err := h.PlaceOrder(r.Context(), cart, customer)
	var stockErr *StockError
	switch {
	case errors.Is(err, errEmptyCart):
		h.carts.Clear(cartID)
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	case errors.As(err, &stockErr):
		h.renderCheckout(w, r, http.StatusConflict, values, nil, "Sorry, "+stockErr.Error()+". Please update your cart.")
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	h.carts.Clear(cartID)
	h.log.Infow("order placed", "reference", placed.Reference, "order", placed.ID, "total", placed.Total, "currency", h.opts.Currency)
	http.Redirect(w, r, "/orders/"+placed.Reference, http.StatusSeeOther)
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := chi.URLParam(r, "reference")
	orders, err := h.table(resources.Orders)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := orders.Fetch(ctx, types.Query{Filter: map[string]any{"reference": ref}, Limit: 1})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(page.Records) == 0 {
		h.fail(w, r, fmt.Errorf("%w: order %q", types.ErrNotFound, ref))
		return
	}
	order := page.Records[0]
	currency := order.String("currency")
	money := func(minor int64) string { return types.FormatMoney(minor) + " " + currency }

	items, err := h.table(resources.OrderItems)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lines, err := items.Fetch(ctx, types.Query{
		Filter: map[string]any{"order_id": order.ID()},
		Sort:   types.ColumnCreatedAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := orderPage{
		layout:       h.layout(r, "Order "+ref),
		Reference:    ref,
		CustomerName: order.String("customer_name"),
		Email:        order.String("email"),
		Address:      order.String("address"),
		Status:       order.String("status"),
		Total:        money(order.Int("total")),
	}
	for _, it := range lines.Records {
		data.Items = append(data.Items, orderLine{
			Name:      it.String("name"),
			Quantity:  it.Int("quantity"),
			UnitPrice: money(it.Int("unit_price")),
			LineTotal: money(it.Int("line_total")),
		})
	}
	h.render(w, r, http.StatusOK, "order", data)
}
