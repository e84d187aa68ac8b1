package storefront

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Line is one product in a cart.
type Line struct {
	ProductID string
	Quantity  int64
}

// Cart is a snapshot of a visitor's cart. Carts are replaced on every
// change, so a snapshot is never mutated after it is returned.
type Cart struct {
	Lines   []Line
	Updated time.Time
}

// Quantity returns the total number of items in the cart.
func (c Cart) Quantity() int64 {
	var n int64
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Carts keeps carts in memory keyed by the cart cookie value. A cart that
// has not changed for the TTL is treated as empty and removed by Sweep.
type Carts struct {
	m   *xsync.MapOf[string, Cart]
	ttl time.Duration
	now func() time.Time
}

// NewCarts returns an empty cart store.
func NewCarts(ttl time.Duration) *Carts {
	return &Carts{
		m:   xsync.NewMapOf[string, Cart](),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *Carts) expired(cart Cart) bool {
	return c.ttl > 0 && c.now().Sub(cart.Updated) > c.ttl
}

// Get returns the cart for id, or an empty cart.
func (c *Carts) Get(id string) Cart {
	cart, ok := c.m.Load(id)
	if !ok || c.expired(cart) {
		return Cart{}
	}
	return cart
}

// update applies fn to a copy of the cart's lines and stores the result.
// An empty result removes the cart.
func (c *Carts) update(id string, fn func(lines []Line) []Line) Cart {
	cart, _ := c.m.Compute(id, func(old Cart, loaded bool) (Cart, bool) {
		var lines []Line
		if loaded && !c.expired(old) {
			lines = append(lines, old.Lines...)
		}
		lines = fn(lines)
		if len(lines) == 0 {
			return Cart{}, true
		}
		return Cart{Lines: lines, Updated: c.now()}, false
	})
	return cart
}

// Add puts qty more of a product in the cart.
func (c *Carts) Add(id, productID string, qty int64) Cart {
	return c.update(id, func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity += qty
				return lines
			}
		}
		return append(lines, Line{ProductID: productID, Quantity: qty})
	})
}

// SetQuantity sets the quantity of a product. Zero or less removes it.
func (c *Carts) SetQuantity(id, productID string, qty int64) Cart {
	return c.update(id, func(lines []Line) []Line {
		out := lines[:0]
		for _, l := range lines {
			if l.ProductID == productID {
				if qty <= 0 {
					continue
				}
				l.Quantity = qty
			}
			out = append(out, l)
		}
		return out
	})
}

// Remove takes a product out of the cart.
func (c *Carts) Remove(id, productID string) Cart {
	return c.SetQuantity(id, productID, 0)
}

// Clear empties the cart.
func (c *Carts) Clear(id string) {
	c.m.Delete(id)
}

// Len returns the number of stored carts, expired ones included.
func (c *Carts) Len() int {
	return c.m.Size()
}

// Sweep removes expired carts and returns how many it removed.
func (c *Carts) Sweep() int {
	removed := 0
	c.m.Range(func(id string, cart Cart) bool {
		if !c.expired(cart) {
			return true
		}
		c.m.Compute(id, func(cur Cart, loaded bool) (Cart, bool) {
			if loaded && c.expired(cur) {
				removed++
				return cur, true
			}
			return cur, !loaded
		})
		return true
	})
	return removed
}

// Janitor sweeps expired carts every interval until ctx is done.
func (c *Carts) Janitor(ctx context.Context, interval time.Duration, swept func(n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 && swept != nil {
				swept(n)
			}
		}
	}
}
