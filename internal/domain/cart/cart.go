// Package cart implements the customer shopping cart: an ordered set of line
// items unique by product id, and a Store that persists every change through a
// key-value Storage port.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"
)

// LineItem is one product entry in the cart with an aggregated quantity.
type LineItem struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	ImageURL   string
	Quantity   int
	ProviderID string
}

// Subtotal returns price * quantity for the line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart holds line items in insertion order. The zero value is an empty cart.
//
// Every item has Quantity >= 1 and no two items share an ID. None of the
// methods can fail.
type Cart struct {
	items []LineItem
}

// New returns a cart holding copies of items with the cart invariants applied:
// items with a non-positive quantity are dropped and repeated ids are merged
// into the first occurrence.
func New(items ...LineItem) *Cart {
	c := &Cart{items: make([]LineItem, 0, len(items))}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i := c.index(item.ID); i >= 0 {
			c.items[i].Quantity += item.Quantity
			continue
		}
		c.items = append(c.items, item)
	}
	return c
}

// Add adds one unit of the given product. The quantity on item is ignored.
// An existing line keeps its fields and gains one unit; otherwise the item is
// appended with quantity 1.
func (c *Cart) Add(item LineItem) {
	if i := c.index(item.ID); i >= 0 {
		c.items[i].Quantity++
		return
	}
	item.Quantity = 1
	c.items = append(c.items, item)
}

// Remove deletes the whole line with the given id, whatever its quantity.
// It reports whether a line was removed.
func (c *Cart) Remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

// Decrement takes one unit off the line with the given id and deletes the
// line when it reaches zero. It reports whether a line was found.
func (c *Cart) Decrement(id string) bool {
	return c.Subtract(id, 1)
}

// Subtract takes n units off the line for id and deletes the line when no
// unit remains. It reports whether the cart changed.
func (c *Cart) Subtract(id string, n int) bool {
	i := c.index(id)
	if i < 0 || n <= 0 {
		return false
	}
	if c.items[i].Quantity <= n {
		c.items = slices.Delete(c.items, i, i+1)
		return true
	}
	c.items[i].Quantity -= n
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = c.items[:0]
}

// Total returns the sum of price * quantity over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []LineItem {
	return slices.Clone(c.items)
}

// Item returns the line with the given id.
func (c *Cart) Item(id string) (LineItem, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.items)
}

// Quantity returns the number of units across all lines.
func (c *Cart) Quantity() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Retain keeps only the lines for which keep returns true and returns the
// number of removed lines.
func (c *Cart) Retain(keep func(LineItem) bool) int {
	before := len(c.items)
	c.items = slices.DeleteFunc(c.items, func(item LineItem) bool {
		return !keep(item)
	})
	return before - len(c.items)
}

func (c *Cart) index(id string) int {
	return slices.IndexFunc(c.items, func(item LineItem) bool {
		return item.ID == id
	})
}
