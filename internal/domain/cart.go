package domain

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

func init() {
	// Persisted carts and API payloads carry prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductRef is the part of a catalog product the cart keeps.
type ProductRef struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
}

type LineItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	Quantity int             `json:"quantity"`
}

func NewLineItem(ref ProductRef, quantity int) LineItem {
	return LineItem{
		ID:       ref.ID,
		Name:     ref.Name,
		Slug:     ref.Slug,
		Price:    ref.Price,
		ImageURL: ref.ImageURL,
		Quantity: quantity,
	}
}

// AddQuantity returns a+b for positive quantities, saturating at math.MaxInt.
func AddQuantity(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is ordered for display and unique by LineItem.ID.
type Cart []LineItem

// IndexOf returns the position of the item with the given product id, or -1.
func (c Cart) IndexOf(id int64) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that never aliases c and is never nil.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// ItemCount is the sum of quantities, the number shown on the cart badge.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c {
		n = AddQuantity(n, item.Quantity)
	}
	return n
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Normalize merges entries sharing an id and lifts quantities below 1 to 1.
// A cart that already holds the invariants comes back equal to itself.
func (c Cart) Normalize() Cart {
	out := make(Cart, 0, len(c))
	for _, item := range c {
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if idx := out.IndexOf(item.ID); idx >= 0 {
			out[idx].Quantity = AddQuantity(out[idx].Quantity, item.Quantity)
			continue
		}
		out = append(out, item)
	}
	return out
}

// OrderItems projects the cart into order lines. Prices are never sent, the
// order API prices the order.
func (c Cart) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(c))
	for _, item := range c {
		items = append(items, OrderItem{ProductID: item.ID, Quantity: item.Quantity})
	}
	return items
}

// Totals is the order summary shown next to the cart. Shipping is free.
type Totals struct {
	ItemCount int             `json:"item_count"`
	Badge     string          `json:"badge"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

func (c Cart) Totals() Totals {
	count := c.ItemCount()
	subtotal := c.Subtotal()
	return Totals{
		ItemCount: count,
		Badge:     BadgeLabel(count),
		Subtotal:  subtotal,
		Shipping:  decimal.Zero,
		Total:     subtotal,
	}
}

// BadgeLabel renders an item count for the nav badge, capped at "99+".
func BadgeLabel(count int) string {
	if count > 99 {
		return "99+"
	}
	return strconv.Itoa(count)
}
