// Package cart implements the in-progress sale: line management, combo
// expansion, discount clamping and total computation. It never mutates the
// catalog; stock checks are advisory against the snapshot it is given and
// are re-validated at checkout.
package cart

import (
	"errors"
	"fmt"

	"tillpoint/backend/internal/domain"
)

var (
	ErrProductInactive   = errors.New("product is inactive")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInvalidQty        = errors.New("quantity must be at least 1")
)

type Cart struct {
	lines []domain.CartItem
}

func New() *Cart {
	return &Cart{}
}

// FromLines rebuilds a cart from existing lines, e.g. a client-submitted
// checkout payload.
func FromLines(lines []domain.CartItem) *Cart {
	c := &Cart{lines: make([]domain.CartItem, len(lines))}
	copy(c.lines, lines)
	return c
}

func (c *Cart) Lines() []domain.CartItem {
	out := make([]domain.CartItem, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Qty(productID string) int {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l.Qty
		}
	}
	return 0
}

// AddItem adds qty units of p, merging into an existing line. The merged
// quantity must fit within the current stock snapshot.
func (c *Cart) AddItem(p domain.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	if !p.Active {
		return ErrProductInactive
	}
	if p.StockQty <= 0 {
		return ErrOutOfStock
	}
	if c.Qty(p.ID)+qty > p.StockQty {
		return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, p.SKU, p.StockQty)
	}
	for i := range c.lines {
		if c.lines[i].ProductID == p.ID {
			c.lines[i].Qty += qty
			return nil
		}
	}
	c.lines = append(c.lines, domain.CartItem{
		ProductID: p.ID,
		Qty:       qty,
		UnitPrice: p.Price,
	})
	return nil
}

// AddCombo expands a combo into its constituent lines. Validation runs over
// every constituent first; the cart is only mutated when all of them fit, so
// a failing constituent leaves the cart untouched.
func (c *Cart) AddCombo(combo domain.Combo, products map[string]domain.Product) error {
	if !combo.Active {
		return fmt.Errorf("%w: combo %s", ErrProductInactive, combo.Name)
	}
	for _, ci := range combo.Items {
		p, ok := products[ci.ProductID]
		if !ok {
			return fmt.Errorf("%w: combo constituent %s", ErrLineNotFound, ci.ProductID)
		}
		if !p.Active {
			return fmt.Errorf("%w: %s", ErrProductInactive, p.SKU)
		}
		if p.StockQty <= 0 {
			return fmt.Errorf("%w: %s", ErrOutOfStock, p.SKU)
		}
		if c.Qty(p.ID)+ci.Qty > p.StockQty {
			return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, p.SKU, p.StockQty)
		}
	}
	for _, ci := range combo.Items {
		if err := c.AddItem(products[ci.ProductID], ci.Qty); err != nil {
			return err
		}
	}
	return nil
}

// UpdateLine sets the quantity and discount of an existing line. The discount
// is clamped to [0, unitPrice*qty] rather than rejected.
func (c *Cart) UpdateLine(productID string, qty int, discount float64, p domain.Product) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	if qty > p.StockQty {
		return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, p.SKU, p.StockQty)
	}
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		max := c.lines[i].UnitPrice * float64(qty)
		if discount < 0 {
			discount = 0
		}
		if discount > max {
			discount = max
		}
		c.lines[i].Qty = qty
		c.lines[i].DiscountAmount = discount
		return nil
	}
	return ErrLineNotFound
}

func (c *Cart) RemoveLine(productID string) error {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) Clear() {
	c.lines = nil
}

type Totals struct {
	SubTotal      float64
	DiscountTotal float64
	TaxTotal      float64
	GrandTotal    float64
}

// ComputeTotals derives the four sale totals from the current lines. Tax is
// applied per line against the discounted line amount using each product's
// own rate; amounts stay unrounded here and are rounded once at finalize.
func (c *Cart) ComputeTotals(products map[string]domain.Product, taxEnabled bool) Totals {
	var t Totals
	for _, l := range c.lines {
		lineAmount := l.UnitPrice*float64(l.Qty) - l.DiscountAmount
		t.SubTotal += lineAmount
		t.DiscountTotal += l.DiscountAmount
		if taxEnabled {
			if p, ok := products[l.ProductID]; ok {
				t.TaxTotal += lineAmount * p.TaxRate
			}
		}
	}
	t.GrandTotal = t.SubTotal + t.TaxTotal
	return t
}

// DiscountRate returns discountTotal over the pre-discount subtotal. An empty
// or fully-undiscounted cart with zero subtotal yields 0, not NaN.
func (t Totals) DiscountRate() float64 {
	denom := t.SubTotal + t.DiscountTotal
	if denom == 0 {
		return 0
	}
	return t.DiscountTotal / denom
}

// NeedsManager reports whether the aggregate discount exceeds the policy
// threshold and therefore requires a manager to finalize.
func (t Totals) NeedsManager(gateRate float64) bool {
	return t.DiscountRate() > gateRate
}
