package cart

import (
	"errors"
	"math"
	"testing"

	"tillpoint/backend/internal/domain"
)

func testProduct(id string, price float64, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		SKU:      "SKU-" + id,
		Name:     "Product " + id,
		Price:    price,
		TaxRate:  0.1,
		StockQty: stock,
		Active:   true,
	}
}

func TestAddItemMergesLines(t *testing.T) {
	c := New()
	p := testProduct("p1", 5.0, 10)
	if err := c.AddItem(p, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddItem(p, 3); err != nil {
		t.Fatalf("add again: %v", err)
	}
	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Qty != 5 {
		t.Fatalf("expected merged qty 5, got %d", lines[0].Qty)
	}
	if lines[0].UnitPrice != 5.0 {
		t.Fatalf("expected captured unit price 5.0, got %v", lines[0].UnitPrice)
	}
}

func TestAddItemStockChecks(t *testing.T) {
	c := New()
	if err := c.AddItem(testProduct("p1", 5.0, 0), 1); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	p := testProduct("p2", 5.0, 3)
	if err := c.AddItem(p, 3); err != nil {
		t.Fatalf("add to cap: %v", err)
	}
	if err := c.AddItem(p, 1); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock beyond cap, got %v", err)
	}
	inactive := testProduct("p3", 5.0, 10)
	inactive.Active = false
	if err := c.AddItem(inactive, 1); !errors.Is(err, ErrProductInactive) {
		t.Fatalf("expected ErrProductInactive, got %v", err)
	}
}

func TestAddComboAllOrNothing(t *testing.T) {
	burger := testProduct("burger", 4.0, 10)
	fries := testProduct("fries", 2.0, 1)
	products := map[string]domain.Product{"burger": burger, "fries": fries}
	combo := domain.Combo{
		ID:     "c1",
		Name:   "Meal",
		Active: true,
		Items: []domain.ComboItem{
			{ProductID: "burger", Qty: 1},
			{ProductID: "fries", Qty: 2},
		},
	}

	c := New()
	err := c.AddCombo(combo, products)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if len(c.Lines()) != 0 {
		t.Fatalf("failed combo must leave the cart untouched, got %d lines", len(c.Lines()))
	}

	products["fries"] = testProduct("fries", 2.0, 5)
	if err := c.AddCombo(combo, products); err != nil {
		t.Fatalf("combo add: %v", err)
	}
	if got := c.Qty("burger"); got != 1 {
		t.Fatalf("expected 1 burger, got %d", got)
	}
	if got := c.Qty("fries"); got != 2 {
		t.Fatalf("expected 2 fries, got %d", got)
	}
}

func TestAddComboCountsExistingLines(t *testing.T) {
	soda := testProduct("soda", 1.5, 3)
	products := map[string]domain.Product{"soda": soda}
	combo := domain.Combo{
		ID: "c2", Name: "Double Soda", Active: true,
		Items: []domain.ComboItem{{ProductID: "soda", Qty: 2}},
	}
	c := New()
	if err := c.AddItem(soda, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddCombo(combo, products); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock with existing lines counted, got %v", err)
	}
}

func TestUpdateLineClampsDiscount(t *testing.T) {
	c := New()
	p := testProduct("p1", 10.0, 20)
	if err := c.AddItem(p, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.UpdateLine("p1", 3, 50.0, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	lines := c.Lines()
	if lines[0].DiscountAmount != 30.0 {
		t.Fatalf("discount should clamp to line amount 30.0, got %v", lines[0].DiscountAmount)
	}
	if err := c.UpdateLine("p1", 3, -5.0, p); err != nil {
		t.Fatalf("update negative: %v", err)
	}
	if got := c.Lines()[0].DiscountAmount; got != 0 {
		t.Fatalf("negative discount should clamp to 0, got %v", got)
	}
	if err := c.UpdateLine("p1", 0, 0, p); !errors.Is(err, ErrInvalidQty) {
		t.Fatalf("expected ErrInvalidQty, got %v", err)
	}
	if err := c.UpdateLine("missing", 1, 0, p); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestComputeTotalsAdditivity(t *testing.T) {
	a := testProduct("a", 10.0, 100)
	a.TaxRate = 0.1
	b := testProduct("b", 7.5, 100)
	b.TaxRate = 0.05
	products := map[string]domain.Product{"a": a, "b": b}

	c := New()
	if err := c.AddItem(a, 2); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := c.AddItem(b, 4); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := c.UpdateLine("a", 2, 5.0, a); err != nil {
		t.Fatalf("update a: %v", err)
	}

	tot := c.ComputeTotals(products, true)
	wantSub := (10.0*2 - 5.0) + 7.5*4
	wantTax := (10.0*2-5.0)*0.1 + 7.5*4*0.05
	if math.Abs(tot.SubTotal-wantSub) > 1e-9 {
		t.Fatalf("subtotal = %v, want %v", tot.SubTotal, wantSub)
	}
	if math.Abs(tot.TaxTotal-wantTax) > 1e-9 {
		t.Fatalf("tax = %v, want %v", tot.TaxTotal, wantTax)
	}
	if math.Abs(tot.GrandTotal-(tot.SubTotal+tot.TaxTotal)) > 1e-9 {
		t.Fatalf("grand total must equal subtotal+tax")
	}

	noTax := c.ComputeTotals(products, false)
	if noTax.TaxTotal != 0 {
		t.Fatalf("tax disabled must yield zero tax, got %v", noTax.TaxTotal)
	}
}

func TestDiscountRateAndGate(t *testing.T) {
	var empty Totals
	if empty.DiscountRate() != 0 {
		t.Fatalf("empty cart discount rate must be 0, got %v", empty.DiscountRate())
	}

	// 25 discount over 100 pre-discount is exactly 25%.
	tot := Totals{SubTotal: 75, DiscountTotal: 25}
	if !tot.NeedsManager(0.20) {
		t.Fatal("25% discount must require a manager at a 20% gate")
	}

	// Exactly at the gate does not trip it.
	edge := Totals{SubTotal: 80, DiscountTotal: 20}
	if edge.NeedsManager(0.20) {
		t.Fatal("exactly 20% must not require a manager")
	}

	// Fully discounted cart: rate is 100%, not NaN.
	full := Totals{SubTotal: 0, DiscountTotal: 50}
	if full.DiscountRate() != 1.0 {
		t.Fatalf("fully discounted rate = %v, want 1.0", full.DiscountRate())
	}
}

func TestRemoveLine(t *testing.T) {
	c := New()
	p := testProduct("p1", 5.0, 10)
	if err := c.AddItem(p, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.RemoveLine("p1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(c.Lines()) != 0 {
		t.Fatal("expected empty cart after remove")
	}
	if err := c.RemoveLine("p1"); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}
