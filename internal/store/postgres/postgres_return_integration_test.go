package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func TestCreateReturnRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-ret-it-%d", stamp)
	sku := fmt.Sprintf("SKU-RET-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_events WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM returns WHERE sale_id IN (SELECT id FROM sales WHERE cashier_user_id = 'user-ret-it')`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE cashier_user_id = 'user-ret-it'`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	created, err := s.CreateProduct(ctx, domain.Product{
		ID:       productID,
		SKU:      sku,
		Name:     "Return IT Product",
		Category: "snack",
		Price:    3.50,
		Cost:     1.00,
		TaxRate:  0.10,
		StockQty: 10,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		CashierUserID: "user-ret-it",
		Items:         []domain.CartItem{{ProductID: created.ID, Qty: 3, UnitPrice: 3.50}},
		SubTotal:      10.50,
		TaxTotal:      1.05,
		GrandTotal:    11.55,
		Payments:      domain.Payments{Cash: 11.55},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ReceiptNo == "" {
		t.Fatal("expected a receipt number")
	}

	after, err := s.GetProductByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get product after sale: %v", err)
	}
	if after.StockQty != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", after.StockQty)
	}

	_, err = s.CreateReturn(ctx, domain.Return{
		SaleID:       sale.ID,
		Items:        []domain.ReversalLine{{ProductID: created.ID, Qty: 2}},
		RefundTotal:  7.70,
		RefundMethod: domain.RefundMethodCash,
		Reason:       "integration test return",
	}, domain.SaleStatusPartialRefund)
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	restocked, err := s.GetProductByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get product after return: %v", err)
	}
	if restocked.StockQty != 9 {
		t.Fatalf("expected stock 9 after return restock, got %d", restocked.StockQty)
	}

	reloaded, err := s.GetSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if reloaded.Status != domain.SaleStatusPartialRefund {
		t.Fatalf("expected status PARTIAL_REFUND, got %s", reloaded.Status)
	}
}
