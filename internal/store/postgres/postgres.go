package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// Store implements store.Repository on PostgreSQL. Sale, reversal and stock
// mutations run in SERIALIZABLE transactions with row locks on the products
// they touch. Sale and reversal line items are stored as JSONB payloads.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, barcode, name, category, price, cost, tax_rate, stock_qty, active, shortcut_key, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	var shortcut sql.NullInt64
	err := row.Scan(&p.ID, &p.SKU, &barcode, &p.Name, &p.Category, &p.Price, &p.Cost,
		&p.TaxRate, &p.StockQty, &p.Active, &shortcut, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	if shortcut.Valid {
		key := int(shortcut.Int64)
		p.ShortcutKey = &key
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY category, name`
	if !includeInactive {
		query = `SELECT ` + productColumns + ` FROM products WHERE active = true ORDER BY category, name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkShortcutFree(ctx, tx, product.ShortcutKey, product.ID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, barcode, name, category, price, cost, tax_rate, stock_qty, active, shortcut_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.SKU, nullIfEmpty(product.Barcode), product.Name, product.Category,
		product.Price, product.Cost, product.TaxRate, product.StockQty, product.Active,
		nullIntPtr(product.ShortcutKey), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}

	if product.StockQty > 0 {
		// The opening quantity is a real ledger delta so stock always equals
		// the sum of a product's event deltas.
		if err := insertInventoryEvent(ctx, tx, domain.InventoryEvent{
			ProductID: product.ID,
			Type:      domain.InventoryEventManualAdjust,
			QtyDelta:  product.StockQty,
			Note:      "opening stock",
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" {
		return nil, store.ErrValidation
	}
	product.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Shortcut keys only need to be unique among active products; a
	// deactivated product releases its key.
	if product.Active {
		if err := checkShortcutFree(ctx, tx, product.ShortcutKey, product.ID); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET barcode = $2, name = $3, category = $4, price = $5, cost = $6, tax_rate = $7,
			active = $8, shortcut_key = $9, updated_at = $10
		WHERE id = $1
	`, product.ID, nullIfEmpty(product.Barcode), product.Name, product.Category, product.Price,
		product.Cost, product.TaxRate, product.Active, nullIntPtr(product.ShortcutKey), product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, product.ID)
}

func checkShortcutFree(ctx context.Context, tx *sql.Tx, key *int, excludeID string) error {
	if key == nil {
		return nil
	}
	if *key < 0 || *key > 9 {
		return fmt.Errorf("%w: shortcut key must be 0-9", store.ErrValidation)
	}
	var taken bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM products WHERE shortcut_key = $1 AND active = true AND id <> $2
		)
	`, *key, excludeID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: shortcut key %d already assigned", store.ErrConflict, *key)
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int, event domain.InventoryEvent) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var stockQty int
	err = tx.QueryRowContext(ctx, `SELECT stock_qty FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stockQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	newQty := stockQty + delta
	if newQty < 0 {
		return nil, fmt.Errorf("%w: stock for %s would go negative", store.ErrInsufficientStock, productID)
	}

	_, err = tx.ExecContext(ctx, `UPDATE products SET stock_qty = $2, updated_at = now() WHERE id = $1`, productID, newQty)
	if err != nil {
		return nil, err
	}

	event.ProductID = productID
	event.QtyDelta = delta
	if err := insertInventoryEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, productID)
}

func insertInventoryEvent(ctx context.Context, tx *sql.Tx, event domain.InventoryEvent) error {
	if event.ID == "" {
		event.ID = xid.New("inv")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_events (id, product_id, event_type, qty_delta, ref_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.ID, event.ProductID, event.Type, event.QtyDelta, nullIfEmpty(event.RefID), nullIfEmpty(event.Note), event.CreatedAt)
	return err
}

func (s *Store) ListInventoryEvents(ctx context.Context, productID string, limit int) ([]domain.InventoryEvent, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, product_id, event_type, qty_delta, ref_id, note, created_at
		FROM inventory_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	args := []any{limit}
	if productID != "" {
		query = `
			SELECT id, product_id, event_type, qty_delta, ref_id, note, created_at
			FROM inventory_events
			WHERE product_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		args = []any{productID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.InventoryEvent, 0, limit)
	for rows.Next() {
		var ev domain.InventoryEvent
		var refID, note sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ProductID, &ev.Type, &ev.QtyDelta, &refID, &note, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.RefID = refID.String
		ev.Note = note.String
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) CountSoldSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COALESCE(SUM(-qty_delta), 0)
		FROM inventory_events
		WHERE event_type = $1 AND created_at >= $2
		GROUP BY product_id
	`, domain.InventoryEventSale, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sold := make(map[string]int)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		sold[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sold, nil
}

func (s *Store) ListCombos(ctx context.Context, includeInactive bool) ([]domain.Combo, error) {
	query := `SELECT id, name, items, active, created_at, updated_at FROM combos ORDER BY name`
	if !includeInactive {
		query = `SELECT id, name, items, active, created_at, updated_at FROM combos WHERE active = true ORDER BY name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	combos := make([]domain.Combo, 0, 16)
	for rows.Next() {
		combo, err := scanCombo(rows)
		if err != nil {
			return nil, err
		}
		combos = append(combos, *combo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return combos, nil
}

func scanCombo(row interface{ Scan(...any) error }) (*domain.Combo, error) {
	var combo domain.Combo
	var itemsRaw []byte
	if err := row.Scan(&combo.ID, &combo.Name, &itemsRaw, &combo.Active, &combo.CreatedAt, &combo.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &combo.Items); err != nil {
		return nil, err
	}
	combo.CreatedAt = combo.CreatedAt.UTC()
	combo.UpdatedAt = combo.UpdatedAt.UTC()
	return &combo, nil
}

func (s *Store) GetComboByID(ctx context.Context, id string) (*domain.Combo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, items, active, created_at, updated_at FROM combos WHERE id = $1`, id)
	combo, err := scanCombo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return combo, nil
}

func (s *Store) CreateCombo(ctx context.Context, combo domain.Combo) (*domain.Combo, error) {
	if combo.Name == "" || len(combo.Items) == 0 {
		return nil, store.ErrValidation
	}
	if combo.ID == "" {
		combo.ID = xid.New("combo")
	}
	now := time.Now().UTC()
	if combo.CreatedAt.IsZero() {
		combo.CreatedAt = now
	}
	combo.UpdatedAt = now

	itemsJSON, err := json.Marshal(combo.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO combos (id, name, items, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, combo.ID, combo.Name, itemsJSON, combo.Active, combo.CreatedAt, combo.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &combo, nil
}

func (s *Store) UpdateCombo(ctx context.Context, combo domain.Combo) (*domain.Combo, error) {
	if combo.ID == "" || combo.Name == "" || len(combo.Items) == 0 {
		return nil, store.ErrValidation
	}
	combo.UpdatedAt = time.Now().UTC()

	itemsJSON, err := json.Marshal(combo.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE combos SET name = $2, items = $3, active = $4, updated_at = $5 WHERE id = $1
	`, combo.ID, combo.Name, itemsJSON, combo.Active, combo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetComboByID(ctx, combo.ID)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range sale.Items {
		if item.ProductID == "" || item.Qty < 1 {
			return nil, store.ErrValidation
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}

	for _, item := range sale.Items {
		var stockQty int
		err := tx.QueryRowContext(ctx, `SELECT stock_qty FROM products WHERE id = $1 AND active = true FOR UPDATE`, item.ProductID).Scan(&stockQty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
			return nil, err
		}
		if stockQty < item.Qty {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, item.ProductID)
		}

		_, err = tx.ExecContext(ctx, `UPDATE products SET stock_qty = stock_qty - $2, updated_at = now() WHERE id = $1`, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}

		err = insertInventoryEvent(ctx, tx, domain.InventoryEvent{
			ProductID: item.ProductID,
			Type:      domain.InventoryEventSale,
			QtyDelta:  -item.Qty,
			RefID:     sale.ID,
			CreatedAt: sale.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	year := sale.CreatedAt.Year()
	var counter int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO receipt_counters (year, counter) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET counter = receipt_counters.counter + 1
		RETURNING counter
	`, year).Scan(&counter)
	if err != nil {
		return nil, err
	}
	sale.ReceiptNo = xid.ReceiptNo(year, counter)

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, receipt_no, cashier_user_id, shift_id, items, sub_total, discount_total, tax_total, grand_total, cash_paid, card_paid, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.ReceiptNo, sale.CashierUserID, nullIfEmpty(sale.ShiftID), itemsJSON,
		sale.SubTotal, sale.DiscountTotal, sale.TaxTotal, sale.GrandTotal,
		sale.Payments.Cash, sale.Payments.Card, sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, receipt_no, cashier_user_id, shift_id, items, sub_total, discount_total, tax_total, grand_total, cash_paid, card_paid, status, created_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var shiftID sql.NullString
	var itemsRaw []byte
	err := row.Scan(&sale.ID, &sale.ReceiptNo, &sale.CashierUserID, &shiftID, &itemsRaw,
		&sale.SubTotal, &sale.DiscountTotal, &sale.TaxTotal, &sale.GrandTotal,
		&sale.Payments.Cash, &sale.Payments.Card, &sale.Status, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	sale.ShiftID = shiftID.String
	if err := json.Unmarshal(itemsRaw, &sale.Items); err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SumCashSales(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cash_paid), 0) FROM sales WHERE created_at >= $1
	`, since).Scan(&total)
	return total, err
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return, newStatus string) (*domain.Return, error) {
	if ret.SaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrValidation
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyReversal(ctx, tx, ret.SaleID, ret.Items, domain.InventoryEventReturn, ret.ID, ret.CreatedAt, newStatus); err != nil {
		return nil, err
	}

	itemsJSON, err := json.Marshal(ret.Items)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (id, sale_id, items, refund_total, refund_method, reason, processed_by_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ret.ID, ret.SaleID, itemsJSON, ret.RefundTotal, ret.RefundMethod, ret.Reason, ret.ProcessedByID, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) CreateCancellation(ctx context.Context, pc domain.PaymentCancellation, newStatus string) (*domain.PaymentCancellation, error) {
	if pc.SaleID == "" || len(pc.ItemsCancelled) == 0 {
		return nil, store.ErrValidation
	}
	if pc.ID == "" {
		pc.ID = xid.New("pc")
	}
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyReversal(ctx, tx, pc.SaleID, pc.ItemsCancelled, domain.InventoryEventCancellation, pc.ID, pc.CreatedAt, newStatus); err != nil {
		return nil, err
	}

	itemsJSON, err := json.Marshal(pc.ItemsCancelled)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cancellations (id, sale_id, items, cancellation_total, refund_method, reason, processed_by_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, pc.ID, pc.SaleID, itemsJSON, pc.CancellationTotal, pc.RefundMethod, pc.Reason, pc.ProcessedByID, pc.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &pc, nil
}

// applyReversal restores stock for each reversed line, appends one inventory
// event per line and moves the sale row to newStatus. The sale row is locked
// first so concurrent reversals of the same sale serialize.
func applyReversal(ctx context.Context, tx *sql.Tx, saleID string, items []domain.ReversalLine, eventType, refID string, at time.Time, newStatus string) error {
	var currentStatus string
	err := tx.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1 FOR UPDATE`, saleID).Scan(&currentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	for _, line := range items {
		if line.ProductID == "" || line.Qty < 1 {
			return store.ErrValidation
		}
		res, err := tx.ExecContext(ctx, `UPDATE products SET stock_qty = stock_qty + $2, updated_at = now() WHERE id = $1`, line.ProductID, line.Qty)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}

		err = insertInventoryEvent(ctx, tx, domain.InventoryEvent{
			ProductID: line.ProductID,
			Type:      eventType,
			QtyDelta:  line.Qty,
			RefID:     refID,
			CreatedAt: at,
		})
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, saleID, newStatus)
	return err
}

func (s *Store) ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, items, refund_total, refund_method, reason, processed_by_id, created_at
		FROM returns
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Return, 0, 4)
	for rows.Next() {
		var ret domain.Return
		var itemsRaw []byte
		if err := rows.Scan(&ret.ID, &ret.SaleID, &itemsRaw, &ret.RefundTotal, &ret.RefundMethod, &ret.Reason, &ret.ProcessedByID, &ret.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsRaw, &ret.Items); err != nil {
			return nil, err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListCancellationsBySale(ctx context.Context, saleID string) ([]domain.PaymentCancellation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, items, cancellation_total, refund_method, reason, processed_by_id, created_at
		FROM cancellations
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PaymentCancellation, 0, 4)
	for rows.Next() {
		var pc domain.PaymentCancellation
		var itemsRaw []byte
		if err := rows.Scan(&pc.ID, &pc.SaleID, &itemsRaw, &pc.CancellationTotal, &pc.RefundMethod, &pc.Reason, &pc.ProcessedByID, &pc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsRaw, &pc.ItemsCancelled); err != nil {
			return nil, err
		}
		pc.CreatedAt = pc.CreatedAt.UTC()
		result = append(result, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumCashReturns(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(refund_total), 0)
		FROM returns
		WHERE refund_method = $1 AND created_at >= $2
	`, domain.RefundMethodCash, since).Scan(&total)
	return total, err
}

const shiftColumns = `id, opened_by_id, starting_cash, expected_cash, actual_cash, variance, status, opened_at, closed_at`

func scanShift(row interface{ Scan(...any) error }) (*domain.Shift, error) {
	var shift domain.Shift
	var actual, variance sql.NullFloat64
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.OpenedByID, &shift.StartingCash, &shift.ExpectedCash,
		&actual, &variance, &shift.Status, &shift.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if actual.Valid {
		v := actual.Float64
		shift.ActualCash = &v
	}
	if variance.Valid {
		v := variance.Float64
		shift.Variance = &v
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		shift.ClosedAt = &t
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	return &shift, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.StartingCash < 0 {
		return nil, store.ErrValidation
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var openCount int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM shifts WHERE status = $1`, domain.ShiftStatusOpen).Scan(&openCount)
	if err != nil {
		return nil, err
	}
	if openCount > 0 {
		return nil, fmt.Errorf("%w: a shift is already open", store.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (id, opened_by_id, starting_cash, expected_cash, status, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shift.ID, shift.OpenedByID, shift.StartingCash, shift.StartingCash, shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a shift is already open", store.ErrConflict)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	shift.ExpectedCash = shift.StartingCash
	return &shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE status = $1 LIMIT 1`, domain.ShiftStatusOpen)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, expectedCash, actualCash float64, closedAt time.Time) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var shiftID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM shifts WHERE status = $1 LIMIT 1 FOR UPDATE`, domain.ShiftStatusOpen).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	variance := actualCash - expectedCash
	_, err = tx.ExecContext(ctx, `
		UPDATE shifts
		SET expected_cash = $2, actual_cash = $3, variance = $4, status = $5, closed_at = $6
		WHERE id = $1
	`, shiftID, expectedCash, actualCash, variance, domain.ShiftStatusClosed, closedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, shiftID)
	return scanShift(row)
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+shiftColumns+` FROM shifts ORDER BY opened_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entityID, detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EntityID = entityID.String
		entry.Detail = detail.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: username %s already exists", store.ErrConflict, user.Username)
	}
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, currency, tax_enabled, low_stock_threshold, discount_gate_rate
		FROM settings WHERE id = 1
	`).Scan(&settings.StoreName, &settings.Currency, &settings.TaxEnabled, &settings.LowStockThreshold, &settings.DiscountGateRate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, currency, tax_enabled, low_stock_threshold, discount_gate_rate)
		VALUES (1,$1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			currency = EXCLUDED.currency,
			tax_enabled = EXCLUDED.tax_enabled,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			discount_gate_rate = EXCLUDED.discount_gate_rate
	`, settings.StoreName, settings.Currency, settings.TaxEnabled, settings.LowStockThreshold, settings.DiscountGateRate)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) ExportState(ctx context.Context) (*domain.StateSnapshot, error) {
	snap := domain.StateSnapshot{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	}

	products, err := s.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	snap.Products = products

	combos, err := s.ListCombos(ctx, true)
	if err != nil {
		return nil, err
	}
	snap.Combos = combos

	sales, err := s.ListSales(ctx, 1<<20)
	if err != nil {
		return nil, err
	}
	snap.Sales = sales

	if err := s.collectReversals(ctx, &snap); err != nil {
		return nil, err
	}

	shifts, err := s.ListShifts(ctx, 1<<20)
	if err != nil {
		return nil, err
	}
	snap.Shifts = shifts

	events, err := s.ListInventoryEvents(ctx, "", 1<<20)
	if err != nil {
		return nil, err
	}
	snap.InventoryEvents = events

	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Now().UTC().Add(time.Minute), 1<<20)
	if err != nil {
		return nil, err
	}
	snap.AuditLogs = logs

	settings, err := s.GetSettings(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if settings != nil {
		snap.Settings = *settings
	}

	year := time.Now().UTC().Year()
	err = s.db.QueryRowContext(ctx, `SELECT counter FROM receipt_counters WHERE year = $1`, year).Scan(&snap.ReceiptCounter)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return &snap, nil
}

func (s *Store) collectReversals(ctx context.Context, snap *domain.StateSnapshot) error {
	retRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, items, refund_total, refund_method, reason, processed_by_id, created_at
		FROM returns ORDER BY created_at ASC
	`)
	if err != nil {
		return err
	}
	defer retRows.Close()
	for retRows.Next() {
		var ret domain.Return
		var itemsRaw []byte
		if err := retRows.Scan(&ret.ID, &ret.SaleID, &itemsRaw, &ret.RefundTotal, &ret.RefundMethod, &ret.Reason, &ret.ProcessedByID, &ret.CreatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(itemsRaw, &ret.Items); err != nil {
			return err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		snap.Returns = append(snap.Returns, ret)
	}
	if err := retRows.Err(); err != nil {
		return err
	}

	pcRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, items, cancellation_total, refund_method, reason, processed_by_id, created_at
		FROM cancellations ORDER BY created_at ASC
	`)
	if err != nil {
		return err
	}
	defer pcRows.Close()
	for pcRows.Next() {
		var pc domain.PaymentCancellation
		var itemsRaw []byte
		if err := pcRows.Scan(&pc.ID, &pc.SaleID, &itemsRaw, &pc.CancellationTotal, &pc.RefundMethod, &pc.Reason, &pc.ProcessedByID, &pc.CreatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(itemsRaw, &pc.ItemsCancelled); err != nil {
			return err
		}
		pc.CreatedAt = pc.CreatedAt.UTC()
		snap.Cancellations = append(snap.Cancellations, pc)
	}
	return pcRows.Err()
}

// ImportState replaces all POS state except user accounts with the snapshot
// contents. Runs in one transaction; a failed import leaves the previous state
// intact.
func (s *Store) ImportState(ctx context.Context, snapshot domain.StateSnapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"inventory_events", "returns", "cancellations", "sales", "shifts", "combos", "products", "audit_logs", "receipt_counters"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}

	for _, p := range snapshot.Products {
		if p.ID == "" || p.SKU == "" {
			return store.ErrValidation
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, sku, barcode, name, category, price, cost, tax_rate, stock_qty, active, shortcut_key, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, p.ID, p.SKU, nullIfEmpty(p.Barcode), p.Name, p.Category, p.Price, p.Cost, p.TaxRate,
			p.StockQty, p.Active, nullIntPtr(p.ShortcutKey), orNow(p.CreatedAt), orNow(p.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate sku %s", store.ErrConflict, p.SKU)
			}
			return err
		}
	}

	for _, c := range snapshot.Combos {
		itemsJSON, err := json.Marshal(c.Items)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO combos (id, name, items, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, c.ID, c.Name, itemsJSON, c.Active, orNow(c.CreatedAt), orNow(c.UpdatedAt))
		if err != nil {
			return err
		}
	}

	openShifts := 0
	for _, shift := range snapshot.Shifts {
		if shift.Status == domain.ShiftStatusOpen {
			openShifts++
			if openShifts > 1 {
				return fmt.Errorf("%w: more than one open shift in snapshot", store.ErrConflict)
			}
		}
		var closedAt any
		if shift.ClosedAt != nil {
			closedAt = *shift.ClosedAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shifts (id, opened_by_id, starting_cash, expected_cash, actual_cash, variance, status, opened_at, closed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, shift.ID, shift.OpenedByID, shift.StartingCash, shift.ExpectedCash,
			nullFloatPtr(shift.ActualCash), nullFloatPtr(shift.Variance), shift.Status, orNow(shift.OpenedAt), closedAt)
		if err != nil {
			return err
		}
	}

	for _, sale := range snapshot.Sales {
		itemsJSON, err := json.Marshal(sale.Items)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (id, receipt_no, cashier_user_id, shift_id, items, sub_total, discount_total, tax_total, grand_total, cash_paid, card_paid, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, sale.ID, sale.ReceiptNo, sale.CashierUserID, nullIfEmpty(sale.ShiftID), itemsJSON,
			sale.SubTotal, sale.DiscountTotal, sale.TaxTotal, sale.GrandTotal,
			sale.Payments.Cash, sale.Payments.Card, sale.Status, orNow(sale.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate receipt %s", store.ErrConflict, sale.ReceiptNo)
			}
			return err
		}
	}

	for _, ret := range snapshot.Returns {
		itemsJSON, err := json.Marshal(ret.Items)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO returns (id, sale_id, items, refund_total, refund_method, reason, processed_by_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, ret.ID, ret.SaleID, itemsJSON, ret.RefundTotal, ret.RefundMethod, ret.Reason, ret.ProcessedByID, orNow(ret.CreatedAt))
		if err != nil {
			return err
		}
	}

	for _, pc := range snapshot.Cancellations {
		itemsJSON, err := json.Marshal(pc.ItemsCancelled)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cancellations (id, sale_id, items, cancellation_total, refund_method, reason, processed_by_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, pc.ID, pc.SaleID, itemsJSON, pc.CancellationTotal, pc.RefundMethod, pc.Reason, pc.ProcessedByID, orNow(pc.CreatedAt))
		if err != nil {
			return err
		}
	}

	for _, ev := range snapshot.InventoryEvents {
		if err := insertInventoryEvent(ctx, tx, ev); err != nil {
			return err
		}
	}

	for _, entry := range snapshot.AuditLogs {
		if entry.ID == "" {
			entry.ID = xid.New("audit")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
			nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), orNow(entry.CreatedAt))
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, currency, tax_enabled, low_stock_threshold, discount_gate_rate)
		VALUES (1,$1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			currency = EXCLUDED.currency,
			tax_enabled = EXCLUDED.tax_enabled,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			discount_gate_rate = EXCLUDED.discount_gate_rate
	`, snapshot.Settings.StoreName, snapshot.Settings.Currency, snapshot.Settings.TaxEnabled,
		snapshot.Settings.LowStockThreshold, snapshot.Settings.DiscountGateRate)
	if err != nil {
		return err
	}

	if snapshot.ReceiptCounter > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_counters (year, counter) VALUES ($1, $2)
		`, time.Now().UTC().Year(), snapshot.ReceiptCounter)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIntPtr(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullFloatPtr(val *float64) any {
	if val == nil {
		return nil
	}
	return *val
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
