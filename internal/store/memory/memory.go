package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Store struct {
	mu                  sync.RWMutex
	productsByID        map[string]domain.Product
	productIDBySKU      map[string]string
	combosByID          map[string]domain.Combo
	salesByID           map[string]domain.Sale
	returnsByID         map[string]domain.Return
	cancellationsByID   map[string]domain.PaymentCancellation
	shiftsByID          map[string]domain.Shift
	activeShiftID       string
	inventoryEvents     []domain.InventoryEvent
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
	settings            domain.Settings
	receiptCounterByYear map[int]int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables; hardcoded dev defaults are used with a warning when
// unset. These accounts are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"user-manager", "manager", managerPwd, domain.RoleManager},
		{"user-cashier", "cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intPtr(v int) *int { return &v }

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-espresso", SKU: "SKU-ESP-01", Barcode: "8991001000011", Name: "Espresso", Category: "beverage", Price: 2.50, Cost: 0.60, TaxRate: 0.10, StockQty: 120, Active: true, ShortcutKey: intPtr(1)},
		{ID: "prod-latte", SKU: "SKU-LAT-01", Barcode: "8991001000028", Name: "Caffe Latte", Category: "beverage", Price: 3.80, Cost: 1.10, TaxRate: 0.10, StockQty: 120, Active: true, ShortcutKey: intPtr(2)},
		{ID: "prod-croissant", SKU: "SKU-CRO-01", Barcode: "8991001000035", Name: "Butter Croissant", Category: "bakery", Price: 2.90, Cost: 0.95, TaxRate: 0.10, StockQty: 60, Active: true, ShortcutKey: intPtr(3)},
		{ID: "prod-bagel", SKU: "SKU-BAG-01", Barcode: "8991001000042", Name: "Sesame Bagel", Category: "bakery", Price: 2.40, Cost: 0.80, TaxRate: 0.10, StockQty: 45, Active: true},
		{ID: "prod-water", SKU: "SKU-WTR-01", Barcode: "8991001000059", Name: "Mineral Water 500ml", Category: "beverage", Price: 1.20, Cost: 0.35, TaxRate: 0.0, StockQty: 200, Active: true, ShortcutKey: intPtr(4)},
		{ID: "prod-cookie", SKU: "SKU-CKY-01", Barcode: "8991001000066", Name: "Chocolate Cookie", Category: "snack", Price: 1.80, Cost: 0.50, TaxRate: 0.10, StockQty: 80, Active: true},
		{ID: "prod-sandwich", SKU: "SKU-SND-01", Barcode: "8991001000073", Name: "Club Sandwich", Category: "food", Price: 5.50, Cost: 2.20, TaxRate: 0.10, StockQty: 30, Active: true, ShortcutKey: intPtr(5)},
		{ID: "prod-tea", SKU: "SKU-TEA-01", Barcode: "8991001000080", Name: "Green Tea", Category: "beverage", Price: 2.20, Cost: 0.45, TaxRate: 0.10, StockQty: 90, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	skuIndex := make(map[string]string, len(products))
	openingEvents := make([]domain.InventoryEvent, 0, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
		skuIndex[p.SKU] = p.ID
		openingEvents = append(openingEvents, domain.InventoryEvent{
			ID:        "inv-opening-" + p.ID,
			ProductID: p.ID,
			Type:      domain.InventoryEventManualAdjust,
			QtyDelta:  p.StockQty,
			Note:      "opening stock",
			CreatedAt: now,
		})
	}

	combos := map[string]domain.Combo{
		"combo-breakfast": {
			ID:     "combo-breakfast",
			Name:   "Breakfast Set",
			Active: true,
			Items: []domain.ComboItem{
				{ProductID: "prod-latte", Qty: 1},
				{ProductID: "prod-croissant", Qty: 1},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		"combo-lunch": {
			ID:     "combo-lunch",
			Name:   "Lunch Set",
			Active: true,
			Items: []domain.ComboItem{
				{ProductID: "prod-sandwich", Qty: 1},
				{ProductID: "prod-water", Qty: 1},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	return &Store{
		productsByID:      productMap,
		productIDBySKU:    skuIndex,
		combosByID:        combos,
		salesByID:         make(map[string]domain.Sale),
		returnsByID:       make(map[string]domain.Return),
		cancellationsByID: make(map[string]domain.PaymentCancellation),
		shiftsByID:        make(map[string]domain.Shift),
		inventoryEvents:   openingEvents,
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   seedUsers(),
		settings: domain.Settings{
			StoreName:         "Tillpoint Demo Store",
			Currency:          "USD",
			TaxEnabled:        true,
			LowStockThreshold: 10,
			DiscountGateRate:  0.20,
		},
		receiptCounterByYear: make(map[int]int),
	}
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !includeInactive && !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productIDBySKU[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := cloneProduct(s.productsByID[id])
	return &cp, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, exists := s.productsByID[id]; exists {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 {
		return nil, store.ErrValidation
	}
	if product.TaxRate < 0 || product.TaxRate > 1 {
		return nil, store.ErrValidation
	}
	if product.StockQty < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.productIDBySKU[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s", store.ErrConflict, product.SKU)
	}
	if product.Barcode != "" {
		for _, other := range s.productsByID {
			if other.Barcode == product.Barcode {
				return nil, fmt.Errorf("%w: barcode %s", store.ErrConflict, product.Barcode)
			}
		}
	}
	if err := s.checkShortcutLocked(product.ShortcutKey, product.ID); err != nil {
		return nil, err
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	s.productsByID[product.ID] = product
	s.productIDBySKU[product.SKU] = product.ID
	if product.StockQty > 0 {
		// The ledger carries the opening quantity as a real delta so that
		// stock always equals the sum of a product's event deltas.
		s.appendInventoryEventLocked(domain.InventoryEvent{
			Type: domain.InventoryEventManualAdjust,
			Note: "opening stock",
		}, product.ID, product.StockQty)
	}
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.SKU == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 {
		return nil, store.ErrValidation
	}
	if product.TaxRate < 0 || product.TaxRate > 1 {
		return nil, store.ErrValidation
	}
	if product.StockQty < 0 {
		return nil, store.ErrValidation
	}
	if product.SKU != existing.SKU {
		if _, taken := s.productIDBySKU[product.SKU]; taken {
			return nil, fmt.Errorf("%w: sku %s", store.ErrConflict, product.SKU)
		}
	}
	// Shortcut keys only need to be unique among active products; a
	// deactivated product releases its key.
	if product.Active {
		if err := s.checkShortcutLocked(product.ShortcutKey, product.ID); err != nil {
			return nil, err
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	delete(s.productIDBySKU, existing.SKU)
	s.productsByID[product.ID] = product
	s.productIDBySKU[product.SKU] = product.ID
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) checkShortcutLocked(key *int, selfID string) error {
	if key == nil {
		return nil
	}
	if *key < 0 || *key > 9 {
		return store.ErrValidation
	}
	for _, other := range s.productsByID {
		if other.ID == selfID || !other.Active || other.ShortcutKey == nil {
			continue
		}
		if *other.ShortcutKey == *key {
			return fmt.Errorf("%w: shortcut key %d in use by %s", store.ErrConflict, *key, other.SKU)
		}
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int, event domain.InventoryEvent) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if p.StockQty+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	p.StockQty += delta
	p.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = p
	s.appendInventoryEventLocked(event, productID, delta)
	updated := cloneProduct(p)
	return &updated, nil
}

func (s *Store) appendInventoryEventLocked(event domain.InventoryEvent, productID string, delta int) {
	if event.ID == "" {
		event.ID = xid.New("inv")
	}
	event.ProductID = productID
	event.QtyDelta = delta
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.inventoryEvents = append(s.inventoryEvents, event)
}

func (s *Store) ListInventoryEvents(_ context.Context, productID string, limit int) ([]domain.InventoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryEvent, 0, 64)
	for _, ev := range s.inventoryEvents {
		if productID != "" && ev.ProductID != productID {
			continue
		}
		result = append(result, ev)
	}

	slices.SortFunc(result, func(a, b domain.InventoryEvent) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountSoldSince(_ context.Context, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sold := make(map[string]int)
	for _, ev := range s.inventoryEvents {
		if ev.Type != domain.InventoryEventSale || ev.CreatedAt.Before(since) {
			continue
		}
		sold[ev.ProductID] += -ev.QtyDelta
	}
	return sold, nil
}

func (s *Store) ListCombos(_ context.Context, includeInactive bool) ([]domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	combos := make([]domain.Combo, 0, len(s.combosByID))
	for _, c := range s.combosByID {
		if !includeInactive && !c.Active {
			continue
		}
		combos = append(combos, cloneCombo(c))
	}
	slices.SortFunc(combos, func(a, b domain.Combo) int {
		return cmpString(a.Name, b.Name)
	})
	return combos, nil
}

func (s *Store) GetComboByID(_ context.Context, id string) (*domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.combosByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cc := cloneCombo(c)
	return &cc, nil
}

func (s *Store) CreateCombo(_ context.Context, combo domain.Combo) (*domain.Combo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if combo.Name == "" || len(combo.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, ci := range combo.Items {
		if ci.Qty < 1 {
			return nil, store.ErrValidation
		}
		if _, exists := s.productsByID[ci.ProductID]; !exists {
			return nil, fmt.Errorf("%w: combo constituent %s", store.ErrNotFound, ci.ProductID)
		}
	}

	if combo.ID == "" {
		combo.ID = xid.New("combo")
	}
	now := time.Now().UTC()
	combo.CreatedAt = now
	combo.UpdatedAt = now
	combo.Active = true
	s.combosByID[combo.ID] = cloneCombo(combo)
	created := cloneCombo(combo)
	return &created, nil
}

func (s *Store) UpdateCombo(_ context.Context, combo domain.Combo) (*domain.Combo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.combosByID[combo.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if combo.Name == "" || len(combo.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, ci := range combo.Items {
		if ci.Qty < 1 {
			return nil, store.ErrValidation
		}
		if _, ok := s.productsByID[ci.ProductID]; !ok {
			return nil, fmt.Errorf("%w: combo constituent %s", store.ErrNotFound, ci.ProductID)
		}
	}

	combo.CreatedAt = existing.CreatedAt
	combo.UpdatedAt = time.Now().UTC()
	s.combosByID[combo.ID] = cloneCombo(combo)
	updated := cloneCombo(combo)
	return &updated, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrValidation
		}
		p, exists := s.productsByID[item.ProductID]
		if !exists || !p.Active {
			return nil, fmt.Errorf("product %s unavailable", item.ProductID)
		}
		if p.StockQty-item.Qty < 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	year := sale.CreatedAt.Year()
	s.receiptCounterByYear[year]++
	sale.ReceiptNo = xid.ReceiptNo(year, s.receiptCounterByYear[year])
	sale.Status = domain.SaleStatusPaid

	for _, item := range sale.Items {
		p := s.productsByID[item.ProductID]
		p.StockQty -= item.Qty
		p.UpdatedAt = sale.CreatedAt
		s.productsByID[item.ProductID] = p
		s.appendInventoryEventLocked(domain.InventoryEvent{
			Type:      domain.InventoryEventSale,
			RefID:     sale.ID,
			CreatedAt: sale.CreatedAt,
		}, item.ProductID, -item.Qty)
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cp := cloneSale(sale)
	return &cp, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SumCashSales(_ context.Context, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(since) {
			continue
		}
		total += sale.Payments.Cash
	}
	return total, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return, newStatus string) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[ret.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(ret.Items) == 0 {
		return nil, store.ErrValidation
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	for _, line := range ret.Items {
		p, ok := s.productsByID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s unavailable", line.ProductID)
		}
		p.StockQty += line.Qty
		p.UpdatedAt = ret.CreatedAt
		s.productsByID[line.ProductID] = p
		s.appendInventoryEventLocked(domain.InventoryEvent{
			Type:      domain.InventoryEventReturn,
			RefID:     ret.ID,
			CreatedAt: ret.CreatedAt,
		}, line.ProductID, line.Qty)
	}

	sale.Status = newStatus
	s.salesByID[sale.ID] = sale
	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) CreateCancellation(_ context.Context, pc domain.PaymentCancellation, newStatus string) (*domain.PaymentCancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[pc.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(pc.ItemsCancelled) == 0 {
		return nil, store.ErrValidation
	}

	if pc.ID == "" {
		pc.ID = xid.New("pc")
	}
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now().UTC()
	}

	for _, line := range pc.ItemsCancelled {
		p, ok := s.productsByID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s unavailable", line.ProductID)
		}
		p.StockQty += line.Qty
		p.UpdatedAt = pc.CreatedAt
		s.productsByID[line.ProductID] = p
		s.appendInventoryEventLocked(domain.InventoryEvent{
			Type:      domain.InventoryEventCancellation,
			RefID:     pc.ID,
			CreatedAt: pc.CreatedAt,
		}, line.ProductID, line.Qty)
	}

	sale.Status = newStatus
	s.salesByID[sale.ID] = sale
	s.cancellationsByID[pc.ID] = cloneCancellation(pc)
	created := cloneCancellation(pc)
	return &created, nil
}

func (s *Store) ListReturnsBySale(_ context.Context, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, 4)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ListCancellationsBySale(_ context.Context, saleID string) ([]domain.PaymentCancellation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PaymentCancellation, 0, 4)
	for _, pc := range s.cancellationsByID {
		if pc.SaleID != saleID {
			continue
		}
		result = append(result, cloneCancellation(pc))
	}
	slices.SortFunc(result, func(a, b domain.PaymentCancellation) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) SumCashReturns(_ context.Context, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, ret := range s.returnsByID {
		if ret.CreatedAt.Before(since) {
			continue
		}
		if ret.RefundMethod == domain.RefundMethodCash {
			total += ret.RefundTotal
		}
	}
	return total, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeShiftID != "" {
		return nil, fmt.Errorf("%w: a shift is already open", store.ErrConflict)
	}
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
	shift.ExpectedCash = shift.StartingCash
	shift.ActualCash = nil
	shift.Variance = nil
	shift.ClosedAt = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftID = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeShiftID == "" {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[s.activeShiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, expectedCash, actualCash float64, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeShiftID == "" {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[s.activeShiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	variance := actualCash - expectedCash
	shift.Status = domain.ShiftStatusClosed
	shift.ExpectedCash = expectedCash
	shift.ActualCash = &actualCash
	shift.Variance = &variance
	shift.ClosedAt = &closedAt

	s.shiftsByID[shift.ID] = shift
	s.activeShiftID = ""
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s", store.ErrConflict, username)
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	if password == "" {
		return store.ErrValidation
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.StoreName == "" || settings.Currency == "" {
		return nil, store.ErrValidation
	}
	if settings.LowStockThreshold < 0 {
		return nil, store.ErrValidation
	}
	if settings.DiscountGateRate < 0 || settings.DiscountGateRate > 1 {
		return nil, store.ErrValidation
	}
	s.settings = settings
	updated := settings
	return &updated, nil
}

func (s *Store) ExportState(_ context.Context) (*domain.StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.StateSnapshot{
		Settings:   s.settings,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, p := range s.productsByID {
		snap.Products = append(snap.Products, cloneProduct(p))
	}
	for _, c := range s.combosByID {
		snap.Combos = append(snap.Combos, cloneCombo(c))
	}
	for _, sale := range s.salesByID {
		snap.Sales = append(snap.Sales, cloneSale(sale))
	}
	for _, ret := range s.returnsByID {
		snap.Returns = append(snap.Returns, cloneReturn(ret))
	}
	for _, pc := range s.cancellationsByID {
		snap.Cancellations = append(snap.Cancellations, cloneCancellation(pc))
	}
	for _, shift := range s.shiftsByID {
		snap.Shifts = append(snap.Shifts, shift)
	}
	snap.InventoryEvents = append(snap.InventoryEvents, s.inventoryEvents...)
	snap.AuditLogs = append(snap.AuditLogs, s.auditLogs...)

	maxYear := 0
	for year := range s.receiptCounterByYear {
		if year > maxYear {
			maxYear = year
		}
	}
	snap.ReceiptCounter = s.receiptCounterByYear[maxYear]

	sortSnapshot(&snap)
	return &snap, nil
}

// ImportState replaces the full dataset. Invariant validation happens in the
// service layer before this is called; the store only swaps state.
func (s *Store) ImportState(_ context.Context, snapshot domain.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[string]domain.Product, len(snapshot.Products))
	skuIndex := make(map[string]string, len(snapshot.Products))
	for _, p := range snapshot.Products {
		if p.ID == "" || p.SKU == "" {
			return store.ErrValidation
		}
		if _, dup := skuIndex[p.SKU]; dup {
			return fmt.Errorf("%w: duplicate sku %s", store.ErrConflict, p.SKU)
		}
		products[p.ID] = cloneProduct(p)
		skuIndex[p.SKU] = p.ID
	}

	combos := make(map[string]domain.Combo, len(snapshot.Combos))
	for _, c := range snapshot.Combos {
		combos[c.ID] = cloneCombo(c)
	}
	sales := make(map[string]domain.Sale, len(snapshot.Sales))
	activeShift := ""
	for _, sale := range snapshot.Sales {
		sales[sale.ID] = cloneSale(sale)
	}
	returns := make(map[string]domain.Return, len(snapshot.Returns))
	for _, ret := range snapshot.Returns {
		returns[ret.ID] = cloneReturn(ret)
	}
	cancellations := make(map[string]domain.PaymentCancellation, len(snapshot.Cancellations))
	for _, pc := range snapshot.Cancellations {
		cancellations[pc.ID] = cloneCancellation(pc)
	}
	shifts := make(map[string]domain.Shift, len(snapshot.Shifts))
	for _, shift := range snapshot.Shifts {
		if shift.Status == domain.ShiftStatusOpen {
			if activeShift != "" {
				return fmt.Errorf("%w: multiple open shifts", store.ErrConflict)
			}
			activeShift = shift.ID
		}
		shifts[shift.ID] = shift
	}

	s.productsByID = products
	s.productIDBySKU = skuIndex
	s.combosByID = combos
	s.salesByID = sales
	s.returnsByID = returns
	s.cancellationsByID = cancellations
	s.shiftsByID = shifts
	s.activeShiftID = activeShift
	s.inventoryEvents = append([]domain.InventoryEvent(nil), snapshot.InventoryEvents...)
	s.auditLogs = append([]domain.AuditLog(nil), snapshot.AuditLogs...)
	s.settings = snapshot.Settings
	s.receiptCounterByYear = map[int]int{time.Now().UTC().Year(): snapshot.ReceiptCounter}
	return nil
}

func sortSnapshot(snap *domain.StateSnapshot) {
	slices.SortFunc(snap.Products, func(a, b domain.Product) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.Combos, func(a, b domain.Combo) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.Sales, func(a, b domain.Sale) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.Returns, func(a, b domain.Return) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.Cancellations, func(a, b domain.PaymentCancellation) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.Shifts, func(a, b domain.Shift) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.InventoryEvents, func(a, b domain.InventoryEvent) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(snap.AuditLogs, func(a, b domain.AuditLog) int { return cmpString(a.ID, b.ID) })
}

func cloneProduct(p domain.Product) domain.Product {
	cp := p
	if p.ShortcutKey != nil {
		k := *p.ShortcutKey
		cp.ShortcutKey = &k
	}
	return cp
}

func cloneCombo(c domain.Combo) domain.Combo {
	cc := c
	cc.Items = append([]domain.ComboItem(nil), c.Items...)
	return cc
}

func cloneSale(sale domain.Sale) domain.Sale {
	cp := sale
	cp.Items = append([]domain.CartItem(nil), sale.Items...)
	return cp
}

func cloneReturn(ret domain.Return) domain.Return {
	cp := ret
	cp.Items = append([]domain.ReversalLine(nil), ret.Items...)
	return cp
}

func cloneCancellation(pc domain.PaymentCancellation) domain.PaymentCancellation {
	cp := pc
	cp.ItemsCancelled = append([]domain.ReversalLine(nil), pc.ItemsCancelled...)
	return cp
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
