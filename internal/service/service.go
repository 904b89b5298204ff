package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/stockwatch"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

var (
	ErrNoOpenShift              = errors.New("active shift required")
	ErrShiftAlreadyOpen         = errors.New("a shift is already open")
	ErrInsufficientPayment      = errors.New("insufficient payment")
	ErrDiscountPolicy           = errors.New("discount exceeds cashier limit")
	ErrManagerRequired          = errors.New("manager role required")
	ErrSaleClosed               = errors.New("sale does not accept this reversal")
	ErrReversalExceedsRemaining = errors.New("reversal exceeds remaining quantity")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	watcher *stockwatch.Engine
}

func New(repo store.Repository, watcher *stockwatch.Engine) *Service {
	if watcher == nil {
		watcher = stockwatch.NewEngine(nil, 0)
	}
	return &Service{repo: repo, watcher: watcher}
}

// LowStockReport surfaces active products at or below the configured
// threshold together with their recent sales velocity.
func (s *Service) LowStockReport(ctx context.Context) (domain.LowStockResponse, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	sold, err := s.repo.CountSoldSince(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	return s.watcher.Report(ctx, products, sold, settings.LowStockThreshold), nil
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.Price < 0 || req.Cost < 0 || req.TaxRate < 0 || req.TaxRate > 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		SKU:         req.SKU,
		Barcode:     req.Barcode,
		Name:        req.Name,
		Category:    req.Category,
		Price:       money.Round2(req.Price),
		Cost:        money.Round2(req.Cost),
		TaxRate:     req.TaxRate,
		StockQty:    req.InitialStock,
		ShortcutKey: req.ShortcutKey,
		Active:      true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%.2f,stock=%d", created.SKU, created.Price, created.StockQty))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.Price = money.Round2(*req.Price)
	}
	if req.Cost != nil {
		if *req.Cost < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.Cost = money.Round2(*req.Cost)
	}
	if req.TaxRate != nil {
		if *req.TaxRate < 0 || *req.TaxRate > 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.TaxRate = *req.TaxRate
	}
	if req.Active != nil {
		updated.Active = *req.Active
		if !updated.Active {
			// Deactivation releases the shortcut key for reuse.
			updated.ShortcutKey = nil
		}
	}
	if req.ShortcutKey != nil {
		updated.ShortcutKey = req.ShortcutKey
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("sku=%s,active=%t,price=%.2f", saved.SKU, saved.Active, saved.Price))
	return *saved, nil
}

// AdjustStock applies a signed manual correction to a product's stock and
// records a MANUAL_ADJUST ledger event. Stock never goes below zero.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.ProductID == "" || req.QtyDelta == 0 {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.AdjustStock(ctx, req.ProductID, req.QtyDelta, domain.InventoryEvent{
		Type: domain.InventoryEventManualAdjust,
		Note: strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", updated.ID, fmt.Sprintf("delta=%d,stock=%d,note=%s", req.QtyDelta, updated.StockQty, req.Note))
	return *updated, nil
}

func (s *Service) ListInventoryEvents(ctx context.Context, productID string, limit int) ([]domain.InventoryEvent, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListInventoryEvents(ctx, productID, limit)
}

func (s *Service) ListCombos(ctx context.Context, includeInactive bool) ([]domain.Combo, error) {
	return s.repo.ListCombos(ctx, includeInactive)
}

func (s *Service) CreateCombo(ctx context.Context, req domain.ComboCreateRequest) (domain.Combo, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Combo{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Items) == 0 {
		return domain.Combo{}, store.ErrValidation
	}

	created, err := s.repo.CreateCombo(ctx, domain.Combo{Name: req.Name, Items: req.Items})
	if err != nil {
		return domain.Combo{}, err
	}
	s.logAudit(ctx, "combo_create", "combo", created.ID, fmt.Sprintf("name=%s,items=%d", created.Name, len(created.Items)))
	return *created, nil
}

func (s *Service) UpdateCombo(ctx context.Context, id string, req domain.ComboUpdateRequest) (domain.Combo, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Combo{}, err
	}

	existing, err := s.repo.GetComboByID(ctx, id)
	if err != nil {
		return domain.Combo{}, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Combo{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Items != nil {
		updated.Items = req.Items
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateCombo(ctx, updated)
	if err != nil {
		return domain.Combo{}, err
	}
	s.logAudit(ctx, "combo_update", "combo", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

// ComboPrice derives the live price of a combo from its current constituent
// prices; combos never carry a stored price of their own.
func (s *Service) ComboPrice(ctx context.Context, id string) (float64, error) {
	combo, err := s.repo.GetComboByID(ctx, id)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(combo.Items))
	for _, ci := range combo.Items {
		ids = append(ids, ci.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, ci := range combo.Items {
		p, ok := products[ci.ProductID]
		if !ok {
			return 0, fmt.Errorf("%w: combo constituent %s", store.ErrNotFound, ci.ProductID)
		}
		total += p.Price * float64(ci.Qty)
	}
	return money.Round2(total), nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Settings{}, err
	}
	saved, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "store", fmt.Sprintf("tax_enabled=%t,low_stock=%d", saved.TaxEnabled, saved.LowStockThreshold))
	return *saved, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	if err := requireManager(ctx); err != nil {
		return domain.CashierUser{}, err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 {
		return domain.CashierUser{}, store.ErrValidation
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		ID:        xid.New("user"),
		Username:  username,
		Password:  string(hash),
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.CashierUser{}, err
	}

	s.logAudit(ctx, "cashier_create", "user", account.ID, fmt.Sprintf("username=%s", username))
	return domain.CashierUser{
		ID:        account.ID,
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.CashierUser, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, domain.CashierUser{
			ID:        a.ID,
			Username:  a.Username,
			Role:      a.Role,
			Active:    a.Active,
			CreatedAt: a.CreatedAt,
		})
	}
	return users, nil
}

func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("authentication required")
	}
	if len(newPassword) < 8 {
		return store.ErrValidation
	}
	account, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(oldPassword)); err != nil {
		return fmt.Errorf("current password mismatch")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, actor.Username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, "password_change", "user", account.ID, "")
	return nil
}

func requireManager(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return ErrManagerRequired
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
