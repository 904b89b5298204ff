package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

// Repository is the persistence contract for the POS engine. Mutating
// operations that touch a sale, its inventory events and product stock are
// atomic: either everything is applied or nothing is.
type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int, event domain.InventoryEvent) (*domain.Product, error)
	ListInventoryEvents(ctx context.Context, productID string, limit int) ([]domain.InventoryEvent, error)
	CountSoldSince(ctx context.Context, since time.Time) (map[string]int, error)

	ListCombos(ctx context.Context, includeInactive bool) ([]domain.Combo, error)
	GetComboByID(ctx context.Context, id string) (*domain.Combo, error)
	CreateCombo(ctx context.Context, combo domain.Combo) (*domain.Combo, error)
	UpdateCombo(ctx context.Context, combo domain.Combo) (*domain.Combo, error)

	// CreateSale assigns the receipt number, decrements stock for every line
	// and appends one SALE inventory event per line, all atomically.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	SumCashSales(ctx context.Context, since time.Time) (float64, error)

	// CreateReturn persists the return, restores stock, appends RETURN events
	// and moves the sale to newStatus, all atomically. CreateCancellation is
	// its mirror for the cancellation ledger.
	CreateReturn(ctx context.Context, ret domain.Return, newStatus string) (*domain.Return, error)
	CreateCancellation(ctx context.Context, pc domain.PaymentCancellation, newStatus string) (*domain.PaymentCancellation, error)
	ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error)
	ListCancellationsBySale(ctx context.Context, saleID string) ([]domain.PaymentCancellation, error)
	SumCashReturns(ctx context.Context, since time.Time) (float64, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, expectedCash, actualCash float64, closedAt time.Time) (*domain.Shift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.Shift, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	GetSettings(ctx context.Context) (*domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	ExportState(ctx context.Context) (*domain.StateSnapshot, error)
	ImportState(ctx context.Context, snapshot domain.StateSnapshot) error
}
