package domain

import "time"

type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Barcode     string    `json:"barcode,omitempty"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Cost        float64   `json:"cost"`
	TaxRate     float64   `json:"tax_rate"`
	StockQty    int       `json:"stock_qty"`
	Active      bool      `json:"active"`
	ShortcutKey *int      `json:"shortcut_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU          string  `json:"sku"`
	Barcode      string  `json:"barcode,omitempty"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Cost         float64 `json:"cost"`
	TaxRate      float64 `json:"tax_rate"`
	InitialStock int     `json:"initial_stock"`
	ShortcutKey  *int    `json:"shortcut_key,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string  `json:"name,omitempty"`
	Barcode     *string  `json:"barcode,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	TaxRate     *float64 `json:"tax_rate,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	ShortcutKey *int     `json:"shortcut_key,omitempty"`
}

type ComboItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Combo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Items     []ComboItem `json:"items"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ComboCreateRequest struct {
	Name  string      `json:"name"`
	Items []ComboItem `json:"items"`
}

type ComboUpdateRequest struct {
	Name   *string     `json:"name,omitempty"`
	Items  []ComboItem `json:"items,omitempty"`
	Active *bool       `json:"active,omitempty"`
}

// CartItem is one sale line; UnitPrice and DiscountAmount are captured at
// add time and do not track later catalog changes.
type CartItem struct {
	ProductID      string  `json:"product_id"`
	Qty            int     `json:"qty"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountAmount float64 `json:"discount_amount"`
}

// Payments records the amounts applied to the sale per method. Cash is net
// of change due, so Cash+Card always equals the grand total.
type Payments struct {
	Cash float64 `json:"cash,omitempty"`
	Card float64 `json:"card,omitempty"`
}

type Sale struct {
	ID            string     `json:"id"`
	ReceiptNo     string     `json:"receipt_no"`
	CashierUserID string     `json:"cashier_user_id"`
	ShiftID       string     `json:"shift_id"`
	Items         []CartItem `json:"items"`
	SubTotal      float64    `json:"sub_total"`
	DiscountTotal float64    `json:"discount_total"`
	TaxTotal      float64    `json:"tax_total"`
	GrandTotal    float64    `json:"grand_total"`
	Payments      Payments   `json:"payments"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ReversalLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Return struct {
	ID            string         `json:"id"`
	SaleID        string         `json:"sale_id"`
	Items         []ReversalLine `json:"items"`
	RefundTotal   float64        `json:"refund_total"`
	RefundMethod  string         `json:"refund_method"`
	Reason        string         `json:"reason"`
	ProcessedByID string         `json:"processed_by_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

type PaymentCancellation struct {
	ID                string         `json:"id"`
	SaleID            string         `json:"sale_id"`
	ItemsCancelled    []ReversalLine `json:"items_cancelled"`
	CancellationTotal float64        `json:"cancellation_total"`
	RefundMethod      string         `json:"refund_method"`
	Reason            string         `json:"reason"`
	ProcessedByID     string         `json:"processed_by_id"`
	CreatedAt         time.Time      `json:"created_at"`
}

type Shift struct {
	ID           string     `json:"id"`
	OpenedByID   string     `json:"opened_by_id"`
	StartingCash float64    `json:"starting_cash"`
	ExpectedCash float64    `json:"expected_cash"`
	ActualCash   *float64   `json:"actual_cash,omitempty"`
	Variance     *float64   `json:"variance,omitempty"`
	Status       string     `json:"status"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type InventoryEvent struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"type"`
	QtyDelta  int       `json:"qty_delta"`
	RefID     string    `json:"ref_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Settings struct {
	StoreName         string  `json:"store_name"`
	Currency          string  `json:"currency"`
	TaxEnabled        bool    `json:"tax_enabled"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	DiscountGateRate  float64 `json:"discount_gate_rate"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type SessionResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Shift    *Shift `json:"shift,omitempty"`
}

type CartLineRequest struct {
	ProductID      string  `json:"product_id"`
	Qty            int     `json:"qty"`
	DiscountAmount float64 `json:"discount_amount"`
}

type ComboLineRequest struct {
	ComboID string `json:"combo_id"`
	Qty     int    `json:"qty"`
}

type CartPreviewRequest struct {
	Items  []CartLineRequest  `json:"items"`
	Combos []ComboLineRequest `json:"combos,omitempty"`
}

type CartPreviewResponse struct {
	Items          []CartItem `json:"items"`
	SubTotal       float64    `json:"sub_total"`
	DiscountTotal  float64    `json:"discount_total"`
	TaxTotal       float64    `json:"tax_total"`
	GrandTotal     float64    `json:"grand_total"`
	DiscountRate   float64    `json:"discount_rate"`
	ManagerNeeded  bool       `json:"manager_needed"`
	LowStockAlerts []string   `json:"low_stock_alerts,omitempty"`
}

type CheckoutRequest struct {
	Items        []CartLineRequest  `json:"items"`
	Combos       []ComboLineRequest `json:"combos,omitempty"`
	CashReceived float64            `json:"cash_received"`
	CardAmount   float64            `json:"card_amount"`
}

type CheckoutResponse struct {
	Sale      Sale    `json:"sale"`
	ChangeDue float64 `json:"change_due"`
}

type ReversalRequest struct {
	SaleID       string         `json:"sale_id"`
	Items        []ReversalLine `json:"items"`
	RefundMethod string         `json:"refund_method"`
	Reason       string         `json:"reason"`
	ManagerPIN   string         `json:"manager_pin"`
}

type ReturnResponse struct {
	Return     Return `json:"return"`
	SaleStatus string `json:"sale_status"`
}

type CancellationResponse struct {
	Cancellation PaymentCancellation `json:"cancellation"`
	SaleStatus   string              `json:"sale_status"`
}

type RemainingQtyResponse struct {
	SaleID string         `json:"sale_id"`
	Items  []ReversalLine `json:"items"`
}

type ShiftOpenRequest struct {
	StartingCash float64 `json:"starting_cash"`
}

type ShiftCloseRequest struct {
	ActualCash float64 `json:"actual_cash"`
	Notes      string  `json:"notes,omitempty"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	QtyDelta  int    `json:"qty_delta"`
	Note      string `json:"note"`
}

type LowStockAlert struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	StockQty       int    `json:"stock_qty"`
	Threshold      int    `json:"threshold"`
	SoldLast7Days  int    `json:"sold_last_7_days"`
	SuggestedOrder int    `json:"suggested_order"`
}

type LowStockResponse struct {
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// StateSnapshot is the full interchange payload for export/import.
type StateSnapshot struct {
	Products        []Product             `json:"products"`
	Combos          []Combo               `json:"combos"`
	Sales           []Sale                `json:"sales"`
	Returns         []Return              `json:"returns"`
	Cancellations   []PaymentCancellation `json:"cancellations"`
	Shifts          []Shift               `json:"shifts"`
	InventoryEvents []InventoryEvent      `json:"inventory_events"`
	AuditLogs       []AuditLog            `json:"audit_logs"`
	Settings        Settings              `json:"settings"`
	ReceiptCounter  int                   `json:"receipt_counter"`
	ExportedAt      string                `json:"exported_at"`
}

const (
	SaleStatusPaid             = "PAID"
	SaleStatusPartialRefund    = "PARTIAL_REFUND"
	SaleStatusRefunded         = "REFUNDED"
	SaleStatusPartialCancelled = "PARTIAL_CANCELLED"
	SaleStatusCancelled        = "CANCELLED"
)

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	InventoryEventSale         = "SALE"
	InventoryEventReturn       = "RETURN"
	InventoryEventCancellation = "CANCELLATION"
	InventoryEventManualAdjust = "MANUAL_ADJUST"
)

const (
	RefundMethodCash = "CASH"
	RefundMethodCard = "CARD"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
)

// SaleStatusTerminal reports whether a sale can accept further reversals.
func SaleStatusTerminal(status string) bool {
	return status == SaleStatusRefunded || status == SaleStatusCancelled
}
