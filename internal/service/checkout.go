package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tillpoint/backend/internal/cart"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// buildCart replays the client's line and combo requests through the cart
// engine so stock limits, combo expansion and discount clamping are enforced
// server-side against the current catalog, whatever the client claims.
func (s *Service) buildCart(ctx context.Context, lines []domain.CartLineRequest, combos []domain.ComboLineRequest) (*cart.Cart, map[string]domain.Product, error) {
	if len(lines) == 0 && len(combos) == 0 {
		return nil, nil, store.ErrValidation
	}

	resolved := make([]domain.Combo, 0, len(combos))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	for _, cl := range combos {
		if cl.Qty < 1 {
			return nil, nil, fmt.Errorf("%w: combo qty must be at least 1", store.ErrValidation)
		}
		combo, err := s.repo.GetComboByID(ctx, cl.ComboID)
		if err != nil {
			return nil, nil, err
		}
		for _, ci := range combo.Items {
			ids = append(ids, ci.ProductID)
		}
		resolved = append(resolved, *combo)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	c := cart.New()
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, l.ProductID)
		}
		if err := c.AddItem(p, l.Qty); err != nil {
			return nil, nil, mapCartErr(err)
		}
		if l.DiscountAmount != 0 {
			if err := c.UpdateLine(p.ID, c.Qty(p.ID), l.DiscountAmount, p); err != nil {
				return nil, nil, mapCartErr(err)
			}
		}
	}
	for i, combo := range resolved {
		for n := 0; n < combos[i].Qty; n++ {
			if err := c.AddCombo(combo, products); err != nil {
				return nil, nil, mapCartErr(err)
			}
		}
	}
	return c, products, nil
}

func mapCartErr(err error) error {
	switch {
	case errors.Is(err, cart.ErrOutOfStock), errors.Is(err, cart.ErrInsufficientStock):
		return fmt.Errorf("%w: %v", store.ErrInsufficientStock, err)
	case errors.Is(err, cart.ErrProductInactive), errors.Is(err, cart.ErrInvalidQty), errors.Is(err, cart.ErrLineNotFound):
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	default:
		return err
	}
}

// PreviewCart computes totals, change requirements and the discount gate
// verdict without touching any state.
func (s *Service) PreviewCart(ctx context.Context, req domain.CartPreviewRequest) (domain.CartPreviewResponse, error) {
	actor, _ := ActorFromContext(ctx)

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.CartPreviewResponse{}, err
	}
	c, products, err := s.buildCart(ctx, req.Items, req.Combos)
	if err != nil {
		return domain.CartPreviewResponse{}, err
	}

	totals := c.ComputeTotals(products, settings.TaxEnabled)
	resp := domain.CartPreviewResponse{
		Items:         c.Lines(),
		SubTotal:      money.Round2(totals.SubTotal),
		DiscountTotal: money.Round2(totals.DiscountTotal),
		TaxTotal:      money.Round2(totals.TaxTotal),
		GrandTotal:    money.Round2(totals.GrandTotal),
		DiscountRate:  totals.DiscountRate(),
		ManagerNeeded: totals.NeedsManager(settings.DiscountGateRate) && actor.Role != domain.RoleManager,
	}
	for _, l := range c.Lines() {
		p := products[l.ProductID]
		if p.StockQty-l.Qty <= settings.LowStockThreshold {
			resp.LowStockAlerts = append(resp.LowStockAlerts, p.SKU)
		}
	}
	return resp, nil
}

// Checkout finalizes a sale: an open shift is required, totals are recomputed
// server-side, the discount gate is enforced against the acting role, payment
// must cover the grand total, and the store applies the sale plus its stock
// movements atomically.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, fmt.Errorf("authentication required")
	}

	shift, err := s.repo.GetActiveShift(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, ErrNoOpenShift
		}
		return domain.CheckoutResponse{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	c, products, err := s.buildCart(ctx, req.Items, req.Combos)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	totals := c.ComputeTotals(products, settings.TaxEnabled)
	if totals.NeedsManager(settings.DiscountGateRate) && actor.Role != domain.RoleManager {
		return domain.CheckoutResponse{}, ErrDiscountPolicy
	}

	grandTotal := money.Round2(totals.GrandTotal)
	if !validAmount(req.CashReceived) || !validAmount(req.CardAmount) {
		return domain.CheckoutResponse{}, store.ErrValidation
	}
	card := money.Round2(req.CardAmount)
	if card > grandTotal {
		return domain.CheckoutResponse{}, store.ErrValidation
	}
	cashDue := money.Round2(grandTotal - card)
	cashReceived := money.Round2(req.CashReceived)
	if cashReceived < cashDue {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: received %.2f, due %.2f", ErrInsufficientPayment, cashReceived, cashDue)
	}
	changeDue := money.Round2(cashReceived - cashDue)

	sale := domain.Sale{
		ID:            xid.New("sale"),
		CashierUserID: actor.UserID,
		ShiftID:       shift.ID,
		Items:         c.Lines(),
		SubTotal:      money.Round2(totals.SubTotal),
		DiscountTotal: money.Round2(totals.DiscountTotal),
		TaxTotal:      money.Round2(totals.TaxTotal),
		GrandTotal:    grandTotal,
		Payments:      domain.Payments{Cash: cashDue, Card: card},
		Status:        domain.SaleStatusPaid,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "sale_finalize", "sale", created.ID,
		fmt.Sprintf("receipt=%s,total=%.2f,cash=%.2f,card=%.2f", created.ReceiptNo, created.GrandTotal, created.Payments.Cash, created.Payments.Card))
	return domain.CheckoutResponse{Sale: *created, ChangeDue: changeDue}, nil
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
