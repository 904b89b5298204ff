package service

import (
	"context"
	"fmt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/store"
)

func (s *Service) ExportState(ctx context.Context) (domain.StateSnapshot, error) {
	if err := requireManager(ctx); err != nil {
		return domain.StateSnapshot{}, err
	}
	snap, err := s.repo.ExportState(ctx)
	if err != nil {
		return domain.StateSnapshot{}, err
	}
	s.logAudit(ctx, "state_export", "state", "snapshot", fmt.Sprintf("sales=%d,products=%d", len(snap.Sales), len(snap.Products)))
	return *snap, nil
}

// ImportState validates a snapshot against the engine's invariants before
// swapping it in; a snapshot that fails any check is rejected wholesale.
func (s *Service) ImportState(ctx context.Context, snap domain.StateSnapshot) error {
	if err := requireManager(ctx); err != nil {
		return err
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	if err := s.repo.ImportState(ctx, snap); err != nil {
		return err
	}
	s.logAudit(ctx, "state_import", "state", "snapshot", fmt.Sprintf("sales=%d,products=%d", len(snap.Sales), len(snap.Products)))
	return nil
}

func validateSnapshot(snap domain.StateSnapshot) error {
	productIDs := make(map[string]bool, len(snap.Products))
	for _, p := range snap.Products {
		if p.ID == "" || p.SKU == "" {
			return fmt.Errorf("%w: product missing id or sku", store.ErrValidation)
		}
		if p.StockQty < 0 {
			return fmt.Errorf("%w: product %s has negative stock", store.ErrValidation, p.SKU)
		}
		productIDs[p.ID] = true
	}

	validStatus := map[string]bool{
		domain.SaleStatusPaid:             true,
		domain.SaleStatusPartialRefund:    true,
		domain.SaleStatusRefunded:         true,
		domain.SaleStatusPartialCancelled: true,
		domain.SaleStatusCancelled:        true,
	}
	salesByID := make(map[string]domain.Sale, len(snap.Sales))
	for _, sale := range snap.Sales {
		if len(sale.Items) == 0 {
			return fmt.Errorf("%w: sale %s has no items", store.ErrValidation, sale.ID)
		}
		if !validStatus[sale.Status] {
			return fmt.Errorf("%w: sale %s has status %q", store.ErrValidation, sale.ID, sale.Status)
		}
		lineSum, discountSum := 0.0, 0.0
		for _, item := range sale.Items {
			if item.Qty < 1 {
				return fmt.Errorf("%w: sale %s has non-positive qty", store.ErrValidation, sale.ID)
			}
			lineSum += item.UnitPrice*float64(item.Qty) - item.DiscountAmount
			discountSum += item.DiscountAmount
		}
		if !money.Equal(lineSum, sale.SubTotal) {
			return fmt.Errorf("%w: sale %s subtotal does not match its lines", store.ErrValidation, sale.ID)
		}
		if !money.Equal(discountSum, sale.DiscountTotal) {
			return fmt.Errorf("%w: sale %s discount total does not match its lines", store.ErrValidation, sale.ID)
		}
		if !money.Equal(sale.SubTotal+sale.TaxTotal, sale.GrandTotal) {
			return fmt.Errorf("%w: sale %s grand total is not subtotal+tax", store.ErrValidation, sale.ID)
		}
		salesByID[sale.ID] = sale
	}

	// Cumulative reversal caps hold per kind independently.
	if err := checkCap(salesByID, reversalQtyFromReturns(snap.Returns), "returns"); err != nil {
		return err
	}
	if err := checkCap(salesByID, reversalQtyFromCancellations(snap.Cancellations), "cancellations"); err != nil {
		return err
	}

	openShifts := 0
	for _, shift := range snap.Shifts {
		switch shift.Status {
		case domain.ShiftStatusOpen:
			openShifts++
		case domain.ShiftStatusClosed:
		default:
			return fmt.Errorf("%w: shift %s has status %q", store.ErrValidation, shift.ID, shift.Status)
		}
		if shift.StartingCash < 0 {
			return fmt.Errorf("%w: shift %s has negative starting cash", store.ErrValidation, shift.ID)
		}
	}
	if openShifts > 1 {
		return fmt.Errorf("%w: %d open shifts in snapshot", store.ErrValidation, openShifts)
	}

	deltaByProduct := make(map[string]int, len(snap.Products))
	for _, ev := range snap.InventoryEvents {
		if !productIDs[ev.ProductID] {
			return fmt.Errorf("%w: inventory event %s references unknown product", store.ErrValidation, ev.ID)
		}
		deltaByProduct[ev.ProductID] += ev.QtyDelta
	}
	// Stock conservation: every product's quantity must equal the sum of its
	// ledger deltas (opening stock is itself a ledger event).
	for _, p := range snap.Products {
		if deltaByProduct[p.ID] != p.StockQty {
			return fmt.Errorf("%w: product %s stock %d contradicts its ledger sum %d", store.ErrValidation, p.SKU, p.StockQty, deltaByProduct[p.ID])
		}
	}
	return nil
}

func reversalQtyFromReturns(returns []domain.Return) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, ret := range returns {
		if out[ret.SaleID] == nil {
			out[ret.SaleID] = make(map[string]int)
		}
		for _, line := range ret.Items {
			out[ret.SaleID][line.ProductID] += line.Qty
		}
	}
	return out
}

func reversalQtyFromCancellations(cancellations []domain.PaymentCancellation) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, pc := range cancellations {
		if out[pc.SaleID] == nil {
			out[pc.SaleID] = make(map[string]int)
		}
		for _, line := range pc.ItemsCancelled {
			out[pc.SaleID][line.ProductID] += line.Qty
		}
	}
	return out
}

func checkCap(salesByID map[string]domain.Sale, reversed map[string]map[string]int, label string) error {
	for saleID, byProduct := range reversed {
		sale, ok := salesByID[saleID]
		if !ok {
			return fmt.Errorf("%w: %s reference unknown sale %s", store.ErrValidation, label, saleID)
		}
		purchased := make(map[string]int, len(sale.Items))
		for _, item := range sale.Items {
			purchased[item.ProductID] = item.Qty
		}
		for productID, qty := range byProduct {
			if qty > purchased[productID] {
				return fmt.Errorf("%w: %s exceed purchased qty on sale %s product %s", store.ErrValidation, label, saleID, productID)
			}
		}
	}
	return nil
}
