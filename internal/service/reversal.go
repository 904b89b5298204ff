package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// reversalKind selects which ledger a reversal writes to. Returns and
// payment cancellations run the same algorithm but keep independent
// cumulative cap pools.
type reversalKind int

const (
	kindReturn reversalKind = iota
	kindCancellation
)

func (k reversalKind) String() string {
	if k == kindCancellation {
		return "cancellation"
	}
	return "return"
}

type reversalOutcome struct {
	lines       []domain.ReversalLine
	total       float64
	newStatus   string
	priorByItem map[string]int
}

// ProcessReturn reverses sold quantities back into stock and refunds their
// prorated value. Manager only; the API layer additionally verifies the PIN.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReversalRequest) (domain.ReturnResponse, error) {
	outcome, err := s.computeReversal(ctx, kindReturn, req)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	actor, _ := ActorFromContext(ctx)

	ret := domain.Return{
		ID:            xid.New("ret"),
		SaleID:        req.SaleID,
		Items:         outcome.lines,
		RefundTotal:   outcome.total,
		RefundMethod:  strings.ToUpper(strings.TrimSpace(req.RefundMethod)),
		Reason:        strings.TrimSpace(req.Reason),
		ProcessedByID: actor.UserID,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreateReturn(ctx, ret, outcome.newStatus)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, "sale_return", "sale", req.SaleID,
		fmt.Sprintf("return=%s,refund=%.2f,method=%s,status=%s", created.ID, created.RefundTotal, created.RefundMethod, outcome.newStatus))
	return domain.ReturnResponse{Return: *created, SaleStatus: outcome.newStatus}, nil
}

// ProcessCancellation is the mirror operation for undoing the payment of
// sold items. It restores stock the same way but keeps its own cap pool and
// deliberately does not feed the shift's expected-cash figure.
func (s *Service) ProcessCancellation(ctx context.Context, req domain.ReversalRequest) (domain.CancellationResponse, error) {
	outcome, err := s.computeReversal(ctx, kindCancellation, req)
	if err != nil {
		return domain.CancellationResponse{}, err
	}
	actor, _ := ActorFromContext(ctx)

	pc := domain.PaymentCancellation{
		ID:                xid.New("pc"),
		SaleID:            req.SaleID,
		ItemsCancelled:    outcome.lines,
		CancellationTotal: outcome.total,
		RefundMethod:      strings.ToUpper(strings.TrimSpace(req.RefundMethod)),
		Reason:            strings.TrimSpace(req.Reason),
		ProcessedByID:     actor.UserID,
		CreatedAt:         time.Now().UTC(),
	}
	created, err := s.repo.CreateCancellation(ctx, pc, outcome.newStatus)
	if err != nil {
		return domain.CancellationResponse{}, err
	}

	s.logAudit(ctx, "sale_cancellation", "sale", req.SaleID,
		fmt.Sprintf("cancellation=%s,amount=%.2f,method=%s,status=%s", created.ID, created.CancellationTotal, created.RefundMethod, outcome.newStatus))
	return domain.CancellationResponse{Cancellation: *created, SaleStatus: outcome.newStatus}, nil
}

func (s *Service) computeReversal(ctx context.Context, kind reversalKind, req domain.ReversalRequest) (reversalOutcome, error) {
	if err := requireManager(ctx); err != nil {
		return reversalOutcome{}, err
	}
	if req.SaleID == "" || len(req.Items) == 0 {
		return reversalOutcome{}, store.ErrValidation
	}
	method := strings.ToUpper(strings.TrimSpace(req.RefundMethod))
	if method != domain.RefundMethodCash && method != domain.RefundMethodCard {
		return reversalOutcome{}, fmt.Errorf("%w: refund method %q", store.ErrValidation, req.RefundMethod)
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return reversalOutcome{}, err
	}
	if err := checkReversalStatus(sale.Status); err != nil {
		return reversalOutcome{}, err
	}

	prior, err := s.priorReversedQty(ctx, kind, req.SaleID)
	if err != nil {
		return reversalOutcome{}, err
	}

	purchased := make(map[string]domain.CartItem, len(sale.Items))
	for _, item := range sale.Items {
		purchased[item.ProductID] = item
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return reversalOutcome{}, err
	}
	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return reversalOutcome{}, err
	}

	seen := make(map[string]bool, len(req.Items))
	lines := make([]domain.ReversalLine, 0, len(req.Items))
	total := 0.0
	for _, line := range req.Items {
		if line.Qty < 1 {
			return reversalOutcome{}, store.ErrValidation
		}
		if seen[line.ProductID] {
			return reversalOutcome{}, fmt.Errorf("%w: duplicate line %s", store.ErrValidation, line.ProductID)
		}
		seen[line.ProductID] = true

		item, ok := purchased[line.ProductID]
		if !ok {
			return reversalOutcome{}, fmt.Errorf("%w: product %s not on sale %s", store.ErrValidation, line.ProductID, sale.ID)
		}
		// Over-reversal is rejected outright, never clamped.
		if prior[line.ProductID]+line.Qty > item.Qty {
			return reversalOutcome{}, fmt.Errorf("%w: product %s has %d remaining", ErrReversalExceedsRemaining, line.ProductID, item.Qty-prior[line.ProductID])
		}

		// The line discount is prorated by the reversed share of the
		// original quantity.
		proratedDiscount := item.DiscountAmount * float64(line.Qty) / float64(item.Qty)
		lineAmount := item.UnitPrice*float64(line.Qty) - proratedDiscount
		if settings.TaxEnabled {
			if p, ok := products[line.ProductID]; ok {
				lineAmount += lineAmount * p.TaxRate
			}
		}
		total += lineAmount
		lines = append(lines, domain.ReversalLine{ProductID: line.ProductID, Qty: line.Qty})
	}

	newStatus := nextStatus(kind, sale.Items, prior, lines)
	return reversalOutcome{
		lines:       lines,
		total:       money.Round2(total),
		newStatus:   newStatus,
		priorByItem: prior,
	}, nil
}

// checkReversalStatus rejects reversals only on terminal sales. A partially
// refunded sale still accepts cancellations and vice versa; each kind caps
// quantities against its own prior records only.
func checkReversalStatus(status string) error {
	if domain.SaleStatusTerminal(status) {
		return fmt.Errorf("%w: sale is %s", ErrSaleClosed, status)
	}
	return nil
}

func (s *Service) priorReversedQty(ctx context.Context, kind reversalKind, saleID string) (map[string]int, error) {
	prior := make(map[string]int)
	switch kind {
	case kindReturn:
		returns, err := s.repo.ListReturnsBySale(ctx, saleID)
		if err != nil {
			return nil, err
		}
		for _, ret := range returns {
			for _, line := range ret.Items {
				prior[line.ProductID] += line.Qty
			}
		}
	case kindCancellation:
		cancellations, err := s.repo.ListCancellationsBySale(ctx, saleID)
		if err != nil {
			return nil, err
		}
		for _, pc := range cancellations {
			for _, line := range pc.ItemsCancelled {
				prior[line.ProductID] += line.Qty
			}
		}
	}
	return prior, nil
}

func nextStatus(kind reversalKind, saleItems []domain.CartItem, prior map[string]int, lines []domain.ReversalLine) string {
	adding := make(map[string]int, len(lines))
	for _, line := range lines {
		adding[line.ProductID] = line.Qty
	}
	full := true
	for _, item := range saleItems {
		if prior[item.ProductID]+adding[item.ProductID] < item.Qty {
			full = false
			break
		}
	}
	switch {
	case kind == kindReturn && full:
		return domain.SaleStatusRefunded
	case kind == kindReturn:
		return domain.SaleStatusPartialRefund
	case full:
		return domain.SaleStatusCancelled
	default:
		return domain.SaleStatusPartialCancelled
	}
}

// RemainingReversableQty reports, per product, how many units of a sale can
// still be reversed under the given kind's cumulative cap.
func (s *Service) RemainingReversableQty(ctx context.Context, saleID string, asCancellation bool) (domain.RemainingQtyResponse, error) {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.RemainingQtyResponse{}, err
	}
	kind := kindReturn
	if asCancellation {
		kind = kindCancellation
	}
	prior, err := s.priorReversedQty(ctx, kind, saleID)
	if err != nil {
		return domain.RemainingQtyResponse{}, err
	}

	resp := domain.RemainingQtyResponse{SaleID: saleID}
	for _, item := range sale.Items {
		remaining := item.Qty - prior[item.ProductID]
		if remaining < 0 {
			remaining = 0
		}
		resp.Items = append(resp.Items, domain.ReversalLine{ProductID: item.ProductID, Qty: remaining})
	}
	return resp, nil
}
