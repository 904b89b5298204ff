package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Shift{}, fmt.Errorf("authentication required")
	}
	if !validAmount(req.StartingCash) {
		return domain.Shift{}, store.ErrValidation
	}

	shift := domain.Shift{
		ID:           xid.New("shift"),
		OpenedByID:   actor.UserID,
		StartingCash: money.Round2(req.StartingCash),
		OpenedAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Shift{}, ErrShiftAlreadyOpen
		}
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_open", "shift", created.ID, fmt.Sprintf("starting_cash=%.2f", created.StartingCash))
	return *created, nil
}

// CloseShift reconciles the drawer. Expected cash is recomputed at close
// time from the shift window: starting cash plus cash taken on sales minus
// cash paid out on returns. Payment cancellations do not reduce the figure;
// their payout is reconciled outside the drawer count.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Shift{}, err
	}
	if !validAmount(req.ActualCash) {
		return domain.Shift{}, store.ErrValidation
	}

	active, err := s.repo.GetActiveShift(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Shift{}, ErrNoOpenShift
		}
		return domain.Shift{}, err
	}

	cashSales, err := s.repo.SumCashSales(ctx, active.OpenedAt)
	if err != nil {
		return domain.Shift{}, err
	}
	cashReturns, err := s.repo.SumCashReturns(ctx, active.OpenedAt)
	if err != nil {
		return domain.Shift{}, err
	}

	expected := money.Round2(active.StartingCash + cashSales - cashReturns)
	actual := money.Round2(req.ActualCash)
	closed, err := s.repo.CloseActiveShift(ctx, expected, actual, time.Now().UTC())
	if err != nil {
		return domain.Shift{}, err
	}

	variance := 0.0
	if closed.Variance != nil {
		variance = *closed.Variance
	}
	s.logAudit(ctx, "shift_close", "shift", closed.ID,
		fmt.Sprintf("expected=%.2f,actual=%.2f,variance=%.2f,notes=%s", expected, actual, variance, req.Notes))
	return *closed, nil
}

// CurrentShift returns the open shift, or nil when the register is closed.
func (s *Service) CurrentShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := s.repo.GetActiveShift(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return shift, nil
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListShifts(ctx, limit)
}
