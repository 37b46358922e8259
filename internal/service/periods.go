package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finbook/backend/internal/model"
)

// GetPeriod resolves the canonical period for a (year, month) pair.
func (s *LedgerService) GetPeriod(ctx context.Context, year int, month time.Month) (*model.Period, error) {
	return s.store.GetPeriod(ctx, year, month)
}

// periodWithBalances resolves a period and requires at least one reported
// balance for the user in it. Reconciliation cannot proceed without the
// period's opening balances, so a bare period row is treated the same as a
// missing one.
func (s *LedgerService) periodWithBalances(ctx context.Context, userID string, year int, month time.Month) (*model.Period, error) {
	period, err := s.store.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, err
	}
	has, err := s.store.HasBalances(ctx, userID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check balances for %s: %w", period.ID, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: no balances recorded for %s", model.ErrPeriodNotFound, period.ID)
	}
	return period, nil
}

// Successor returns the period of the following calendar month, requiring
// the user to have balance data recorded in it. A missing successor is an
// expected condition, not a bug: it means the closing balance needed for
// reconciliation has not been entered yet.
func (s *LedgerService) Successor(ctx context.Context, userID string, period *model.Period) (*model.Period, error) {
	next := period.Next()
	return s.periodWithBalances(ctx, userID, next.Year, next.Month)
}

// Predecessor returns the period of the preceding calendar month, with the
// same balance-data requirement as Successor.
func (s *LedgerService) Predecessor(ctx context.Context, userID string, period *model.Period) (*model.Period, error) {
	prev := period.Prev()
	return s.periodWithBalances(ctx, userID, prev.Year, prev.Month)
}

// YearsWithBalances returns, in ascending order, every year for which the
// user has at least one reported balance. The UI uses this to bound the
// selectable input range.
func (s *LedgerService) YearsWithBalances(ctx context.Context, userID string) ([]int, error) {
	return s.store.YearsWithBalances(ctx, userID)
}
