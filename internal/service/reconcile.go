package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finbook/backend/internal/model"
	"github.com/shopspring/decimal"
)

// epsilon absorbs rounding noise when comparing expected against recorded
// expenses: differences of at most one cent count as balanced.
var epsilon = decimal.New(1, -2) // 0.01

// ComputeSummary reconciles a period against its successor.
//
// The reported saving balances of period n and n+1 bracket the month's cash
// flow: whatever income entered and was not spent must show up as savings
// growth. Expenses the recorded transactions cannot account for surface as
// a positive diff (unrecorded expenses); savings growth the recorded income
// cannot explain surfaces as a negative diff (unrecorded income).
// Investment flows are excluded so market-driven portfolio movement never
// masquerades as cash flow; their sum is reported for visibility only.
//
// The summary is recomputed from persisted rows on every call and must not
// be cached across mutating writes.
func (s *LedgerService) ComputeSummary(ctx context.Context, userID string, year int, month time.Month) (*model.Summary, error) {
	period, err := s.periodWithBalances(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}
	next, err := s.Successor(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	savingCurrent, err := s.OpeningBalance(ctx, userID, period.ID, model.CategorySaving)
	if err != nil {
		return nil, err
	}
	savingNext, err := s.OpeningBalance(ctx, userID, next.ID, model.CategorySaving)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.SumFlows(ctx, userID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions for %s: %w", period.ID, err)
	}

	// expected_expenses = saving_open(n) - saving_open(n+1) + real_income(n)
	expectedExpenses := savingCurrent.Sub(savingNext).Add(totals.RealIncome)
	diff := expectedExpenses.Sub(totals.RealExpenses)

	summary := &model.Summary{
		Period: period,
		Details: model.SummaryDetails{
			RealIncome:           totals.RealIncome,
			RealExpenses:         totals.RealExpenses,
			RealInvestments:      totals.RealInvestments,
			EstimatedIncome:      totals.EstimatedIncome,
			EstimatedExpenses:    totals.EstimatedExpenses,
			EstimatedInvestments: totals.EstimatedInvestments,
			SavingsCurrent:       savingCurrent,
			SavingsNext:          savingNext,
		},
	}

	switch {
	case diff.GreaterThan(epsilon):
		summary.Status = model.StatusMissingExpenses
		summary.ShortfallFlow = model.FlowExpense
		summary.ShortfallAmount = diff
	case diff.LessThan(epsilon.Neg()):
		summary.Status = model.StatusMissingIncome
		summary.ShortfallFlow = model.FlowIncome
		summary.ShortfallAmount = diff.Neg()
	default:
		summary.Status = model.StatusBalanced
		summary.ShortfallAmount = decimal.Zero
	}
	return summary, nil
}
