package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finbook/backend/internal/model"
	"github.com/finbook/backend/internal/money"
)

// EstimateResult is the outcome of materializing a period's shortfall.
// TransactionID is empty when the period reconciled as balanced.
type EstimateResult struct {
	TransactionID string
	Status        model.SummaryStatus
}

// Estimate computes the period's reconciliation summary and materializes
// the shortfall as the period's single estimated transaction.
//
// A balanced period only cleans up: any previous estimate is removed and no
// new row is written. Otherwise the store atomically deletes the existing
// estimate and inserts a fresh row, so re-estimating always reflects the
// latest inputs and two concurrent calls cannot both leave a row behind.
// Editing balances after estimating does NOT recompute or flag the existing
// estimate; re-estimation is a deliberate user action.
func (s *LedgerService) Estimate(ctx context.Context, userID string, year int, month time.Month) (*EstimateResult, error) {
	summary, err := s.ComputeSummary(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}

	if summary.Status == model.StatusBalanced {
		if err := s.store.DeleteEstimatedTransaction(ctx, userID, summary.Period.ID); err != nil {
			return nil, fmt.Errorf("failed to clean up estimate: %w", err)
		}
		s.cache.Invalidate(userID)
		return &EstimateResult{Status: model.StatusBalanced}, nil
	}

	amount := money.Round(summary.ShortfallAmount, s.primaryCurrency(ctx, userID))
	now := time.Now()
	tx := &model.Transaction{
		ID:          model.EstimatedTransactionID(userID, summary.Period.ID),
		UserID:      userID,
		Amount:      amount,
		Flow:        summary.ShortfallFlow,
		PeriodID:    summary.Period.ID,
		Category:    model.EstimatedCategory,
		IsEstimated: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.ReplaceEstimatedTransaction(ctx, userID, summary.Period.ID, tx); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("period_id", summary.Period.ID).
		Str("status", string(summary.Status)).
		Str("amount", amount.String()).
		Msg("estimated transaction materialized")
	s.cache.Invalidate(userID)
	return &EstimateResult{TransactionID: tx.ID, Status: summary.Status}, nil
}

// DeleteEstimate removes an estimated transaction, reverting its period to
// the unestimated state. It does not re-check whether the period is still
// unbalanced. A real (non-estimated) transaction is never deleted through
// this path.
func (s *LedgerService) DeleteEstimate(ctx context.Context, userID, txID string) error {
	tx, err := s.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		return err
	}
	if !tx.IsEstimated {
		return fmt.Errorf("%w: transaction %s is not an estimate", model.ErrNotFound, txID)
	}
	if err := s.store.DeleteTransaction(ctx, userID, txID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// primaryCurrency picks the currency the estimate is denominated in: the
// first saving account in display order, falling back to the first account,
// then to EUR when the user has no accounts at all.
func (s *LedgerService) primaryCurrency(ctx context.Context, userID string) string {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil || len(accounts) == 0 {
		return "EUR"
	}
	for _, account := range accounts {
		if account.Category == model.CategorySaving && account.Currency != "" {
			return account.Currency
		}
	}
	return accounts[0].Currency
}
