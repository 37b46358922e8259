package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finbook/backend/internal/model"
	"github.com/shopspring/decimal"
)

// BalanceInput carries one reported account balance for a period. The
// period is created on demand: entering a balance is one of the two events
// that bring a period into existence.
type BalanceInput struct {
	AccountID string
	Year      int
	Month     time.Month
	Reported  decimal.Decimal
}

// UpsertBalance records (or replaces) the reported balance of an account
// for a period. Uniqueness per (account, period) holds at all times; a
// second entry for the same pair overwrites the first.
func (s *LedgerService) UpsertBalance(ctx context.Context, userID string, in BalanceInput) (*model.AccountBalance, error) {
	if _, err := s.store.GetAccount(ctx, userID, in.AccountID); err != nil {
		return nil, err
	}

	period, err := s.store.EnsurePeriod(ctx, in.Year, in.Month)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	balance := &model.AccountBalance{
		UserID:    userID,
		AccountID: in.AccountID,
		PeriodID:  period.ID,
		Reported:  in.Reported,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.UpsertBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to upsert balance: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("account_id", in.AccountID).
		Str("period_id", period.ID).
		Str("reported", in.Reported.String()).
		Msg("balance recorded")
	s.cache.Invalidate(userID)
	return balance, nil
}

// DeleteBalance removes one reported balance row.
func (s *LedgerService) DeleteBalance(ctx context.Context, userID, balanceID string) error {
	if err := s.store.DeleteBalance(ctx, userID, balanceID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// ListBalances returns the user's reported balances, optionally narrowed to
// one period.
func (s *LedgerService) ListBalances(ctx context.Context, userID, periodID string) ([]*model.AccountBalance, error) {
	return s.store.ListBalances(ctx, userID, periodID)
}

// OpeningBalance sums the reported balances of the user's accounts of the
// given category in the period. No matching balances is a valid "nothing
// saved yet" state and yields zero, unlike a missing period, which is an
// error at resolution time.
func (s *LedgerService) OpeningBalance(ctx context.Context, userID, periodID string, category model.AccountCategory) (decimal.Decimal, error) {
	balances, err := s.store.ListBalances(ctx, userID, periodID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list balances: %w", err)
	}
	if len(balances) == 0 {
		return decimal.Zero, nil
	}

	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list accounts: %w", err)
	}
	inCategory := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		if account.Category == category {
			inCategory[account.ID] = true
		}
	}

	total := decimal.Zero
	for _, balance := range balances {
		if inCategory[balance.AccountID] {
			total = total.Add(balance.Reported)
		}
	}
	return total, nil
}
