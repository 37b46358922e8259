package service

import (
	"context"
	"testing"
	"time"

	"github.com/finbook/backend/internal/cache"
	"github.com/finbook/backend/internal/model"
	"github.com/finbook/backend/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newTestService builds a LedgerService on a fresh in-memory store.
func newTestService() (*LedgerService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewLedgerService(st, cache.New(time.Minute), zerolog.Nop()), st
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// seedSavingAccount creates one saving account for the user.
func seedSavingAccount(t *testing.T, svc *LedgerService, userID string) *model.Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), userID, AccountInput{
		Name:     "Main savings",
		Category: model.CategorySaving,
		Currency: "EUR",
	})
	require.NoError(t, err)
	return account
}

// seedMonth records the saving balance opening a month plus the month's
// income and expense transactions. Balances anchor the month and the next
// one, so callers seeding month n must also seed the balance for n+1 (a
// later seedMonth call, or seedBalance directly).
func seedBalance(t *testing.T, svc *LedgerService, userID, accountID string, year int, month time.Month, reported string) {
	t.Helper()
	_, err := svc.UpsertBalance(context.Background(), userID, BalanceInput{
		AccountID: accountID,
		Year:      year,
		Month:     month,
		Reported:  dec(t, reported),
	})
	require.NoError(t, err)
}

func seedTransaction(t *testing.T, svc *LedgerService, userID string, flow model.FlowType, year int, month time.Month, amount string) *model.Transaction {
	t.Helper()
	tx, err := svc.CreateTransaction(context.Background(), userID, TransactionInput{
		Amount: dec(t, amount),
		Flow:   flow,
		Year:   year,
		Month:  month,
	})
	require.NoError(t, err)
	return tx
}

// seedReconcilableMonth sets up March 2025 for reconciliation: the saving
// balance opening March and April, plus March's recorded income and
// expenses. Returns the saving account.
func seedReconcilableMonth(t *testing.T, svc *LedgerService, userID, savingOpen, savingNext, income, expenses string) *model.Account {
	t.Helper()
	account := seedSavingAccount(t, svc, userID)
	seedBalance(t, svc, userID, account.ID, 2025, time.March, savingOpen)
	seedBalance(t, svc, userID, account.ID, 2025, time.April, savingNext)
	if income != "" {
		seedTransaction(t, svc, userID, model.FlowIncome, 2025, time.March, income)
	}
	if expenses != "" {
		seedTransaction(t, svc, userID, model.FlowExpense, 2025, time.March, expenses)
	}
	return account
}
