package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/finbook/backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePeriodIdempotent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first, err := m.EnsurePeriod(ctx, 2025, time.March)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", first.ID)
	assert.Equal(t, "March 2025", first.Label)

	second, err := m.EnsurePeriod(ctx, 2025, time.March)
	require.NoError(t, err)
	assert.Same(t, first, second)

	periods, err := m.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestGetPeriodNotFound(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.GetPeriod(context.Background(), 2025, time.March)
	require.ErrorIs(t, err, model.ErrPeriodNotFound)
}

func TestUpsertBalanceKeepsOneRowPerAccountPeriod(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	balance := &model.AccountBalance{
		UserID:    "user123",
		AccountID: "acc1",
		PeriodID:  "2025-03",
		Reported:  decimal.NewFromInt(1000),
		CreatedAt: created,
	}
	require.NoError(t, m.UpsertBalance(ctx, balance))
	firstID := balance.ID
	require.NotEmpty(t, firstID)

	replacement := &model.AccountBalance{
		UserID:    "user123",
		AccountID: "acc1",
		PeriodID:  "2025-03",
		Reported:  decimal.NewFromInt(1200),
		CreatedAt: time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.UpsertBalance(ctx, replacement))
	assert.Equal(t, firstID, replacement.ID, "replacement must reuse the existing row")
	assert.Equal(t, created, replacement.CreatedAt, "replacement must keep the original creation stamp")

	balances, err := m.ListBalances(ctx, "user123", "2025-03")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, decimal.NewFromInt(1200).Equal(balances[0].Reported))

	// A different period gets its own row.
	other := &model.AccountBalance{
		UserID:    "user123",
		AccountID: "acc1",
		PeriodID:  "2025-04",
		Reported:  decimal.NewFromInt(900),
	}
	require.NoError(t, m.UpsertBalance(ctx, other))
	balances, err = m.ListBalances(ctx, "user123", "")
	require.NoError(t, err)
	assert.Len(t, balances, 2)
}

func seedTx(t *testing.T, m *MemoryStore, userID, periodID string, flow model.FlowType, amount int64, estimated, system bool) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		UserID:      userID,
		Amount:      decimal.NewFromInt(amount),
		Flow:        flow,
		PeriodID:    periodID,
		IsEstimated: estimated,
		IsSystem:    system,
	}
	require.NoError(t, m.CreateTransaction(context.Background(), tx))
	return tx
}

func TestSumFlowsExcludesEstimatedAndSystemRows(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	userID := "user123"

	seedTx(t, m, userID, "2025-03", model.FlowIncome, 200, false, false)
	seedTx(t, m, userID, "2025-03", model.FlowExpense, 450, false, false)
	seedTx(t, m, userID, "2025-03", model.FlowInvestment, 100, false, false)
	seedTx(t, m, userID, "2025-03", model.FlowExpense, 50, true, false)  // estimated
	seedTx(t, m, userID, "2025-03", model.FlowExpense, 999, false, true) // system
	seedTx(t, m, userID, "2025-04", model.FlowExpense, 777, false, false)
	seedTx(t, m, "someone-else", "2025-03", model.FlowExpense, 555, false, false)

	totals, err := m.SumFlows(ctx, userID, "2025-03")
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(200).Equal(totals.RealIncome))
	assert.True(t, decimal.NewFromInt(450).Equal(totals.RealExpenses), "estimated and system rows must stay out of real expenses, got %s", totals.RealExpenses)
	assert.True(t, decimal.NewFromInt(100).Equal(totals.RealInvestments))
	assert.True(t, decimal.NewFromInt(50).Equal(totals.EstimatedExpenses))
	assert.True(t, totals.EstimatedIncome.IsZero())
}

func TestReplaceEstimatedTransaction(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	userID := "user123"

	first := &model.Transaction{
		ID:          model.EstimatedTransactionID(userID, "2025-03"),
		UserID:      userID,
		Amount:      decimal.NewFromInt(50),
		Flow:        model.FlowExpense,
		PeriodID:    "2025-03",
		IsEstimated: true,
	}
	require.NoError(t, m.ReplaceEstimatedTransaction(ctx, userID, "2025-03", first))

	second := &model.Transaction{
		ID:          model.EstimatedTransactionID(userID, "2025-03"),
		UserID:      userID,
		Amount:      decimal.NewFromInt(20),
		Flow:        model.FlowExpense,
		PeriodID:    "2025-03",
		IsEstimated: true,
	}
	require.NoError(t, m.ReplaceEstimatedTransaction(ctx, userID, "2025-03", second))

	got, err := m.GetEstimatedTransaction(ctx, userID, "2025-03")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(got.Amount))

	txs, _, err := m.ListTransactions(ctx, userID, model.TransactionFilter{PeriodID: "2025-03"}, 0, "")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestDeleteEstimatedTransactionIdempotent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	// Deleting when nothing exists is not an error.
	require.NoError(t, m.DeleteEstimatedTransaction(ctx, "user123", "2025-03"))

	seedTx(t, m, "user123", "2025-03", model.FlowExpense, 50, true, false)
	require.NoError(t, m.DeleteEstimatedTransaction(ctx, "user123", "2025-03"))

	_, err := m.GetEstimatedTransaction(ctx, "user123", "2025-03")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListTransactionsPaginationTokens(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	userID := "user123"

	for i := 0; i < 7; i++ {
		tx := &model.Transaction{
			ID:       fmt.Sprintf("tx-%02d", i),
			UserID:   userID,
			Amount:   decimal.NewFromInt(int64(i)),
			Flow:     model.FlowExpense,
			PeriodID: "2025-03",
		}
		require.NoError(t, m.CreateTransaction(ctx, tx))
	}

	page1, token, err := m.ListTransactions(ctx, userID, model.TransactionFilter{}, 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, token)
	assert.Equal(t, "tx-00", page1[0].ID)

	page2, token, err := m.ListTransactions(ctx, userID, model.TransactionFilter{}, 3, token)
	require.NoError(t, err)
	require.Len(t, page2, 3)
	require.NotEmpty(t, token)
	assert.Equal(t, "tx-03", page2[0].ID)

	page3, token, err := m.ListTransactions(ctx, userID, model.TransactionFilter{}, 3, token)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Empty(t, token)
	assert.Equal(t, "tx-06", page3[0].ID)
}

func TestPageTokenRoundTrip(t *testing.T) {
	token := EncodePageToken("tx-42")
	id, err := DecodePageToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tx-42", id)

	_, err = DecodePageToken("not base64 !!!")
	require.Error(t, err)
}

func TestReorderAccountsUnknownIDLeavesPositionsUntouched(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	userID := "user123"

	first := &model.Account{ID: "acc1", UserID: userID, Name: "Savings", Category: model.CategorySaving, Position: 0}
	second := &model.Account{ID: "acc2", UserID: userID, Name: "Brokerage", Category: model.CategoryInvestment, Position: 1}
	require.NoError(t, m.CreateAccount(ctx, first))
	require.NoError(t, m.CreateAccount(ctx, second))

	// The valid prefix of the list must not be applied before the unknown
	// ID is caught.
	err := m.ReorderAccounts(ctx, userID, []string{"acc2", "acc1", "ghost"})
	require.ErrorIs(t, err, model.ErrNotFound)

	accounts, err := m.ListAccounts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc1", accounts[0].ID)
	assert.Equal(t, "acc2", accounts[1].ID)
}

func TestDeleteAccountCascade(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	userID := "user123"

	account := &model.Account{ID: "acc1", UserID: userID, Name: "Savings", Category: model.CategorySaving}
	require.NoError(t, m.CreateAccount(ctx, account))
	require.NoError(t, m.UpsertBalance(ctx, &model.AccountBalance{
		UserID: userID, AccountID: "acc1", PeriodID: "2025-03", Reported: decimal.NewFromInt(1000),
	}))
	tx := seedTx(t, m, userID, "2025-03", model.FlowExpense, 10, false, false)
	tx.AccountID = "acc1"

	require.NoError(t, m.DeleteAccount(ctx, userID, "acc1"))

	balances, err := m.ListBalances(ctx, userID, "")
	require.NoError(t, err)
	assert.Empty(t, balances)

	// The transaction survives, detached from the deleted account.
	got, err := m.GetTransaction(ctx, userID, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AccountID)
}
