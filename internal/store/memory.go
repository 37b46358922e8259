package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finbook/backend/internal/model"
	"github.com/google/uuid"
)

// MemoryStore implements the Store interface with in-memory storage. It is
// used by tests and for local development.
type MemoryStore struct {
	mu sync.RWMutex

	// Storage maps
	periods      map[string]*model.Period
	accounts     map[string]*model.Account
	balances     map[string]*model.AccountBalance
	transactions map[string]*model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods:      make(map[string]*model.Period),
		accounts:     make(map[string]*model.Account),
		balances:     make(map[string]*model.AccountBalance),
		transactions: make(map[string]*model.Transaction),
	}
}

// paginateIDs applies cursor-based pagination to a slice of IDs.
// Returns the paginated IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string) {
	if pageSize <= 0 {
		pageSize = 100
	}

	sort.Strings(ids)

	// Find cursor position
	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err == nil {
			for i, id := range ids {
				if id > cursorID {
					startIdx = i
					break
				}
				// If we've reached the end without finding a greater ID
				if i == len(ids)-1 {
					return nil, ""
				}
			}
		}
	}

	ids = ids[startIdx:]

	var nextToken string
	if int32(len(ids)) > pageSize {
		nextToken = EncodePageToken(ids[pageSize-1])
		ids = ids[:pageSize]
	}

	return ids, nextToken
}

// Period operations

func (m *MemoryStore) GetPeriod(ctx context.Context, year int, month time.Month) (*model.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	period, ok := m.periods[model.PeriodID(year, month)]
	if !ok {
		return nil, fmt.Errorf("%w: %04d-%02d", model.ErrPeriodNotFound, year, month)
	}
	return period, nil
}

func (m *MemoryStore) EnsurePeriod(ctx context.Context, year int, month time.Month) (*model.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := model.PeriodID(year, month)
	if period, ok := m.periods[id]; ok {
		return period, nil
	}
	period := model.NewPeriod(year, month)
	m.periods[id] = period
	return period, nil
}

func (m *MemoryStore) ListPeriods(ctx context.Context) ([]*model.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.periods))
	for id := range m.periods {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.Period, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.periods[id])
	}
	return result, nil
}

// Account operations

func (m *MemoryStore) CreateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountID]
	if !ok || account.UserID != userID {
		return nil, fmt.Errorf("%w: account %s", model.ErrNotFound, accountID)
	}
	return account, nil
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.accounts[account.ID]
	if !ok || existing.UserID != account.UserID {
		return fmt.Errorf("%w: account %s", model.ErrNotFound, account.ID)
	}

	m.accounts[account.ID] = account
	return nil
}

// DeleteAccount removes an account, its balances, and detaches the account
// from any transactions that referenced it.
func (m *MemoryStore) DeleteAccount(ctx context.Context, userID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok || account.UserID != userID {
		return fmt.Errorf("%w: account %s", model.ErrNotFound, accountID)
	}

	delete(m.accounts, accountID)
	for id, balance := range m.balances {
		if balance.AccountID == accountID {
			delete(m.balances, id)
		}
	}
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			tx.AccountID = ""
		}
	}
	return nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.Account
	for _, account := range m.accounts {
		if account.UserID == userID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MemoryStore) ReorderAccounts(ctx context.Context, userID string, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole list first so an unknown ID cannot leave a
	// partially applied order behind.
	for _, id := range orderedIDs {
		account, ok := m.accounts[id]
		if !ok || account.UserID != userID {
			return fmt.Errorf("%w: account %s", model.ErrNotFound, id)
		}
	}
	for pos, id := range orderedIDs {
		account := m.accounts[id]
		account.Position = int32(pos)
		account.UpdatedAt = time.Now()
	}
	return nil
}

// Balance operations

func (m *MemoryStore) UpsertBalance(ctx context.Context, balance *model.AccountBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One balance per (account, period): replace in place if present.
	for _, existing := range m.balances {
		if existing.AccountID == balance.AccountID && existing.PeriodID == balance.PeriodID {
			existing.Reported = balance.Reported
			existing.UpdatedAt = time.Now()
			balance.ID = existing.ID
			balance.CreatedAt = existing.CreatedAt
			balance.UpdatedAt = existing.UpdatedAt
			return nil
		}
	}

	if balance.ID == "" {
		balance.ID = uuid.New().String()
	}
	m.balances[balance.ID] = balance
	return nil
}

func (m *MemoryStore) DeleteBalance(ctx context.Context, userID, balanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[balanceID]
	if !ok || balance.UserID != userID {
		return fmt.Errorf("%w: balance %s", model.ErrNotFound, balanceID)
	}
	delete(m.balances, balanceID)
	return nil
}

func (m *MemoryStore) ListBalances(ctx context.Context, userID, periodID string) ([]*model.AccountBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.AccountBalance
	for _, balance := range m.balances {
		if balance.UserID != userID {
			continue
		}
		if periodID != "" && balance.PeriodID != periodID {
			continue
		}
		result = append(result, balance)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MemoryStore) HasBalances(ctx context.Context, userID, periodID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, balance := range m.balances {
		if balance.UserID == userID && balance.PeriodID == periodID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) YearsWithBalances(ctx context.Context, userID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int]bool)
	for _, balance := range m.balances {
		if balance.UserID != userID {
			continue
		}
		if period, ok := m.periods[balance.PeriodID]; ok {
			seen[period.Year] = true
		}
	}

	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[txID]
	if !ok || tx.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, txID)
	}
	return tx, nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transactions[tx.ID]
	if !ok || existing.UserID != tx.UserID {
		return fmt.Errorf("%w: transaction %s", model.ErrNotFound, tx.ID)
	}

	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, userID, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[txID]
	if !ok || tx.UserID != userID {
		return fmt.Errorf("%w: transaction %s", model.ErrNotFound, txID)
	}
	delete(m.transactions, txID)
	return nil
}

func matchesFilter(tx *model.Transaction, filter model.TransactionFilter) bool {
	if filter.PeriodID != "" && tx.PeriodID != filter.PeriodID {
		return false
	}
	if filter.Flow != "" && tx.Flow != filter.Flow {
		return false
	}
	if filter.Category != "" && tx.Category != filter.Category {
		return false
	}
	if filter.AccountID != "" && tx.AccountID != filter.AccountID {
		return false
	}
	if filter.Tag != "" {
		found := false
		for _, tag := range tx.Tags {
			if tag == filter.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsEstimated != nil && tx.IsEstimated != *filter.IsEstimated {
		return false
	}
	return true
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, filter model.TransactionFilter, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// First pass: collect matching IDs
	var matchingIDs []string
	for id, tx := range m.transactions {
		if tx.UserID != userID {
			continue
		}
		if !matchesFilter(tx, filter) {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	paginatedIDs, nextToken := paginateIDs(matchingIDs, pageSize, pageToken)
	result := make([]*model.Transaction, 0, len(paginatedIDs))
	for _, id := range paginatedIDs {
		result = append(result, m.transactions[id])
	}
	return result, nextToken, nil
}

func (m *MemoryStore) BatchCreateTransactions(ctx context.Context, txs []*model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		m.transactions[tx.ID] = tx
	}
	return nil
}

func (m *MemoryStore) BatchDeleteTransactions(ctx context.Context, userID string, txIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range txIDs {
		if tx, ok := m.transactions[id]; ok && tx.UserID == userID {
			delete(m.transactions, id)
		}
	}
	return nil
}

func (m *MemoryStore) SumFlows(ctx context.Context, userID, periodID string) (*model.FlowTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := &model.FlowTotals{}
	for _, tx := range m.transactions {
		if tx.UserID != userID || tx.PeriodID != periodID {
			continue
		}
		accumulateFlow(totals, tx)
	}
	return totals, nil
}

// accumulateFlow adds one transaction to the matching bucket of totals.
// Real buckets exclude estimated and system rows so the reconciliation
// formula never feeds on its own output.
func accumulateFlow(totals *model.FlowTotals, tx *model.Transaction) {
	if tx.IsEstimated {
		switch tx.Flow {
		case model.FlowIncome:
			totals.EstimatedIncome = totals.EstimatedIncome.Add(tx.Amount)
		case model.FlowExpense:
			totals.EstimatedExpenses = totals.EstimatedExpenses.Add(tx.Amount)
		case model.FlowInvestment:
			totals.EstimatedInvestments = totals.EstimatedInvestments.Add(tx.Amount)
		}
		return
	}
	if tx.IsSystem {
		return
	}
	switch tx.Flow {
	case model.FlowIncome:
		totals.RealIncome = totals.RealIncome.Add(tx.Amount)
	case model.FlowExpense:
		totals.RealExpenses = totals.RealExpenses.Add(tx.Amount)
	case model.FlowInvestment:
		totals.RealInvestments = totals.RealInvestments.Add(tx.Amount)
	}
}

// Estimated-transaction singleton

func (m *MemoryStore) GetEstimatedTransaction(ctx context.Context, userID, periodID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.transactions {
		if tx.UserID == userID && tx.PeriodID == periodID && tx.IsEstimated {
			return tx, nil
		}
	}
	return nil, fmt.Errorf("%w: no estimated transaction for period %s", model.ErrNotFound, periodID)
}

// ReplaceEstimatedTransaction deletes any existing estimate for the period
// and inserts tx under one lock acquisition, so two concurrent estimates
// can never both leave a row behind.
func (m *MemoryStore) ReplaceEstimatedTransaction(ctx context.Context, userID, periodID string, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.transactions {
		if existing.UserID == userID && existing.PeriodID == periodID && existing.IsEstimated {
			delete(m.transactions, id)
		}
	}

	if tx.ID == "" {
		tx.ID = model.EstimatedTransactionID(userID, periodID)
	}
	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) DeleteEstimatedTransaction(ctx context.Context, userID, periodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, tx := range m.transactions {
		if tx.UserID == userID && tx.PeriodID == periodID && tx.IsEstimated {
			delete(m.transactions, id)
		}
	}
	return nil
}
