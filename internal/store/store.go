package store

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/finbook/backend/internal/model"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Store defines the interface for all persistence operations used by the
// service layer.
type Store interface {
	// Period operations. Periods are append-only: EnsurePeriod creates the
	// canonical row on first use and is a no-op afterwards.
	GetPeriod(ctx context.Context, year int, month time.Month) (*model.Period, error)
	EnsurePeriod(ctx context.Context, year int, month time.Month) (*model.Period, error)
	ListPeriods(ctx context.Context) ([]*model.Period, error)

	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	DeleteAccount(ctx context.Context, userID, accountID string) error
	ListAccounts(ctx context.Context, userID string) ([]*model.Account, error)
	ReorderAccounts(ctx context.Context, userID string, orderedIDs []string) error

	// Balance operations. UpsertBalance keeps the (account, period)
	// uniqueness invariant: a second write for the same pair replaces the
	// first. DeleteAccount cascades to the account's balances.
	UpsertBalance(ctx context.Context, balance *model.AccountBalance) error
	DeleteBalance(ctx context.Context, userID, balanceID string) error
	ListBalances(ctx context.Context, userID, periodID string) ([]*model.AccountBalance, error)
	HasBalances(ctx context.Context, userID, periodID string) (bool, error)
	YearsWithBalances(ctx context.Context, userID string) ([]int, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	DeleteTransaction(ctx context.Context, userID, txID string) error
	ListTransactions(ctx context.Context, userID string, filter model.TransactionFilter, pageSize int32, pageToken string) ([]*model.Transaction, string, error)
	BatchCreateTransactions(ctx context.Context, txs []*model.Transaction) error
	BatchDeleteTransactions(ctx context.Context, userID string, txIDs []string) error

	// SumFlows returns the per-flow transaction totals for a period, with
	// real sums excluding estimated and system rows.
	SumFlows(ctx context.Context, userID, periodID string) (*model.FlowTotals, error)

	// Estimated-transaction singleton. ReplaceEstimatedTransaction
	// atomically deletes any existing estimate for (user, period) and
	// inserts tx; DeleteEstimatedTransaction removes it if present.
	GetEstimatedTransaction(ctx context.Context, userID, periodID string) (*model.Transaction, error)
	ReplaceEstimatedTransaction(ctx context.Context, userID, periodID string, tx *model.Transaction) error
	DeleteEstimatedTransaction(ctx context.Context, userID, periodID string) error
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
