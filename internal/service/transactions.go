package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/finbook/backend/internal/cache"
	"github.com/finbook/backend/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionInput carries the caller-editable fields of a transaction.
// The period is created on demand from (Year, Month).
type TransactionInput struct {
	Amount    decimal.Decimal
	Flow      model.FlowType
	Year      int
	Month     time.Month
	Category  string
	AccountID string
	Tags      []string
	Note      string
}

func (in *TransactionInput) validate() error {
	if !in.Flow.Valid() {
		return fmt.Errorf("%w: unknown flow type %q", model.ErrInvalidArgument, in.Flow)
	}
	if in.Year == 0 {
		return fmt.Errorf("%w: year is required", model.ErrInvalidArgument)
	}
	if in.Month < time.January || in.Month > time.December {
		return fmt.Errorf("%w: month %d out of range", model.ErrInvalidArgument, in.Month)
	}
	return nil
}

// TransactionPage is one page of a filtered transaction listing.
type TransactionPage struct {
	Transactions  []*model.Transaction
	NextPageToken string
}

// CreateTransaction records a real transaction. Estimated and system rows
// are produced by the engine itself and can never be entered through this
// path.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, in TransactionInput) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.AccountID != "" {
		if _, err := s.store.GetAccount(ctx, userID, in.AccountID); err != nil {
			return nil, err
		}
	}

	period, err := s.store.EnsurePeriod(ctx, in.Year, in.Month)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    in.Amount,
		Flow:      in.Flow,
		PeriodID:  period.ID,
		Category:  in.Category,
		AccountID: in.AccountID,
		Tags:      in.Tags,
		Note:      in.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.cache.Invalidate(userID)
	return tx, nil
}

// GetTransaction returns one transaction owned by the user.
func (s *LedgerService) GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, txID)
}

// UpdateTransaction applies the input to a real transaction. Estimated
// rows are managed exclusively by Estimate/DeleteEstimate and are rejected
// here: editing one by hand would desynchronize it from the formula that
// produced it.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, txID string, in TransactionInput) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx, err := s.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		return nil, err
	}
	if tx.IsEstimated {
		return nil, fmt.Errorf("%w: estimated transactions cannot be edited", model.ErrInvalidArgument)
	}
	if in.AccountID != "" {
		if _, err := s.store.GetAccount(ctx, userID, in.AccountID); err != nil {
			return nil, err
		}
	}

	period, err := s.store.EnsurePeriod(ctx, in.Year, in.Month)
	if err != nil {
		return nil, err
	}

	// Work on a copy: the memory store hands out its stored object, which
	// must not be mutated outside the store lock.
	updated := *tx
	updated.Amount = in.Amount
	updated.Flow = in.Flow
	updated.PeriodID = period.ID
	updated.Category = in.Category
	updated.AccountID = in.AccountID
	updated.Tags = in.Tags
	updated.Note = in.Note
	updated.UpdatedAt = time.Now()
	if err := s.store.UpdateTransaction(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.cache.Invalidate(userID)
	return &updated, nil
}

// DeleteTransaction removes a transaction owned by the user.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, txID string) error {
	if err := s.store.DeleteTransaction(ctx, userID, txID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// BatchCreateTransactions records several real transactions in one call,
// all anchored to the same on-demand period.
func (s *LedgerService) BatchCreateTransactions(ctx context.Context, userID string, inputs []TransactionInput) ([]*model.Transaction, error) {
	txs := make([]*model.Transaction, 0, len(inputs))
	now := time.Now()
	for i := range inputs {
		in := &inputs[i]
		if err := in.validate(); err != nil {
			return nil, err
		}
		period, err := s.store.EnsurePeriod(ctx, in.Year, in.Month)
		if err != nil {
			return nil, err
		}
		txs = append(txs, &model.Transaction{
			ID:        uuid.New().String(),
			UserID:    userID,
			Amount:    in.Amount,
			Flow:      in.Flow,
			PeriodID:  period.ID,
			Category:  in.Category,
			AccountID: in.AccountID,
			Tags:      in.Tags,
			Note:      in.Note,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.store.BatchCreateTransactions(ctx, txs); err != nil {
		return nil, fmt.Errorf("failed to batch create transactions: %w", err)
	}
	s.cache.Invalidate(userID)
	return txs, nil
}

// BatchDeleteTransactions removes several transactions in one call.
func (s *LedgerService) BatchDeleteTransactions(ctx context.Context, userID string, txIDs []string) error {
	if err := s.store.BatchDeleteTransactions(ctx, userID, txIDs); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// ListTransactions returns a filtered page of the user's transactions,
// served from the result cache under the user's current epoch. Any
// mutation bumps the epoch, so a listing can never show pre-mutation data
// to its own user.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, filter model.TransactionFilter, pageSize int32, pageToken string) (*TransactionPage, error) {
	key := cache.Key{
		Op:        "transactions.list",
		Filters:   filterFingerprint(filter),
		PageSize:  pageSize,
		PageToken: pageToken,
	}
	value, err := s.cache.GetOrCompute(userID, key, func() (interface{}, error) {
		txs, nextToken, err := s.store.ListTransactions(ctx, userID, filter, pageSize, pageToken)
		if err != nil {
			return nil, err
		}
		return &TransactionPage{Transactions: txs, NextPageToken: nextToken}, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*TransactionPage), nil
}

// filterFingerprint canonicalizes a filter into the cache key's string
// form. Only set fields participate, so logically equal filters share an
// entry.
func filterFingerprint(filter model.TransactionFilter) map[string]string {
	fields := make(map[string]string)
	if filter.PeriodID != "" {
		fields["period"] = filter.PeriodID
	}
	if filter.Flow != "" {
		fields["flow"] = string(filter.Flow)
	}
	if filter.Category != "" {
		fields["category"] = filter.Category
	}
	if filter.AccountID != "" {
		fields["account"] = filter.AccountID
	}
	if filter.Tag != "" {
		fields["tag"] = filter.Tag
	}
	if filter.IsEstimated != nil {
		fields["estimated"] = strconv.FormatBool(*filter.IsEstimated)
	}
	return fields
}
