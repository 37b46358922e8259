package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finbook/backend/internal/cache"
	"github.com/finbook/backend/internal/model"
	"github.com/google/uuid"
)

// AccountInput carries the caller-editable fields of an account.
type AccountInput struct {
	Name     string
	Category model.AccountCategory
	Currency string
}

func (in *AccountInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: account name is required", model.ErrInvalidArgument)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown account category %q", model.ErrInvalidArgument, in.Category)
	}
	return nil
}

// CreateAccount creates a new account for the user, appended at the end of
// the display order.
func (s *LedgerService) CreateAccount(ctx context.Context, userID string, in AccountInput) (*model.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      in.Name,
		Category:  in.Category,
		Currency:  strings.ToUpper(in.Currency),
		Position:  int32(len(existing)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info().Str("user_id", userID).Str("account_id", account.ID).Msg("account created")
	s.cache.Invalidate(userID)
	return account, nil
}

// UpdateAccount applies the input to an existing account owned by the user.
func (s *LedgerService) UpdateAccount(ctx context.Context, userID, accountID string, in AccountInput) (*model.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	// Work on a copy: the memory store hands out its stored object, which
	// must not be mutated outside the store lock.
	updated := *account
	updated.Name = in.Name
	updated.Category = in.Category
	updated.Currency = strings.ToUpper(in.Currency)
	updated.UpdatedAt = time.Now()
	if err := s.store.UpdateAccount(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	s.cache.Invalidate(userID)
	return &updated, nil
}

// DeleteAccount removes an account along with its reported balances.
func (s *LedgerService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if err := s.store.DeleteAccount(ctx, userID, accountID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Str("account_id", accountID).Msg("account deleted")
	s.cache.Invalidate(userID)
	return nil
}

// ListAccounts returns the user's accounts in display order, served from
// the result cache under the user's current epoch.
func (s *LedgerService) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	key := cache.Key{Op: "accounts.list"}
	value, err := s.cache.GetOrCompute(userID, key, func() (interface{}, error) {
		return s.store.ListAccounts(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*model.Account), nil
}

// ReorderAccounts assigns display positions from the given ID order.
func (s *LedgerService) ReorderAccounts(ctx context.Context, userID string, orderedIDs []string) error {
	if err := s.store.ReorderAccounts(ctx, userID, orderedIDs); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}
