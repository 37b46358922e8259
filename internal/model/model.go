package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountCategory classifies an account for reconciliation purposes.
// Saving accounts feed the cash-flow formula; investment accounts are
// reported but never included in it.
type AccountCategory string

const (
	CategorySaving     AccountCategory = "saving"
	CategoryInvestment AccountCategory = "investment"
	CategoryCredit     AccountCategory = "credit"
	CategoryOther      AccountCategory = "other"
)

// Valid reports whether c is one of the known account categories.
func (c AccountCategory) Valid() bool {
	switch c {
	case CategorySaving, CategoryInvestment, CategoryCredit, CategoryOther:
		return true
	}
	return false
}

// FlowType is the closed set of transaction flow types.
type FlowType string

const (
	FlowIncome     FlowType = "income"
	FlowExpense    FlowType = "expense"
	FlowInvestment FlowType = "investment"
	FlowTransfer   FlowType = "transfer"
	FlowAdjustment FlowType = "adjustment"
)

// Valid reports whether f is one of the known flow types.
func (f FlowType) Valid() bool {
	switch f {
	case FlowIncome, FlowExpense, FlowInvestment, FlowTransfer, FlowAdjustment:
		return true
	}
	return false
}

// EstimatedCategory is the category carried by every estimated transaction,
// so downstream filtering and display can single them out.
const EstimatedCategory = "Estimated"

// Account is a user-owned account whose balance is reported per period.
type Account struct {
	ID        string
	UserID    string
	Name      string
	Category  AccountCategory
	Currency  string
	Position  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountBalance is the reported balance of one account at the opening of
// one period. Unique per (account, period).
type AccountBalance struct {
	ID        string
	UserID    string
	AccountID string
	PeriodID  string
	Reported  decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a single recorded flow anchored to a period.
//
// IsEstimated marks the synthetic transaction produced by reconciliation;
// IsSystem marks other automatically generated rows. Both are excluded from
// the "real" sums fed back into the reconciliation formula.
type Transaction struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Flow        FlowType
	PeriodID    string
	Category    string
	AccountID   string
	Tags        []string
	Note        string
	IsEstimated bool
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EstimatedTransactionID returns the deterministic ID of the estimated
// transaction for a (user, period) pair. Deriving the ID from the pair is
// what enforces the at-most-one-estimate-per-period invariant in every
// store backend: concurrent estimates race on the same key instead of
// inserting twice.
func EstimatedTransactionID(userID, periodID string) string {
	return fmt.Sprintf("est_%s_%s", userID, periodID)
}

// FlowTotals holds per-period transaction sums split into real and
// estimated buckets. Real sums exclude estimated and system rows.
type FlowTotals struct {
	RealIncome      decimal.Decimal
	RealExpenses    decimal.Decimal
	RealInvestments decimal.Decimal

	EstimatedIncome      decimal.Decimal
	EstimatedExpenses    decimal.Decimal
	EstimatedInvestments decimal.Decimal
}

// TransactionFilter narrows a transaction listing. Zero values mean "no
// constraint" for that field.
type TransactionFilter struct {
	PeriodID    string
	Flow        FlowType
	Category    string
	AccountID   string
	Tag         string
	IsEstimated *bool
}
