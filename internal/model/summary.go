package model

import "github.com/shopspring/decimal"

// SummaryStatus is the outcome of reconciling one period against the next.
type SummaryStatus string

const (
	StatusBalanced        SummaryStatus = "balanced"
	StatusMissingExpenses SummaryStatus = "missing_expenses"
	StatusMissingIncome   SummaryStatus = "missing_income"
)

// SummaryDetails carries the inputs behind a reconciliation verdict.
//
// Investment totals are the signed sum of investment rows exactly as
// recorded; no inflow/outflow normalization is applied. They are reported
// for visibility only and never enter the cash-flow formula.
type SummaryDetails struct {
	RealIncome      decimal.Decimal
	RealExpenses    decimal.Decimal
	RealInvestments decimal.Decimal

	EstimatedIncome      decimal.Decimal
	EstimatedExpenses    decimal.Decimal
	EstimatedInvestments decimal.Decimal

	SavingsCurrent decimal.Decimal
	SavingsNext    decimal.Decimal
}

// Summary is the derived reconciliation result for one period. It is
// recomputed on demand and never persisted.
type Summary struct {
	Period          *Period
	Status          SummaryStatus
	ShortfallAmount decimal.Decimal
	ShortfallFlow   FlowType
	Details         SummaryDetails
}
