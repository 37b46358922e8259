package model

import "errors"

var (
	// ErrPeriodNotFound is returned when a period, or the successor period
	// reconciliation depends on, has no balance data recorded. This is an
	// expected condition: the caller should prompt for the missing
	// balances, not treat the gap as zero.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrNotFound is returned when a requested row does not exist or is
	// not owned by the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness
	// constraint, such as a second balance for the same (account, period).
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument is returned for writes that fail validation
	// before reaching the store.
	ErrInvalidArgument = errors.New("invalid argument")
)
