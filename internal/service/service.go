// Package service implements the reconciliation core behind the HTTP
// surface: period resolution, balance aggregation, the reconciliation
// formula, estimated-transaction lifecycle, and the cached CRUD around
// them.
package service

import (
	"errors"

	"github.com/finbook/backend/internal/cache"
	"github.com/finbook/backend/internal/model"
	"github.com/finbook/backend/internal/store"
	"github.com/rs/zerolog"
)

// LedgerService exposes every operation of the finance core. All methods
// are safe for concurrent use; writes that touch the estimated-transaction
// singleton serialize inside the store.
type LedgerService struct {
	store store.Store
	cache *cache.ResultCache
	log   zerolog.Logger
}

// NewLedgerService creates a LedgerService on top of the given store and
// result cache.
func NewLedgerService(st store.Store, c *cache.ResultCache, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		store: st,
		cache: c,
		log:   log,
	}
}

// IsNotFound reports whether err denotes a missing row or a period without
// data; the HTTP layer maps it to a 404.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrPeriodNotFound)
}
