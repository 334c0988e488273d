package kvcache

import (
	"github.com/hupe1980/kvcache/internal/cache"
	"github.com/hupe1980/kvcache/internal/manager"
)

var (
	// ErrCacheClosed is returned for operations on a closed cache.
	ErrCacheClosed = cache.ErrCacheClosed

	// ErrCapacityRejected is returned when a single entry exceeds its cache
	// quota. The concrete error is a *QuotaError.
	ErrCapacityRejected = cache.ErrCapacityRejected

	// ErrManagerClosed is returned for operations on a closed manager.
	ErrManagerClosed = manager.ErrManagerClosed

	// ErrBudgetExhausted is returned when the memory budget cannot cover a
	// requested quota.
	ErrBudgetExhausted = manager.ErrBudgetExhausted

	// ErrInvalidQuota is returned for negative quotas and quotas below the
	// configured minimum.
	ErrInvalidQuota = manager.ErrInvalidQuota

	// ErrDuplicateName is returned when opening a cache whose name is in use.
	ErrDuplicateName = manager.ErrDuplicateName

	// ErrUnknownCache is returned for caches owned by another manager.
	ErrUnknownCache = manager.ErrUnknownCache
)

// QuotaError describes an entry that could never fit into its cache.
//
// It unwraps to ErrCapacityRejected.
type QuotaError = cache.QuotaError

// InsertResult is the outcome of Cache.Insert. It is returned alongside the
// error so callers may switch on it and ignore the error.
type InsertResult = cache.InsertResult

const (
	// Accepted means the entry was stored, possibly after evicting others.
	Accepted = cache.Accepted
	// RejectedOverQuota means the entry alone exceeds the cache quota.
	RejectedOverQuota = cache.RejectedOverQuota
	// RejectedClosed means the cache was closed.
	RejectedClosed = cache.RejectedClosed
	// InsertFailed means the entry could not be stored for another reason;
	// the returned error describes it.
	InsertFailed = cache.InsertFailed
)
