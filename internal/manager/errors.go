package manager

import (
	"errors"

	"github.com/hupe1980/kvcache/internal/resource"
)

var (
	// ErrManagerClosed is returned for operations on a closed manager.
	ErrManagerClosed = errors.New("manager closed")

	// ErrDuplicateName is returned when opening a cache whose name is in use.
	ErrDuplicateName = errors.New("cache name already in use")

	// ErrInvalidQuota is returned for negative or otherwise unusable quotas.
	ErrInvalidQuota = errors.New("invalid quota")

	// ErrUnknownCache is returned for caches not registered with the manager.
	ErrUnknownCache = errors.New("unknown cache")

	// ErrBudgetExhausted is returned when the budget cannot cover a quota.
	ErrBudgetExhausted = resource.ErrBudgetExhausted
)
