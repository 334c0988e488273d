package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/kvcache/internal/compress"
	"github.com/hupe1980/kvcache/internal/resource"
	"github.com/hupe1980/kvcache/internal/term"
)

var (
	// ErrCacheClosed is returned for operations on a closed cache.
	ErrCacheClosed = errors.New("cache closed")

	// ErrCapacityRejected is returned when a single entry exceeds the quota.
	ErrCapacityRejected = errors.New("entry exceeds cache quota")
)

// QuotaError describes an entry that could never fit into its cache.
type QuotaError struct {
	Cache     string
	EntrySize int64
	Quota     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("cache %q: entry of %d bytes exceeds quota of %d bytes", e.Cache, e.EntrySize, e.Quota)
}

func (e *QuotaError) Unwrap() error {
	return ErrCapacityRejected
}

// InsertResult is the outcome of an insert.
type InsertResult uint8

const (
	// Accepted means the entry was stored, possibly after evicting others.
	Accepted InsertResult = iota
	// RejectedOverQuota means the entry alone exceeds the cache quota.
	RejectedOverQuota
	// RejectedClosed means the cache was closed.
	RejectedClosed
	// InsertFailed means the entry could not be stored for another reason,
	// such as a codec error. The returned error describes it.
	InsertFailed
)

func (r InsertResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedOverQuota:
		return "rejected_over_quota"
	case RejectedClosed:
		return "rejected_closed"
	case InsertFailed:
		return "failed"
	default:
		return fmt.Sprintf("InsertResult(%d)", uint8(r))
	}
}

// Observer receives per-operation events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnLookup(cache string, hit bool)
	OnInsert(cache string, result InsertResult)
	OnEviction(cache string, bytes int64)
	OnMigration(cache string, duration time.Duration, buckets uint64)
}

type noopObserver struct{}

func (noopObserver) OnLookup(string, bool)                     {}
func (noopObserver) OnInsert(string, InsertResult)             {}
func (noopObserver) OnEviction(string, int64)                  {}
func (noopObserver) OnMigration(string, time.Duration, uint64) {}

// Options configures a Cache.
type Options struct {
	// Name identifies the cache in logs, metrics and errors.
	Name string
	// ID is the registry identifier assigned by the manager.
	ID uint64
	// Quota is the initial allowed size in bytes.
	Quota int64
	// Buckets is the initial table size (a power of two).
	Buckets uint64
	// SlotsPerBucket is the bucket capacity.
	SlotsPerBucket int
	// Compression selects the value codec.
	Compression compress.Type

	// Terms is the shared term tracker. Required.
	Terms *term.Tracker
	// Resources throttles background migration. May be nil.
	Resources *resource.Controller
	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
	// Observer receives per-operation events. May be nil.
	Observer Observer

	// BeforeFree, if set, is called under the cache's structural lock right
	// before a draining generation retired at term is freed.
	BeforeFree func(term uint64)
}

// Stats is a point-in-time snapshot of a cache.
type Stats struct {
	Name          string
	ID            uint64
	UsedBytes     int64
	AllowedBytes  int64
	Entries       int64
	Hits          uint64
	Misses        uint64
	HitRate       float64
	WindowHitRate float64
	Inserts       uint64
	Rejections    uint64
	Evictions     uint64
	Removals      uint64
	Migrations    uint64
	Buckets       uint64
	Generations   int
	Migrating     bool
	Closed        bool
	Term          uint64
	LastRebalance time.Time
}
