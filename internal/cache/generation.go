package cache

import (
	"sync/atomic"

	"github.com/hupe1980/kvcache/internal/table"
)

// generation is one table of a cache. retiredAt is zero while the generation
// is current.
type generation struct {
	table     *table.Table
	retiredAt atomic.Uint64

	// migration is set when the generation is the source of a copy.
	migration *migration
}

func newGeneration(t *table.Table) *generation {
	return &generation{table: t}
}

// retire raises retiredAt to term. It never lowers it.
func (g *generation) retire(term uint64) {
	for {
		cur := g.retiredAt.Load()
		if cur >= term || g.retiredAt.CompareAndSwap(cur, term) {
			return
		}
	}
}

// copying reports whether entries still have to be moved out of g.
func (g *generation) copying() bool {
	return g.migration != nil && !g.migration.finished()
}

// generations is an immutable snapshot of a cache's tables. Writers replace
// the whole snapshot under the cache's structural lock.
type generations struct {
	current *generation // nil once the cache is closed

	// draining is ordered newest first.
	draining []*generation
}

// find looks key up in the current generation and then in the draining
// generations from newest to oldest.
func (gs *generations) find(h uint64, key []byte) (*table.Entry, bool) {
	if gs.current != nil {
		if e, ok := gs.current.table.BucketFor(h).Find(h, key); ok {
			return e, true
		}
	}
	for _, g := range gs.draining {
		if e, ok := g.table.BucketFor(h).Find(h, key); ok {
			return e, true
		}
	}
	return nil, false
}

// tables returns every live table, current first.
func (gs *generations) tables() []*table.Table {
	out := make([]*table.Table, 0, len(gs.draining)+1)
	if gs.current != nil {
		out = append(out, gs.current.table)
	}
	for _, g := range gs.draining {
		out = append(out, g.table)
	}
	return out
}

func (gs *generations) len() int {
	n := len(gs.draining)
	if gs.current != nil {
		n++
	}
	return n
}

// retire returns a snapshot whose current generation is next (nil on close)
// and in which the previous current generation becomes the newest draining
// one.
func (gs *generations) retire(next *generation) *generations {
	draining := make([]*generation, 0, len(gs.draining)+1)
	if gs.current != nil {
		draining = append(draining, gs.current)
	}
	draining = append(draining, gs.draining...)
	return &generations{current: next, draining: draining}
}

// without returns a snapshot that no longer contains the freed generations.
func (gs *generations) without(freed map[*generation]struct{}) *generations {
	draining := make([]*generation, 0, len(gs.draining))
	for _, g := range gs.draining {
		if _, ok := freed[g]; !ok {
			draining = append(draining, g)
		}
	}
	return &generations{current: gs.current, draining: draining}
}
