package term

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// epoch is the outstanding-guard counter of a single term.
type epoch struct {
	term  uint64
	count atomic.Int64
	_     cpu.CacheLinePad
}

// Tracker is the term clock shared by all caches of a manager.
type Tracker struct {
	current atomic.Pointer[epoch]

	mu sync.Mutex
	// retired holds epochs older than current that may still have guards,
	// ordered by term.
	retired []*epoch
}

// NewTracker creates a Tracker starting at term 1.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.current.Store(&epoch{term: 1})
	return t
}

// Guard pins the term it was acquired in until Release is called.
// The zero Guard is released.
type Guard struct {
	e *epoch
}

// Acquire returns a Guard stamped with the current term.
func (t *Tracker) Acquire() Guard {
	for {
		e := t.current.Load()
		e.count.Add(1)
		if t.current.Load() == e {
			return Guard{e: e}
		}
		// Lost a race with Advance; the epoch may already be certified.
		e.count.Add(-1)
	}
}

// Term returns the term the guard was acquired in (0 once released).
func (g *Guard) Term() uint64 {
	if g.e == nil {
		return 0
	}
	return g.e.term
}

// Release releases the guard. It is safe to call more than once.
func (g *Guard) Release() {
	if g.e == nil {
		return
	}
	g.e.count.Add(-1)
	g.e = nil
}

// Current returns the current term.
func (t *Tracker) Current() uint64 {
	return t.current.Load().term
}

// Advance opens a new term and returns it. Guards acquired after Advance
// returns carry the new term.
func (t *Tracker) Advance() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.current.Load()
	next := &epoch{term: old.term + 1}
	t.retired = append(t.retired, old)
	t.current.Store(next)
	t.pruneLocked()

	return next.term
}

// CanReclaim reports whether no guard acquired in any term <= term is still
// outstanding.
func (t *Tracker) CanReclaim(term uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.retired {
		if e.term > term {
			break
		}
		if e.count.Load() != 0 {
			return false
		}
	}

	cur := t.current.Load()
	if cur.term <= term && cur.count.Load() != 0 {
		return false
	}

	t.pruneLocked()
	return true
}

// Outstanding returns the number of guards outstanding in term.
func (t *Tracker) Outstanding(term uint64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur := t.current.Load(); cur.term == term {
		return cur.count.Load()
	}
	for _, e := range t.retired {
		if e.term == term {
			return e.count.Load()
		}
	}
	return 0
}

// OldestActive returns the oldest term that still has outstanding guards, or
// the current term when all retired terms are quiescent.
func (t *Tracker) OldestActive() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.retired {
		if e.count.Load() != 0 {
			return e.term
		}
	}
	return t.current.Load().term
}

// pruneLocked drops quiescent epochs from the front of the retired list.
// A retired epoch observed at zero can never regain a valid guard because
// Acquire re-checks the current epoch after incrementing.
func (t *Tracker) pruneLocked() {
	i := 0
	for i < len(t.retired) && t.retired[i].count.Load() == 0 {
		t.retired[i] = nil
		i++
	}
	if i > 0 {
		t.retired = append(t.retired[:0], t.retired[i:]...)
	}
}
