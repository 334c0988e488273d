package term

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_AcquireRelease(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, uint64(1), tr.Current())

	g := tr.Acquire()
	assert.Equal(t, uint64(1), g.Term())
	assert.Equal(t, int64(1), tr.Outstanding(1))

	g.Release()
	assert.Equal(t, int64(0), tr.Outstanding(1))
	assert.Equal(t, uint64(0), g.Term())

	// Double release is a no-op.
	g.Release()
	assert.Equal(t, int64(0), tr.Outstanding(1))
}

func TestTracker_AdvanceIsMonotonic(t *testing.T) {
	tr := NewTracker()
	prev := tr.Current()
	for range 10 {
		next := tr.Advance()
		require.Equal(t, prev+1, next)
		prev = next
	}

	g := tr.Acquire()
	defer g.Release()
	assert.Equal(t, prev, g.Term())
}

func TestTracker_CanReclaim(t *testing.T) {
	tr := NewTracker()

	old := tr.Acquire() // term 1
	retiredAt := tr.Current()
	tr.Advance() // term 2

	newer := tr.Acquire() // term 2
	defer newer.Release()

	assert.False(t, tr.CanReclaim(retiredAt), "guard from term 1 still outstanding")

	old.Release()
	assert.True(t, tr.CanReclaim(retiredAt))

	// A newer guard does not block reclamation of an older term.
	assert.Equal(t, int64(1), tr.Outstanding(2))
	assert.True(t, tr.CanReclaim(1))
	assert.False(t, tr.CanReclaim(2))
}

func TestTracker_IndependentTerms(t *testing.T) {
	tr := NewTracker()

	tr.Advance()       // term 2
	g2 := tr.Acquire() // pins term 2
	tr.Advance()       // term 3
	g3 := tr.Acquire() // pins term 3
	tr.Advance()       // term 4

	// Term 1 retired long ago and has drained.
	assert.True(t, tr.CanReclaim(1))
	assert.False(t, tr.CanReclaim(2))
	assert.False(t, tr.CanReclaim(3))
	assert.Equal(t, uint64(2), tr.OldestActive())

	g2.Release()
	assert.True(t, tr.CanReclaim(2))
	assert.False(t, tr.CanReclaim(3))
	assert.Equal(t, uint64(3), tr.OldestActive())

	g3.Release()
	assert.True(t, tr.CanReclaim(3))
	assert.Equal(t, uint64(4), tr.OldestActive())
}

func TestTracker_ConcurrentAcquireAdvance(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := tr.Acquire()
				term := g.Term()
				// While the guard is held its term can never be certified.
				if tr.CanReclaim(term) {
					t.Errorf("term %d reclaimable while guard held", term)
				}
				g.Release()
			}
		}()
	}

	for range 200 {
		tr.Advance()
	}
	close(stop)
	wg.Wait()

	assert.True(t, tr.CanReclaim(tr.Current()))
}
