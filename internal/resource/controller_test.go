package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Budget(t *testing.T) {
	c := NewController(Config{MemoryBudgetBytes: 100})
	assert.Equal(t, int64(100), c.Budget())

	require.NoError(t, c.ReserveQuota(50))
	assert.Equal(t, int64(50), c.Reserved())
	assert.Equal(t, int64(50), c.Available())

	require.NoError(t, c.ReserveQuota(40))
	assert.Equal(t, int64(90), c.Reserved())

	// Would oversubscribe.
	err := c.ReserveQuota(20)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, int64(90), c.Reserved())

	c.ReleaseQuota(50)
	assert.Equal(t, int64(40), c.Reserved())

	require.NoError(t, c.ReserveQuota(20))
	assert.Equal(t, int64(60), c.Reserved())
	assert.Equal(t, int64(40), c.Available())
}

func TestController_UnlimitedBudget(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.ReserveQuota(1000))
	assert.Equal(t, int64(1000), c.Reserved())
	assert.Equal(t, int64(-1), c.Available())

	c.ReleaseQuota(500)
	assert.Equal(t, int64(500), c.Reserved())
}

func TestController_IgnoresNonPositive(t *testing.T) {
	c := NewController(Config{MemoryBudgetBytes: 10})
	require.NoError(t, c.ReserveQuota(-1))
	require.NoError(t, c.ReserveQuota(0))
	c.ReleaseQuota(-1)
	assert.Zero(t, c.Reserved())
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.False(t, c.TryAcquireBackground())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBackground(ctx))

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestController_MigrationRate(t *testing.T) {
	c := NewController(Config{MigrationBucketsPerSec: 1000})
	require.NoError(t, c.AcquireMigration(t.Context(), 10))

	// Requests above the burst are clamped instead of failing.
	require.NoError(t, c.AcquireMigration(t.Context(), 5000))

	unlimited := NewController(Config{})
	require.NoError(t, unlimited.AcquireMigration(t.Context(), 1_000_000))

	slow := NewController(Config{MigrationBucketsPerSec: 1})
	require.NoError(t, slow.AcquireMigration(t.Context(), 1))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, slow.AcquireMigration(ctx, 1))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.ReserveQuota(100))
	c.ReleaseQuota(100)
	assert.Zero(t, c.Reserved())
	assert.Zero(t, c.Budget())
	assert.Equal(t, int64(-1), c.Available())

	assert.NoError(t, c.AcquireBackground(context.Background()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()

	assert.NoError(t, c.AcquireMigration(context.Background(), 100))
}
