package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesResult(t *testing.T) {
	c := New(time.Minute)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "result", nil
	}

	key := Key{Op: "accounts.list"}
	for i := 0; i < 3; i++ {
		value, err := c.GetOrCompute("user123", key, compute)
		require.NoError(t, err)
		assert.Equal(t, "result", value)
	}
	assert.Equal(t, 1, calls)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c := New(time.Minute)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	key := Key{Op: "transactions.list"}
	value, err := c.GetOrCompute("user123", key, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	c.Invalidate("user123")

	value, err = c.GetOrCompute("user123", key, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestInvalidateIsPerUser(t *testing.T) {
	c := New(time.Minute)

	key := Key{Op: "accounts.list"}
	aliceCalls, bobCalls := 0, 0
	_, err := c.GetOrCompute("alice", key, func() (interface{}, error) { aliceCalls++; return nil, nil })
	require.NoError(t, err)
	_, err = c.GetOrCompute("bob", key, func() (interface{}, error) { bobCalls++; return nil, nil })
	require.NoError(t, err)

	c.Invalidate("alice")

	_, err = c.GetOrCompute("alice", key, func() (interface{}, error) { aliceCalls++; return nil, nil })
	require.NoError(t, err)
	_, err = c.GetOrCompute("bob", key, func() (interface{}, error) { bobCalls++; return nil, nil })
	require.NoError(t, err)

	assert.Equal(t, 2, aliceCalls)
	assert.Equal(t, 1, bobCalls, "bob's entry must survive alice's invalidation")
}

func TestDistinctKeysDistinctEntries(t *testing.T) {
	c := New(time.Minute)

	compute := func(v string) func() (interface{}, error) {
		return func() (interface{}, error) { return v, nil }
	}

	value, err := c.GetOrCompute("user123", Key{Op: "transactions.list", Filters: map[string]string{"period": "2025-03"}}, compute("march"))
	require.NoError(t, err)
	assert.Equal(t, "march", value)

	value, err = c.GetOrCompute("user123", Key{Op: "transactions.list", Filters: map[string]string{"period": "2025-04"}}, compute("april"))
	require.NoError(t, err)
	assert.Equal(t, "april", value)

	value, err = c.GetOrCompute("user123", Key{Op: "transactions.list", Filters: map[string]string{"period": "2025-03"}, PageSize: 10}, compute("paged"))
	require.NoError(t, err)
	assert.Equal(t, "paged", value)

	assert.Equal(t, 3, c.Len())
}

func TestFilterOrderDoesNotMatter(t *testing.T) {
	// The fingerprint sorts filter names, so logically equal filter maps
	// share an entry regardless of construction order.
	c := New(time.Minute)

	calls := 0
	compute := func() (interface{}, error) { calls++; return nil, nil }

	a := map[string]string{"flow": "expense", "period": "2025-03"}
	b := map[string]string{"period": "2025-03", "flow": "expense"}

	_, err := c.GetOrCompute("user123", Key{Op: "transactions.list", Filters: a}, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute("user123", Key{Op: "transactions.list", Filters: b}, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(time.Minute)

	calls := 0
	boom := errors.New("store unavailable")
	failing := func() (interface{}, error) { calls++; return nil, boom }

	key := Key{Op: "accounts.list"}
	_, err := c.GetOrCompute("user123", key, failing)
	require.ErrorIs(t, err, boom)

	value, err := c.GetOrCompute("user123", key, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls)
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute)

	current := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	calls := 0
	compute := func() (interface{}, error) { calls++; return nil, nil }

	key := Key{Op: "accounts.list"}
	_, err := c.GetOrCompute("user123", key, compute)
	require.NoError(t, err)

	// Inside the TTL window the entry is served.
	current = current.Add(30 * time.Second)
	_, err = c.GetOrCompute("user123", key, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Past the TTL it is recomputed.
	current = current.Add(2 * time.Minute)
	_, err = c.GetOrCompute("user123", key, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExpiredEntriesEvictedOnWrite(t *testing.T) {
	c := New(time.Minute)

	current := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	compute := func() (interface{}, error) { return nil, nil }

	// Orphan an entry behind an epoch bump, then age everything out.
	_, err := c.GetOrCompute("user123", Key{Op: "accounts.list"}, compute)
	require.NoError(t, err)
	c.Invalidate("user123")
	assert.Equal(t, 1, c.Len())

	current = current.Add(2 * time.Minute)

	// The next write sweeps expired entries, orphaned ones included.
	_, err = c.GetOrCompute("user123", Key{Op: "accounts.list"}, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestEpochAdvances(t *testing.T) {
	c := New(time.Minute)

	assert.Equal(t, uint64(0), c.Epoch("user123"))
	c.Invalidate("user123")
	c.Invalidate("user123")
	assert.Equal(t, uint64(2), c.Epoch("user123"))
	assert.Equal(t, uint64(0), c.Epoch("someone-else"))
}
