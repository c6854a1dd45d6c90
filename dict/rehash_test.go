package dict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRehash_PreservesKeys(t *testing.T) {
	d := New(intType())
	const n = 2000

	// Interleave explicit migration steps with inserts; the live key
	// set must never change.
	for i := 0; i < n; i++ {
		require.NoError(t, d.Add(i, i))
		if i%3 == 0 {
			d.Rehash(2)
		}
	}
	finishRehash(t, d)

	require.Equal(t, n, d.Len())
	for i := 0; i < n; i++ {
		entry := d.Find(i)
		require.NotNil(t, entry, "key %d lost", i)
		require.Equal(t, i, entry.Val())
	}
}

func TestRehash_TablesDrainInOrder(t *testing.T) {
	d := New(intType())
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	require.NoError(t, d.Expand(512))
	require.True(t, d.IsRehashing())

	// Buckets below the cursor must be empty in table 0.
	for d.IsRehashing() {
		for i := int64(0); i < d.rehashidx; i++ {
			require.Nil(t, d.ht[0].buckets[i], "bucket %d not drained", i)
		}
		d.Rehash(1)
	}

	// After completion, slot 1 is gone and slot 0 took over.
	assert.Equal(t, int8(-1), d.ht[1].exp)
	assert.Equal(t, uint64(100), d.ht[0].used)
}

func TestRehash_PauseMakesStepNoop(t *testing.T) {
	d := New(intType())
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	require.NoError(t, d.Expand(512))
	require.True(t, d.IsRehashing())
	d.Rehash(3)
	cursor := d.rehashidx

	resume := d.PauseRehash()
	assert.True(t, d.Rehash(10))
	assert.Equal(t, cursor, d.rehashidx, "paused step moved the cursor")
	assert.Zero(t, d.RehashMilliseconds(5))

	// Lookups during a pause still find everything without stepping.
	for i := 0; i < 100; i++ {
		require.NotNil(t, d.Find(i))
	}
	assert.Equal(t, cursor, d.rehashidx)

	resume()
	assert.True(t, d.Rehash(10))
	assert.Greater(t, d.rehashidx, cursor)
}

func TestRehash_PauseNests(t *testing.T) {
	d := New(intType())
	require.NoError(t, d.Add(1, 1))
	require.NoError(t, d.Expand(64))

	r1 := d.PauseRehash()
	r2 := d.PauseRehash()
	cursor := d.rehashidx
	r1()
	d.Rehash(1)
	assert.Equal(t, cursor, d.rehashidx, "still paused once")
	r2()
	finishRehash(t, d)
}

func TestRehash_ResumeTwicePanics(t *testing.T) {
	d := New(intType())
	resume := d.PauseRehash()
	resume()
	assert.Panics(t, func() { resume() })
}

func TestRehash_Milliseconds(t *testing.T) {
	d := New(intType())
	for i := 0; i < 50000; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	require.NoError(t, d.Expand(1 << 17))
	require.True(t, d.IsRehashing())

	batches := d.RehashMilliseconds(50)
	assert.Positive(t, batches)

	finishRehash(t, d)
	assert.Equal(t, 50000, d.Len())
}

func TestRehash_EmptyBucketVisitBound(t *testing.T) {
	d := New(intType())
	// One lonely key in a big sparse table.
	require.NoError(t, d.Add(1, 1))
	require.NoError(t, d.Expand(1 << 12))
	require.True(t, d.IsRehashing())

	// A single step visits at most 10 empty buckets before giving up.
	before := d.rehashidx
	d.Rehash(1)
	if d.IsRehashing() {
		assert.LessOrEqual(t, d.rehashidx-before, int64(10))
	}

	finishRehash(t, d)
	require.NotNil(t, d.Find(1))
}

func TestRehash_ShrinkKeepsKeys(t *testing.T) {
	d := New(intType())
	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	for i := 100; i < 1000; i++ {
		require.NoError(t, d.Delete(i))
	}
	require.NoError(t, d.Resize())
	finishRehash(t, d)

	require.Equal(t, 100, d.Len())
	for i := 0; i < 100; i++ {
		require.NotNil(t, d.Find(i))
	}
}
