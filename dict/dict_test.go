package dict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// intType hashes int keys by value, good enough to spread them across
// power-of-two tables in tests.
func intType() *Type {
	return &Type{
		Hash: func(key any) uint64 {
			h := uint64(key.(int))
			h *= 0x9E3779B97F4A7C15
			return h ^ h>>29
		},
	}
}

func stringType() *Type {
	return &Type{
		Hash: func(key any) uint64 {
			return GenHashFunction([]byte(key.(string)))
		},
	}
}

func finishRehash(t *testing.T, d *Dict) {
	t.Helper()
	for d.Rehash(100) {
	}
	require.False(t, d.IsRehashing())
}

func TestDict_ScenarioBasic(t *testing.T) {
	d := New(intType())

	require.NoError(t, d.Add(1, "one"))
	require.NoError(t, d.Add(2, "two"))
	require.NoError(t, d.Add(3, "three"))

	require.NoError(t, d.Delete(2))

	assert.Equal(t, "one", d.FetchValue(1))
	assert.Nil(t, d.FetchValue(2))
	assert.Equal(t, 2, d.Len())
}

func TestDict_AddExisting(t *testing.T) {
	d := New(intType())

	require.NoError(t, d.Add(7, "a"))
	assert.ErrorIs(t, d.Add(7, "b"), ErrKeyExists)
	assert.Equal(t, "a", d.FetchValue(7))

	entry, existed := d.AddRaw(7)
	assert.True(t, existed)
	assert.Equal(t, 7, entry.Key())
}

func TestDict_Replace(t *testing.T) {
	d := New(intType())

	assert.True(t, d.Replace(1, "first"))
	assert.False(t, d.Replace(1, "second"))
	assert.Equal(t, "second", d.FetchValue(1))
	assert.Equal(t, 1, d.Len())
}

func TestDict_ReplaceRunsDestructorAfterSet(t *testing.T) {
	// The old value must be destroyed only after the new one is in
	// place, so replacing a refcounted value with itself stays safe.
	var destroyed []any
	typ := intType()
	typ.ValDestructor = func(d *Dict, val any) {
		destroyed = append(destroyed, val)
	}
	d := New(typ)

	require.NoError(t, d.Add(1, "old"))
	d.Replace(1, "new")

	require.Equal(t, []any{"old"}, destroyed)
	assert.Equal(t, "new", d.FetchValue(1))
}

func TestDict_NumericValues(t *testing.T) {
	d := New(intType())

	entry, existed := d.AddRaw(1)
	require.False(t, existed)
	entry.SetUint(42)
	assert.Equal(t, uint64(42), entry.Uint())
	assert.Equal(t, KindUint, entry.Kind())
	assert.Nil(t, entry.Val())

	entry.SetInt(-7)
	assert.Equal(t, int64(-7), entry.Int())
	entry.SetFloat(2.5)
	assert.Equal(t, 2.5, entry.Float())

	// Destructors never run for numeric variants.
	var destroyed int
	typ := intType()
	typ.ValDestructor = func(d *Dict, val any) { destroyed++ }
	d2 := New(typ)
	e2, _ := d2.AddRaw(1)
	e2.SetInt(5)
	require.NoError(t, d2.Delete(1))
	assert.Zero(t, destroyed)
}

func TestDict_UnlinkThenFree(t *testing.T) {
	var keysFreed int
	typ := intType()
	typ.KeyDestructor = func(d *Dict, key any) { keysFreed++ }
	d := New(typ)

	require.NoError(t, d.Add(1, "v"))
	entry, err := d.Unlink(1)
	require.NoError(t, err)

	// The entry survives between unlink and free.
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, "v", entry.Val())
	assert.Zero(t, keysFreed)

	d.FreeUnlinkedEntry(entry)
	assert.Equal(t, 1, keysFreed)

	_, err = d.Unlink(1)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDict_DeleteMissing(t *testing.T) {
	d := New(intType())
	assert.ErrorIs(t, d.Delete(99), ErrKeyNotFound)
	require.NoError(t, d.Add(1, "v"))
	assert.ErrorIs(t, d.Delete(99), ErrKeyNotFound)
}

func TestDict_RoundTrip(t *testing.T) {
	d := New(intType())
	const n = 500

	for i := 0; i < n; i++ {
		require.NoError(t, d.Add(i, i*10))
	}
	require.Equal(t, n, d.Len())

	seen := make(map[int]int)
	it := d.SafeIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		seen[entry.Key().(int)]++
	}
	it.Release()

	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[i], "key %d", i)
	}
}

func TestDict_LoadTriggeredGrowth(t *testing.T) {
	d := New(intType())

	// Fill the initial table to its size; the next insert must start a
	// migration.
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Add(i, i))
	}
	assert.True(t, d.IsRehashing() || d.Slots() >= d.Len())

	for i := 5; i < 1024; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)

	assert.Equal(t, 1024, d.Len())
	assert.GreaterOrEqual(t, d.Slots(), 1024)
}

func TestDict_ScenarioBulk(t *testing.T) {
	d := New(intType())
	for i := 0; i < 1024; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)

	require.Equal(t, 1024, d.Len())
	require.GreaterOrEqual(t, d.Slots(), 1024)

	// A full scan over a quiet table yields every key exactly once.
	seen := make(map[int]int)
	cursor := uint64(0)
	for {
		cursor = d.Scan(cursor, func(e *Entry) {
			seen[e.Key().(int)]++
		})
		if cursor == 0 {
			break
		}
	}
	require.Len(t, seen, 1024)
	for k, c := range seen {
		require.Equal(t, 1, c, "key %d scanned %d times", k, c)
	}
}

func TestDict_ExpandWhileRehashing(t *testing.T) {
	d := New(intType())
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	require.NoError(t, d.Expand(64))
	require.True(t, d.IsRehashing())

	assert.ErrorIs(t, d.Expand(256), ErrRehashing)
	finishRehash(t, d)
	require.NoError(t, d.Expand(256))
}

func TestDict_ExpandSameSizeNoop(t *testing.T) {
	d := New(intType())
	require.NoError(t, d.Add(1, 1))
	slots := d.Slots()
	require.NoError(t, d.Expand(uint64(slots)))
	assert.False(t, d.IsRehashing())
}

func TestDict_Resize(t *testing.T) {
	d := New(intType())
	for i := 0; i < 300; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	for i := 10; i < 300; i++ {
		require.NoError(t, d.Delete(i))
	}

	grown := d.Slots()
	require.NoError(t, d.Resize())
	finishRehash(t, d)
	assert.Less(t, d.Slots(), grown)
	assert.Equal(t, 10, d.Len())
}

func TestDict_ResizeDisabled(t *testing.T) {
	d := New(intType(), WithResizeEnabled(false))
	for i := 0; i < 64; i++ {
		require.NoError(t, d.Add(i, i))
	}
	assert.ErrorIs(t, d.Resize(), ErrRehashing)

	// Growth is still forced once the load factor hits the hard ratio.
	for i := 64; i < 4096; i++ {
		require.NoError(t, d.Add(i, i))
	}
	finishRehash(t, d)
	assert.Equal(t, 4096, d.Len())
	for i := 0; i < 4096; i++ {
		require.NotNil(t, d.Find(i))
	}
}

func TestDict_ExpandAllowedHookVeto(t *testing.T) {
	typ := intType()
	typ.ExpandAllowed = func(moreMem uintptr, usedRatio float64) bool {
		return false
	}
	d := New(typ)

	for i := 0; i < 64; i++ {
		require.NoError(t, d.Add(i, i))
	}
	// The hook vetoes every automatic growth; the table stays at its
	// initial size with long chains.
	assert.False(t, d.IsRehashing())
	assert.Equal(t, 4, d.Slots())

	// Explicit expansion ignores the hook.
	require.NoError(t, d.Expand(128))
	assert.True(t, d.IsRehashing())
}

func TestDict_EmptyAndReuse(t *testing.T) {
	var callbacks int
	d := New(intType())
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Add(i, i))
	}

	d.Empty(func(d *Dict) { callbacks++ })
	assert.Equal(t, 0, d.Len())
	assert.Positive(t, callbacks)

	require.NoError(t, d.Add(1, "back"))
	assert.Equal(t, "back", d.FetchValue(1))
}

func TestDict_ReleaseRunsDestructors(t *testing.T) {
	var keys, vals int
	typ := intType()
	typ.KeyDestructor = func(d *Dict, key any) { keys++ }
	typ.ValDestructor = func(d *Dict, val any) { vals++ }
	d := New(typ)

	for i := 0; i < 50; i++ {
		require.NoError(t, d.Add(i, i))
	}
	d.Release()

	assert.Equal(t, 50, keys)
	assert.Equal(t, 50, vals)
	assert.Equal(t, 0, d.Len())
}

func TestDict_KeyDupAndCompare(t *testing.T) {
	// A byte-slice key space: uncomparable keys forced through the
	// copy and compare hooks.
	typ := &Type{
		Hash: func(key any) uint64 { return GenHashFunction(key.([]byte)) },
		KeyDup: func(d *Dict, key any) any {
			return append([]byte(nil), key.([]byte)...)
		},
		KeyCompare: func(d *Dict, key1, key2 any) bool {
			return string(key1.([]byte)) == string(key2.([]byte))
		},
	}
	d := New(typ)

	k := []byte("shared-buffer")
	require.NoError(t, d.Add(k, 1))

	// Mutating the caller's buffer must not affect the stored key.
	k[0] = 'X'
	assert.Nil(t, d.Find(k))
	assert.NotNil(t, d.Find([]byte("shared-buffer")))
}

func TestDict_EntryMetadata(t *testing.T) {
	typ := intType()
	typ.EntryMetadataBytes = func(d *Dict) int { return 16 }
	d := New(typ)

	entry, _ := d.AddRaw(1)
	require.Len(t, entry.Metadata(), 16)
	for _, b := range entry.Metadata() {
		assert.Zero(t, b)
	}

	// The region is caller-writable and stable.
	copy(entry.Metadata(), "hello")
	assert.Equal(t, byte('h'), d.Find(1).Metadata()[0])
}

func TestDict_StringKeys(t *testing.T) {
	SetHashFunctionSeed([]byte("0123456789abcdef"))
	d := New(stringType())

	for i := 0; i < 200; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("key:%d", i), i))
	}
	for i := 0; i < 200; i++ {
		assert.Equal(t, i, d.FetchValue(fmt.Sprintf("key:%d", i)))
	}
}

func TestDict_HashAndFindByPtr(t *testing.T) {
	d := New(intType())
	require.NoError(t, d.Add(42, "v"))

	h := d.Hash(42)
	entry := d.FindEntryByPtrAndHash(42, h)
	require.NotNil(t, entry)
	assert.Equal(t, "v", entry.Val())

	assert.Nil(t, d.FindEntryByPtrAndHash(43, d.Hash(43)))
}

func TestDict_Stats(t *testing.T) {
	d := New(intType())
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Add(i, i))
	}
	// Main describes table 0 only; finish the migration so it holds
	// every entry.
	finishRehash(t, d)
	st := d.Stats()
	assert.Equal(t, uint64(100), st.Main.Used)
	assert.NotEmpty(t, st.String())
}

// Distinct instances are fully independent and may be driven from
// different goroutines.
func TestDict_InstanceIndependence(t *testing.T) {
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			d := New(intType())
			for i := 0; i < 1000; i++ {
				if err := d.Add(i, i); err != nil {
					return err
				}
			}
			if d.Len() != 1000 {
				return fmt.Errorf("len = %d, want 1000", d.Len())
			}
			for i := 0; i < 1000; i += 7 {
				if err := d.Delete(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
