// Package dict implements an incrementally-resizable chained hash map.
//
// A Dict holds two bucket tables so that growing or shrinking can be
// performed as a live, bounded-work migration instead of a single
// stop-the-world pass. Each insert, lookup or delete moves at most one
// bucket of the migration forward, keeping per-operation latency flat
// regardless of table size.
//
// Dicts are single-writer structures: the host must serialize all calls
// to one instance. Distinct instances are fully independent.
package dict

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/seehuhn/mt19937"
)

const (
	// initialExp sizes the first allocated table at 1<<initialExp.
	initialExp = 2

	// forceResizeRatio is the load factor past which growth happens even
	// while resizing is disabled.
	forceResizeRatio = 5

	// emptyClearCallbackMask spaces out Empty's host callback: it fires
	// once per 65536 buckets cleared.
	emptyClearCallbackMask = 65535

	// entryOverheadBytes approximates the allocation cost of one entry,
	// used when consulting the ExpandAllowed hook.
	entryOverheadBytes = 64
)

var (
	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = errors.New("dict: key already exists")
	// ErrKeyNotFound is returned by Delete and Unlink for absent keys.
	ErrKeyNotFound = errors.New("dict: key not found")
	// ErrRehashing is returned by Expand and Resize while a migration is
	// in progress.
	ErrRehashing = errors.New("dict: rehashing in progress")
	// ErrInvalidSize is returned by TryExpand for sizes that cannot be
	// represented as a power-of-two table.
	ErrInvalidSize = errors.New("dict: invalid table size")
)

// table is one of the two bucket arrays. exp == -1 means the table is
// not allocated.
type table struct {
	buckets []*Entry
	used    uint64
	exp     int8
}

func (t *table) size() uint64 {
	if t.exp == -1 {
		return 0
	}
	return 1 << uint(t.exp)
}

func (t *table) mask() uint64 {
	if t.exp == -1 {
		return 0
	}
	return (1 << uint(t.exp)) - 1
}

func (t *table) reset() {
	t.buckets = nil
	t.used = 0
	t.exp = -1
}

// Dict is an incrementally-resizable chained hash map.
type Dict struct {
	typ         *Type
	ht          [2]table
	rehashidx   int64 // -1 when no migration is in progress
	pauserehash int16 // >0 pauses migration steps; <0 is a programming error

	opts options
	rng  *rand.Rand
}

// New creates an empty Dict with the given Type. The Type's Hash hook is
// mandatory.
func New(typ *Type, optFns ...Option) *Dict {
	if typ == nil || typ.Hash == nil {
		panic("dict: Type with a Hash hook is required")
	}
	d := &Dict{
		typ:       typ,
		rehashidx: -1,
		opts:      applyOptions(optFns),
	}
	d.ht[0].reset()
	d.ht[1].reset()
	return d
}

// Len returns the number of entries across both tables.
func (d *Dict) Len() int {
	return int(d.ht[0].used + d.ht[1].used)
}

// Slots returns the total bucket count across both tables.
func (d *Dict) Slots() int {
	return int(d.ht[0].size() + d.ht[1].size())
}

// IsRehashing reports whether a live migration is in progress.
func (d *Dict) IsRehashing() bool {
	return d.rehashidx != -1
}

// Hash returns the Dict's hash of key, for callers that cache hashes
// across calls.
func (d *Dict) Hash(key any) uint64 {
	return d.typ.Hash(key)
}

func (d *Dict) resizeAllowed() bool {
	if d.opts.resizeAllowed != nil {
		return *d.opts.resizeAllowed
	}
	return canResize.Load()
}

// nextExp returns the exponent of the smallest power of two >= size,
// never below the initial table size.
func nextExp(size uint64) int8 {
	if size <= 1<<initialExp {
		return initialExp
	}
	exp := int8(initialExp)
	for uint64(1)<<uint(exp) < size {
		exp++
		if exp >= 63 {
			return 63
		}
	}
	return exp
}

// expand sizes the Dict for at least size entries. With try set,
// unrepresentable sizes are reported instead of being clamped.
func (d *Dict) expand(size uint64, try bool) error {
	if d.IsRehashing() || d.ht[0].used > size {
		return ErrRehashing
	}

	exp := nextExp(size)
	if try && uint64(1)<<uint(exp) < size {
		return ErrInvalidSize
	}
	if exp == d.ht[0].exp {
		// Already at the target size; nothing to migrate.
		return nil
	}

	newTable := table{
		buckets: make([]*Entry, uint64(1)<<uint(exp)),
		exp:     exp,
	}

	// First allocation goes straight into slot 0 with no migration.
	if d.ht[0].exp == -1 {
		d.ht[0] = newTable
		return nil
	}

	d.ht[1] = newTable
	d.rehashidx = 0
	d.opts.logger.Debug("rehash started",
		"from", d.ht[0].size(),
		"to", d.ht[1].size(),
		"used", d.ht[0].used,
	)
	return nil
}

// Expand grows (or pre-sizes) the Dict to hold at least size entries.
// Expanding to the current size is a no-op. Expanding while a migration
// is in progress fails.
func (d *Dict) Expand(size uint64) error {
	return d.expand(size, false)
}

// TryExpand is Expand with unrepresentable sizes reported via
// ErrInvalidSize rather than clamped.
func (d *Dict) TryExpand(size uint64) error {
	return d.expand(size, true)
}

// Resize shrinks the table toward the smallest power of two that holds
// the current entries. It fails while resizing is disabled or a
// migration is in progress.
func (d *Dict) Resize() error {
	if !d.resizeAllowed() || d.IsRehashing() {
		return ErrRehashing
	}
	minimal := d.ht[0].used
	if minimal < 1<<initialExp {
		minimal = 1 << initialExp
	}
	return d.expand(minimal, false)
}

// expandIfNeeded begins a migration when the load factor calls for one.
func (d *Dict) expandIfNeeded() {
	if d.IsRehashing() {
		return
	}

	// Lazily allocate the first table.
	if d.ht[0].exp == -1 {
		_ = d.expand(1<<initialExp, false)
		return
	}

	used, size := d.ht[0].used, d.ht[0].size()
	if used < size {
		return
	}
	if !d.resizeAllowed() && used/size < forceResizeRatio {
		return
	}
	if d.typ.ExpandAllowed != nil {
		moreMem := uintptr(uint64(1)<<uint(nextExp(used+1)))*8 + uintptr(used)*entryOverheadBytes
		if !d.typ.ExpandAllowed(moreMem, float64(used)/float64(size)) {
			return
		}
	}
	_ = d.expand(used+1, false)
}

// keyIndex locates the bucket for a new key in the insert-target table,
// or reports the existing entry. A -1 index means the key is present.
func (d *Dict) keyIndex(key any, hash uint64) (idx int64, existing *Entry) {
	d.expandIfNeeded()

	for tbl := 0; tbl <= 1; tbl++ {
		t := &d.ht[tbl]
		idx = int64(hash & t.mask())
		for he := t.buckets[idx]; he != nil; he = he.next {
			if d.typ.compare(d, key, he.key) {
				return -1, he
			}
		}
		if !d.IsRehashing() {
			break
		}
	}
	return idx, nil
}

// AddRaw inserts key with an unset value slot, or returns the already
// present entry with existed set. The caller fills the value slot via
// SetVal or the numeric setters.
func (d *Dict) AddRaw(key any) (entry *Entry, existed bool) {
	if d.IsRehashing() {
		d.rehashStepIfAllowed()
	}

	idx, existing := d.keyIndex(key, d.typ.Hash(key))
	if existing != nil {
		return existing, true
	}

	// Insert into table 1 while migrating so the new entry is never
	// scanned twice by the rehash driver.
	t := &d.ht[0]
	if d.IsRehashing() {
		t = &d.ht[1]
	}

	entry = &Entry{next: t.buckets[idx]}
	if mb := d.typ.metadataBytes(d); mb > 0 {
		entry.meta = make([]byte, mb)
	}
	t.buckets[idx] = entry
	t.used++

	if d.typ.KeyDup != nil {
		entry.key = d.typ.KeyDup(d, key)
	} else {
		entry.key = key
	}
	return entry, false
}

// AddOrFind returns the entry for key, inserting it if absent.
func (d *Dict) AddOrFind(key any) *Entry {
	entry, _ := d.AddRaw(key)
	return entry
}

// Add inserts key with a pointer value. ErrKeyExists is returned when
// the key is already present.
func (d *Dict) Add(key, val any) error {
	entry, existed := d.AddRaw(key)
	if existed {
		return ErrKeyExists
	}
	d.SetVal(entry, val)
	return nil
}

// Replace sets key to val, inserting it if absent. It reports whether
// the key was newly inserted.
func (d *Dict) Replace(key, val any) bool {
	entry, existed := d.AddRaw(key)
	if !existed {
		d.SetVal(entry, val)
		return true
	}

	// Set the new value before destroying the old one, so replacing a
	// reference-counted value with itself stays safe.
	old := *entry
	d.SetVal(entry, val)
	d.freeVal(&old)
	return false
}

// SetVal stores a pointer value into entry, applying the ValDup hook
// when present.
func (d *Dict) SetVal(entry *Entry, val any) {
	if d.typ.ValDup != nil {
		val = d.typ.ValDup(d, val)
	}
	entry.vp = val
	entry.kind = KindPointer
}

func (d *Dict) freeKey(entry *Entry) {
	if d.typ.KeyDestructor != nil {
		d.typ.KeyDestructor(d, entry.key)
	}
}

func (d *Dict) freeVal(entry *Entry) {
	if entry.kind == KindPointer && d.typ.ValDestructor != nil {
		d.typ.ValDestructor(d, entry.vp)
	}
}

// Find returns the entry for key, or nil.
func (d *Dict) Find(key any) *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStepIfAllowed()
	}

	hash := d.typ.Hash(key)
	for tbl := 0; tbl <= 1; tbl++ {
		t := &d.ht[tbl]
		idx := hash & t.mask()
		for he := t.buckets[idx]; he != nil; he = he.next {
			if d.typ.compare(d, key, he.key) {
				return he
			}
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// FetchValue returns key's pointer value, or nil when the key is absent
// or holds a numeric variant.
func (d *Dict) FetchValue(key any) any {
	entry := d.Find(key)
	if entry == nil {
		return nil
	}
	return entry.Val()
}

// FindEntryByPtrAndHash locates the entry whose key is identical (in
// the == sense, bypassing the KeyCompare hook) to oldKey, given a
// precomputed hash. Hosts use it to re-point keys in place.
func (d *Dict) FindEntryByPtrAndHash(oldKey any, hash uint64) *Entry {
	if d.Len() == 0 {
		return nil
	}
	for tbl := 0; tbl <= 1; tbl++ {
		t := &d.ht[tbl]
		idx := hash & t.mask()
		for he := t.buckets[idx]; he != nil; he = he.next {
			if he.key == oldKey {
				return he
			}
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// genericDelete unlinks key's entry, optionally destroying it.
func (d *Dict) genericDelete(key any, nofree bool) *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStepIfAllowed()
	}

	hash := d.typ.Hash(key)
	for tbl := 0; tbl <= 1; tbl++ {
		t := &d.ht[tbl]
		idx := hash & t.mask()
		var prev *Entry
		for he := t.buckets[idx]; he != nil; he = he.next {
			if d.typ.compare(d, key, he.key) {
				if prev != nil {
					prev.next = he.next
				} else {
					t.buckets[idx] = he.next
				}
				he.next = nil
				t.used--
				if !nofree {
					d.FreeUnlinkedEntry(he)
				}
				return he
			}
			prev = he
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// Delete removes key and destroys its entry.
func (d *Dict) Delete(key any) error {
	if d.genericDelete(key, false) == nil {
		return ErrKeyNotFound
	}
	return nil
}

// Unlink removes key's entry from the Dict without destroying it, so
// the caller can use the entry before handing it to
// FreeUnlinkedEntry.
func (d *Dict) Unlink(key any) (*Entry, error) {
	entry := d.genericDelete(key, true)
	if entry == nil {
		return nil, ErrKeyNotFound
	}
	return entry, nil
}

// FreeUnlinkedEntry destroys an entry previously removed with Unlink.
// Passing nil is a no-op.
func (d *Dict) FreeUnlinkedEntry(entry *Entry) {
	if entry == nil {
		return
	}
	d.freeKey(entry)
	d.freeVal(entry)
}

// clearTable destroys every entry of t. callback, when set, fires every
// 65536 buckets to give the host a yield point.
func (d *Dict) clearTable(t *table, callback func(*Dict)) {
	size := t.size()
	for i := uint64(0); i < size && t.used > 0; i++ {
		if callback != nil && i&emptyClearCallbackMask == 0 {
			callback(d)
		}
		he := t.buckets[i]
		for he != nil {
			next := he.next
			d.freeKey(he)
			d.freeVal(he)
			t.used--
			he = next
		}
	}
	t.reset()
}

// Empty removes every entry while keeping the Dict usable. callback,
// when non-nil, is invoked periodically during the clear.
func (d *Dict) Empty(callback func(*Dict)) {
	d.clearTable(&d.ht[0], callback)
	d.clearTable(&d.ht[1], callback)
	d.rehashidx = -1
	d.pauserehash = 0
}

// Release destroys every entry and returns the Dict to its initial
// empty state. The Dict must not be used while iterators are open.
func (d *Dict) Release() {
	d.Empty(nil)
}

func (d *Dict) lazyRNG() *rand.Rand {
	if d.rng == nil {
		src := mt19937.New()
		seed := d.opts.randomSeed
		if seed == 0 {
			seed = int64(GenHashFunction([]byte(fmt.Sprintf("%p", d))))
		}
		src.Seed(seed)
		d.rng = rand.New(src)
	}
	return d.rng
}
