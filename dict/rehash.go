package dict

import (
	"time"
	"unsafe"
)

// rehashBatch is the bucket batch size used by RehashMilliseconds.
const rehashBatch = 100

// Rehash moves up to n non-empty buckets from table 0 to table 1. To
// bound latency on sparse tables it gives up after visiting 10*n empty
// buckets, even if fewer than n buckets were migrated. It reports
// whether migration work remains.
func (d *Dict) Rehash(n int) bool {
	if !d.IsRehashing() {
		return false
	}
	if d.pauserehash > 0 {
		// Paused: report pending work without touching the cursor.
		return true
	}
	emptyVisits := n * 10

	for ; n > 0 && d.ht[0].used != 0; n-- {
		if uint64(d.rehashidx) >= d.ht[0].size() {
			panic("dict: rehash cursor past table end")
		}
		for d.ht[0].buckets[d.rehashidx] == nil {
			d.rehashidx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}

		// Move the whole chain, re-bucketing each entry under the new
		// mask.
		he := d.ht[0].buckets[d.rehashidx]
		for he != nil {
			next := he.next
			idx := d.typ.Hash(he.key) & d.ht[1].mask()
			he.next = d.ht[1].buckets[idx]
			d.ht[1].buckets[idx] = he
			d.ht[0].used--
			d.ht[1].used++
			he = next
		}
		d.ht[0].buckets[d.rehashidx] = nil
		d.rehashidx++
	}

	if d.ht[0].used == 0 {
		d.ht[0] = d.ht[1]
		d.ht[1].reset()
		d.rehashidx = -1
		d.opts.logger.Debug("rehash finished", "size", d.ht[0].size(), "used", d.ht[0].used)
		return false
	}
	return true
}

// rehashStepIfAllowed performs one bounded migration step unless a
// pause is in effect. It is called from the top of mutating and probing
// operations.
func (d *Dict) rehashStepIfAllowed() {
	if d.pauserehash == 0 {
		d.Rehash(1)
	}
}

// RehashMilliseconds migrates buckets in batches of 100 until the
// wall-clock budget is exhausted, returning the number of batches
// completed. It is a no-op while rehashing is paused.
func (d *Dict) RehashMilliseconds(ms int) int {
	if d.pauserehash > 0 {
		return 0
	}

	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	batches := 0
	for d.Rehash(rehashBatch) {
		batches++
		if !time.Now().Before(deadline) {
			break
		}
	}
	return batches
}

// PauseRehash suspends incremental migration steps and returns the
// matching resume function. Pauses nest; migration continues once every
// pause has been resumed. Resuming more times than paused is a
// programming error and panics.
func (d *Dict) PauseRehash() (resume func()) {
	d.pauseRehashing()
	released := false
	return func() {
		if released {
			panic("dict: rehash pause released twice")
		}
		released = true
		d.resumeRehashing()
	}
}

func (d *Dict) pauseRehashing() {
	d.pauserehash++
}

func (d *Dict) resumeRehashing() {
	d.pauserehash--
	if d.pauserehash < 0 {
		panic("dict: pauserehash underflow")
	}
}

// fingerprint derives a single integer from the Dict's structural
// state. Unsafe iterators capture it at creation and verify it at
// release: a changed fingerprint means the Dict was mutated during
// unsafe iteration, which is a fatal misuse.
func (d *Dict) fingerprint() uint64 {
	integers := [6]uint64{
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[0].buckets)))),
		uint64(d.ht[0].exp),
		d.ht[0].used,
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[1].buckets)))),
		uint64(d.ht[1].exp),
		d.ht[1].used,
	}

	// Tomas Wang's 64-bit integer hash, folded over the six fields.
	var hash uint64
	for _, v := range integers {
		hash += v
		hash = ^hash + (hash << 21)
		hash = hash ^ (hash >> 24)
		hash = (hash + (hash << 3)) + (hash << 8)
		hash = hash ^ (hash >> 14)
		hash = (hash + (hash << 2)) + (hash << 4)
		hash = hash ^ (hash >> 28)
		hash = hash + (hash << 31)
	}
	return hash
}
