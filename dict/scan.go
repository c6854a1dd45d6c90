package dict

import "math/bits"

// ScanFunc receives one entry per yielded element.
type ScanFunc func(entry *Entry)

// BucketFunc receives a pointer to each visited bucket head, letting
// defragmenting hosts rewrite chain pointers in place.
type BucketFunc func(d *Dict, ref **Entry)

// Scan visits the Dict one bucket per call, guided by an opaque cursor.
// Start with cursor 0 and feed each return value back in; a returned 0
// means the cycle is complete.
//
// The cursor walks bucket indices by incrementing the masked bits in
// reverse-binary order, which keeps the guarantee stable across
// resizes: every key present for the whole cycle is yielded at least
// once, keys added or removed mid-cycle may be yielded zero, one or
// (rarely) two times, and no resize loses keys. While a migration is in
// progress both tables' matching buckets are visited.
func (d *Dict) Scan(cursor uint64, fn ScanFunc) uint64 {
	return d.ScanDefrag(cursor, fn, nil)
}

// ScanDefrag is Scan with an additional per-bucket callback.
func (d *Dict) ScanDefrag(cursor uint64, fn ScanFunc, bucketfn BucketFunc) uint64 {
	if d.Len() == 0 {
		return 0
	}

	// A migration step between two Scan calls would otherwise split
	// chains between tables mid-cycle in a way the cursor can't track.
	d.pauseRehashing()
	defer d.resumeRehashing()

	if !d.IsRehashing() {
		t := &d.ht[0]
		m := t.mask()

		if bucketfn != nil {
			bucketfn(d, &t.buckets[cursor&m])
		}
		for he := t.buckets[cursor&m]; he != nil; he = he.next {
			fn(he)
		}

		cursor |= ^m
		cursor = bits.Reverse64(cursor)
		cursor++
		cursor = bits.Reverse64(cursor)
		return cursor
	}

	t0, t1 := &d.ht[0], &d.ht[1]
	if t0.size() > t1.size() {
		t0, t1 = t1, t0
	}
	m0, m1 := t0.mask(), t1.mask()

	if bucketfn != nil {
		bucketfn(d, &t0.buckets[cursor&m0])
	}
	for he := t0.buckets[cursor&m0]; he != nil; he = he.next {
		fn(he)
	}

	// Visit every bucket of the larger table that expands the smaller
	// table's bucket, iterating the high bits in reverse-binary order.
	for {
		if bucketfn != nil {
			bucketfn(d, &t1.buckets[cursor&m1])
		}
		for he := t1.buckets[cursor&m1]; he != nil; he = he.next {
			fn(he)
		}

		cursor |= ^m1
		cursor = bits.Reverse64(cursor)
		cursor++
		cursor = bits.Reverse64(cursor)

		if cursor&(m0^m1) == 0 {
			break
		}
	}
	return cursor
}
