package dict

// fairSampleSize is how many candidates FairRandomEntry gathers before
// picking one uniformly.
const fairSampleSize = 15

// RandomEntry returns a random entry, or nil when the Dict is empty.
// The distribution is only amortized-uniform: a random bucket is picked
// first, then a random position in its chain, so keys in short chains
// are slightly favored per-call.
func (d *Dict) RandomEntry() *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStepIfAllowed()
	}
	rng := d.lazyRNG()

	var he *Entry
	if d.IsRehashing() {
		s0 := d.ht[0].size()
		slots := s0 + d.ht[1].size()
		for he == nil {
			// Buckets below rehashidx in table 0 are already drained;
			// skip them outright.
			h := uint64(d.rehashidx) + rng.Uint64()%(slots-uint64(d.rehashidx))
			if h >= s0 {
				he = d.ht[1].buckets[h-s0]
			} else {
				he = d.ht[0].buckets[h]
			}
		}
	} else {
		m := d.ht[0].mask()
		for he == nil {
			he = d.ht[0].buckets[rng.Uint64()&m]
		}
	}

	// Second pass: uniform position within the chosen chain.
	listlen := 0
	for cur := he; cur != nil; cur = cur.next {
		listlen++
	}
	for skip := rng.Intn(listlen); skip > 0; skip-- {
		he = he.next
	}
	return he
}

// FairRandomEntry returns a random entry with a distribution closer to
// uniform than RandomEntry, by cluster-sampling several buckets and
// picking uniformly among the collected candidates.
func (d *Dict) FairRandomEntry() *Entry {
	entries := make([]*Entry, fairSampleSize)
	count := d.SomeEntries(entries)
	if count == 0 {
		// Sampling can come up dry on sparse tables; fall back to the
		// cheaper primitive.
		return d.RandomEntry()
	}
	return entries[d.lazyRNG().Intn(count)]
}

// SomeEntries fills entries with up to len(entries) random entries by
// sampling contiguous bucket clusters, returning the number stored. The
// result may contain duplicates and is biased toward the cluster
// layout; it is meant for eviction-candidate pools, not exact
// sampling.
func (d *Dict) SomeEntries(entries []*Entry) int {
	count := len(entries)
	if d.Len() < count {
		count = d.Len()
	}
	if count == 0 {
		return 0
	}
	rng := d.lazyRNG()

	// Run one migration step per requested key so sampling during a
	// rehash keeps making progress.
	for j := 0; j < count; j++ {
		if !d.IsRehashing() {
			break
		}
		d.rehashStepIfAllowed()
	}

	tables := 1
	if d.IsRehashing() {
		tables = 2
	}
	maxSizeMask := d.ht[0].mask()
	if tables > 1 && d.ht[1].mask() > maxSizeMask {
		maxSizeMask = d.ht[1].mask()
	}

	i := rng.Uint64() & maxSizeMask
	emptyLen := 0
	stored := 0
	for maxSteps := count * 10; stored < count && maxSteps > 0; maxSteps-- {
		for j := 0; j < tables; j++ {
			// While rehashing there are no buckets below rehashidx in
			// table 0; jump the cursor past the drained region.
			if tables == 2 && j == 0 && i < uint64(d.rehashidx) {
				if i >= d.ht[1].size() {
					i = uint64(d.rehashidx)
				} else {
					continue
				}
			}
			if i >= d.ht[j].size() {
				continue
			}
			he := d.ht[j].buckets[i]

			// Walking away after a few consecutive empty buckets (with
			// a reseed) avoids scanning long runs of nothing.
			if he == nil {
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					i = rng.Uint64() & maxSizeMask
					emptyLen = 0
				}
			} else {
				emptyLen = 0
				for he != nil {
					entries[stored] = he
					stored++
					he = he.next
					if stored == count {
						return stored
					}
				}
			}
		}
		i = (i + 1) & maxSizeMask
	}
	return stored
}
