package dict

import (
	"fmt"
	"strings"
)

// statsVectLen caps the chain-length histogram; longer chains land in
// the last bucket.
const statsVectLen = 50

// TableStats describes one bucket table.
type TableStats struct {
	Size            uint64
	Used            uint64
	UsedBuckets     uint64
	MaxChainLen     uint64
	AvgChainLen     float64
	ChainLengths    [statsVectLen]uint64
	TotalChainBytes uint64
}

// Stats describes a Dict's two tables. Rehashing is nil when no
// migration is in progress.
type Stats struct {
	Main      TableStats
	Rehashing *TableStats
}

func tableStats(t *table) TableStats {
	st := TableStats{Size: t.size(), Used: t.used}
	if t.exp == -1 {
		return st
	}
	var totChainLen uint64
	for _, he := range t.buckets {
		if he == nil {
			st.ChainLengths[0]++
			continue
		}
		st.UsedBuckets++
		chainLen := uint64(0)
		for ; he != nil; he = he.next {
			chainLen++
		}
		idx := chainLen
		if idx >= statsVectLen {
			idx = statsVectLen - 1
		}
		st.ChainLengths[idx]++
		if chainLen > st.MaxChainLen {
			st.MaxChainLen = chainLen
		}
		totChainLen += chainLen
	}
	if st.UsedBuckets > 0 {
		st.AvgChainLen = float64(totChainLen) / float64(st.UsedBuckets)
	}
	return st
}

// Stats computes per-table usage and chain-length statistics.
func (d *Dict) Stats() Stats {
	st := Stats{Main: tableStats(&d.ht[0])}
	if d.IsRehashing() {
		r := tableStats(&d.ht[1])
		st.Rehashing = &r
	}
	return st
}

func (ts TableStats) render(b *strings.Builder, name string) {
	if ts.Size == 0 {
		fmt.Fprintf(b, "%s: empty\n", name)
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	fmt.Fprintf(b, " table size: %d\n", ts.Size)
	fmt.Fprintf(b, " number of elements: %d\n", ts.Used)
	fmt.Fprintf(b, " different slots: %d\n", ts.UsedBuckets)
	fmt.Fprintf(b, " max chain length: %d\n", ts.MaxChainLen)
	fmt.Fprintf(b, " avg chain length: %.02f\n", ts.AvgChainLen)
	for i, n := range ts.ChainLengths {
		if n == 0 {
			continue
		}
		fmt.Fprintf(b, "   %d: %d (%.02f%%)\n", i, n, float64(n)/float64(ts.Size)*100)
	}
}

// String renders the statistics in a human-readable multi-line form.
func (s Stats) String() string {
	var b strings.Builder
	s.Main.render(&b, "main hash table")
	if s.Rehashing != nil {
		s.Rehashing.render(&b, "rehashing target")
	}
	return b.String()
}
