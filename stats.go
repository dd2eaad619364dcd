package chashtable

import (
	"fmt"
	"io"

	"github.com/llxisdsh/chashtable/internal/epoch"
)

// MapStats is a snapshot of bucket occupancy, grounded on this
// codebase's teacher's own Stats()/MapStats/ToString() pattern. Like
// the system this table's design is drawn from, the walk skips any
// bucket it finds locked or redirected rather than waiting for it, so
// under sustained resize or bulk-delete activity these numbers can
// under-count — they are advisory only, never consulted by a
// correctness-relevant path.
type MapStats struct {
	Log2Size       int
	Buckets        int
	TotalNodes     int64
	EmptyBuckets   int
	MinChain       int
	MaxChain       int
	SkippedBuckets int
}

func (s MapStats) String() string {
	return fmt.Sprintf(
		"chashtable: log2size=%d buckets=%d nodes=%d empty=%d minChain=%d maxChain=%d skipped=%d",
		s.Log2Size, s.Buckets, s.TotalNodes, s.EmptyBuckets, s.MinChain, s.MaxChain, s.SkippedBuckets,
	)
}

// Stats takes a point-in-time, best-effort snapshot of the table.
func (t *Table[V]) Stats(th *epoch.Thread) MapStats {
	tab := t.tablePtr.Load()
	s := MapStats{Log2Size: tab.log2, Buckets: len(tab.buckets)}
	minChain := -1

	for i := range tab.buckets {
		b := &tab.buckets[i]
		raw := b.firstRaw()
		if isLocked(raw) || hasRedirect(raw) {
			s.SkippedBuckets++
			continue
		}

		t.enterEpoch(th)
		length := 0
		for n := untagNode[V](raw); n != nil; n = n.loadNext() {
			length++
		}
		t.exitEpoch(th)

		s.TotalNodes += int64(length)
		if length == 0 {
			s.EmptyBuckets++
		}
		if length > s.MaxChain {
			s.MaxChain = length
		}
		if minChain == -1 || length < minChain {
			minChain = length
		}
	}
	if minChain >= 0 {
		s.MinChain = minChain
	}
	return s
}

// StatisticsTo writes a one-line human-readable summary of Stats to w,
// prefixed with name.
func (t *Table[V]) StatisticsTo(th *epoch.Thread, w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", name, t.Stats(th).String())
	return err
}
