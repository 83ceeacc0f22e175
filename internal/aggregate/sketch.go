package aggregate

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// sketchSigFigs bounds the relative error of every estimate to 0.1%.
const sketchSigFigs = 3

// hourlyCounts accumulates qualifying records per UTC hour. Counts for the
// same hour from different partitions simply add, so merging is exact.
type hourlyCounts map[int64]int64

func (h hourlyCounts) add(t time.Time) {
	h[t.UTC().Truncate(time.Hour).Unix()]++
}

func (h hourlyCounts) merge(other hourlyCounts) {
	for hour, n := range other {
		h[hour] += n
	}
}

// quantiles feeds the per-hour counts into an HDR histogram and reads the
// requested ranks. Hours without any qualifying record are not observed.
// ok is false when no hour was observed.
func (h hourlyCounts) quantiles(qs []float64) (values []int64, ok bool) {
	if len(h) == 0 {
		return nil, false
	}

	var highest int64 = 2
	for _, n := range h {
		if n > highest {
			highest = n
		}
	}

	hist := hdrhistogram.New(1, highest, sketchSigFigs)
	for _, n := range h {
		// n is within [1, highest] by construction.
		_ = hist.RecordValue(n)
	}

	values = make([]int64, len(qs))
	for i, q := range qs {
		values[i] = hist.ValueAtQuantile(q * 100)
	}
	return values, true
}
