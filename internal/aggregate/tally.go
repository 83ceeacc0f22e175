package aggregate

import (
	"sort"

	"github.com/samber/lo"
)

// Tally counts occurrences per reason
type Tally map[string]int

// Add increments a reason
func (t Tally) Add(reason string) {
	t[reason]++
}

// Merge adds every count of other into t
func (t Tally) Merge(other Tally) {
	for reason, n := range other {
		t[reason] += n
	}
}

// Total sums all reasons
func (t Tally) Total() int {
	return lo.Sum(lo.Values(map[string]int(t)))
}

// Reasons returns the reasons sorted by name
func (t Tally) Reasons() []string {
	reasons := lo.Keys(map[string]int(t))
	sort.Strings(reasons)
	return reasons
}
