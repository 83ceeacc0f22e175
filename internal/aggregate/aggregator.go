// Package aggregate buckets immutable fact records into overlapping period
// windows and reduces them into additive metrics per grouping key.
package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RejectMissingEventDate is the tally reason for records without a usable event date.
const RejectMissingEventDate = "missing_event_date"

const keySep = "\x1f"

// bucketKey separates the rollup of a level from its concrete groups so a
// dimension value equal to AllGroup never shares the rollup bucket.
type bucketKey struct {
	level  int
	rollup bool
	group  string
	period int
}

type accumulator struct {
	sums     map[string]decimal.Decimal
	counts   map[string]int64
	distinct map[string]map[string]struct{}
	hourly   map[string]hourlyCounts
}

func newAccumulator() *accumulator {
	return &accumulator{
		sums:     make(map[string]decimal.Decimal),
		counts:   make(map[string]int64),
		distinct: make(map[string]map[string]struct{}),
		hourly:   make(map[string]hourlyCounts),
	}
}

func (a *accumulator) merge(o *accumulator) {
	for k, v := range o.sums {
		a.sums[k] = a.sums[k].Add(v)
	}
	for k, v := range o.counts {
		a.counts[k] += v
	}
	for k, set := range o.distinct {
		dst, ok := a.distinct[k]
		if !ok {
			dst = make(map[string]struct{}, len(set))
			a.distinct[k] = dst
		}
		for v := range set {
			dst[v] = struct{}{}
		}
	}
	for k, h := range o.hourly {
		dst, ok := a.hourly[k]
		if !ok {
			dst = make(hourlyCounts, len(h))
			a.hourly[k] = dst
		}
		dst.merge(h)
	}
}

// Aggregator accumulates records for one plan. It is not safe for concurrent
// use; aggregate disjoint partitions separately and Merge them instead.
type Aggregator struct {
	plan       Plan
	buckets    map[bucketKey]*accumulator
	groups     map[string][]string
	rejections Tally
	fallbacks  Tally
	records    int
	rejected   int
}

// New validates the plan and returns an empty aggregator
func New(plan Plan) (*Aggregator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return newAggregator(plan), nil
}

func newAggregator(plan Plan) *Aggregator {
	return &Aggregator{
		plan:       plan,
		buckets:    make(map[bucketKey]*accumulator),
		groups:     make(map[string][]string),
		rejections: make(Tally),
		fallbacks:  make(Tally),
	}
}

// Fork returns an empty aggregator sharing the receiver's plan
func (a *Aggregator) Fork() *Aggregator {
	return newAggregator(a.plan)
}

// Plan returns the plan the aggregator was built with
func (a *Aggregator) Plan() Plan {
	return a.plan
}

// Reject counts a record that was excluded before aggregation, e.g. by a failed join.
func (a *Aggregator) Reject(reason string) {
	a.records++
	a.rejected++
	a.rejections.Add(reason)
}

// AddAll adds every record in order
func (a *Aggregator) AddAll(records []Record) {
	for _, r := range records {
		a.Add(r)
	}
}

// Add buckets one record into every window containing its event date, for
// every grouping level it has a complete key for. A record missing keys on
// several levels tallies one reason per level but counts as one rejection.
func (a *Aggregator) Add(r Record) {
	a.records++

	if r.EventTime.IsZero() {
		a.rejected++
		a.rejections.Add(RejectMissingEventDate)
		return
	}

	var periods []int
	for i, w := range a.plan.Windows {
		if w.Contains(r.EventTime) {
			periods = append(periods, i)
		}
	}

	rejected := false
	for li, g := range a.plan.Levels {
		parts, reason, usedFallback := groupKey(g, r)
		if reason != "" {
			a.rejections.Add(reason)
			if !rejected {
				rejected = true
				a.rejected++
			}
			continue
		}
		if usedFallback != "" {
			a.fallbacks.Add(usedFallback)
		}
		if len(periods) == 0 {
			continue
		}

		key := a.internGroup(parts)
		for _, pi := range periods {
			a.accumulate(a.bucket(bucketKey{level: li, group: key, period: pi}), r)
			if g.Rollup {
				a.accumulate(a.bucket(a.rollupKey(li, pi)), r)
			}
		}
	}
}

func (a *Aggregator) accumulate(acc *accumulator, r Record) {
	for _, m := range a.plan.Metrics {
		if !a.qualifies(m, r) {
			continue
		}
		switch m.Kind {
		case Sum:
			acc.sums[m.Name] = acc.sums[m.Name].Add(r.Measure(m.Field))
		case Count:
			acc.counts[m.Name]++
		case Distinct:
			v, ok := r.Dim(m.Field)
			if !ok {
				continue
			}
			set, ok := acc.distinct[m.Name]
			if !ok {
				set = make(map[string]struct{})
				acc.distinct[m.Name] = set
			}
			set[v] = struct{}{}
		case HourlyQuantile:
			h, ok := acc.hourly[m.Name]
			if !ok {
				h = make(hourlyCounts)
				acc.hourly[m.Name] = h
			}
			h.add(r.EventTime)
		}
	}
}

func (a *Aggregator) qualifies(m Metric, r Record) bool {
	for _, name := range m.Where {
		if !a.plan.Predicates[name](r) {
			return false
		}
	}
	return true
}

func (a *Aggregator) bucket(k bucketKey) *accumulator {
	acc, ok := a.buckets[k]
	if !ok {
		acc = newAccumulator()
		a.buckets[k] = acc
	}
	return acc
}

func (a *Aggregator) internGroup(parts []string) string {
	key := strings.Join(parts, keySep)
	if _, ok := a.groups[key]; !ok {
		a.groups[key] = parts
	}
	return key
}

// Merge folds a partial aggregate built from a disjoint record subset into a.
func (a *Aggregator) Merge(o *Aggregator) {
	a.records += o.records
	a.rejected += o.rejected
	a.rejections.Merge(o.rejections)
	a.fallbacks.Merge(o.fallbacks)
	for key, parts := range o.groups {
		if _, ok := a.groups[key]; !ok {
			a.groups[key] = parts
		}
	}
	for k, acc := range o.buckets {
		a.bucket(k).merge(acc)
	}
}

// Result finalizes the accumulated buckets into sorted cells. The aggregator
// may keep receiving records afterwards.
func (a *Aggregator) Result() Result {
	// Rollup rows appear exactly once per level and period, even when empty.
	for li, g := range a.plan.Levels {
		if !g.Rollup {
			continue
		}
		for pi := range a.plan.Windows {
			a.bucket(a.rollupKey(li, pi))
		}
	}

	keys := make([]bucketKey, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		if keys[i].rollup != keys[j].rollup {
			return keys[j].rollup
		}
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].period < keys[j].period
	})

	res := Result{
		Rejections: make(Tally),
		Fallbacks:  make(Tally),
		Records:    a.records,
		Rejected:   a.rejected,
	}
	res.Rejections.Merge(a.rejections)
	res.Fallbacks.Merge(a.fallbacks)

	for _, k := range keys {
		acc := a.buckets[k]
		w := a.plan.Windows[k.period]
		base := Cell{
			Level:       a.plan.Levels[k.level].Level,
			Group:       a.groups[k.group],
			Rollup:      k.rollup,
			Period:      w.Name,
			PeriodStart: w.Start,
			PeriodEnd:   w.End,
		}
		for _, m := range a.plan.Metrics {
			res.Cells = append(res.Cells, finalize(base, m, acc)...)
		}
	}

	res.index()
	return res
}

func finalize(base Cell, m Metric, acc *accumulator) []Cell {
	valid := func(d decimal.Decimal) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: d, Valid: true}
	}

	switch m.Kind {
	case Sum:
		base.Metric, base.Value = m.Name, valid(acc.sums[m.Name])
	case Count:
		base.Metric, base.Value = m.Name, valid(decimal.NewFromInt(acc.counts[m.Name]))
	case Distinct:
		base.Metric, base.Value = m.Name, valid(decimal.NewFromInt(int64(len(acc.distinct[m.Name]))))
	case HourlyQuantile:
		values, ok := acc.hourly[m.Name].quantiles(m.Quantiles)
		cells := make([]Cell, len(m.Quantiles))
		for i, q := range m.Quantiles {
			c := base
			c.Metric = QuantileName(m.Name, q)
			if ok {
				c.Value = valid(decimal.NewFromInt(values[i]))
			}
			cells[i] = c
		}
		return cells
	}
	return []Cell{base}
}

// groupKey extracts the key parts of a level. reason is set when a key
// component is null and no fallback applies.
func groupKey(g Grouping, r Record) (parts []string, reason string, fallback string) {
	parts = make([]string, len(g.Dims))
	for i, dim := range g.Dims {
		v, ok := r.Dim(dim)
		if !ok {
			if surrogate, has := g.Fallbacks[dim]; has {
				v, ok = r.Dim(surrogate)
				if ok {
					fallback = g.Level + "." + dim + "<-" + surrogate
				}
			}
		}
		if !ok {
			return nil, "missing_key:" + g.Level + "." + dim, ""
		}
		parts[i] = v
	}
	return parts, "", fallback
}

// rollupKey returns the rollup bucket of a level and period. Its group is
// labelled AllGroup for every dimension of the level.
func (a *Aggregator) rollupKey(level, period int) bucketKey {
	parts := make([]string, len(a.plan.Levels[level].Dims))
	for i := range parts {
		parts[i] = AllGroup
	}
	return bucketKey{level: level, rollup: true, group: a.internGroup(parts), period: period}
}
