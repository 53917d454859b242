// Package observability tracks which catalog columns queries filter on and
// exports cache and query metrics.
package observability

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kepler-soc/kic/pkg/types"
)

type columnKind uint8

const (
	kindField columnKind = iota
	kindCharacteristic
)

type usageKey struct {
	kind columnKind
	name string
}

// ColumnStats is the usage of one fixed field or characteristic type.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"`
}

// QueryStats counts how often fixed fields and characteristic types appear
// in compiled constraints, per operator. A column that is busy here is a
// candidate for an index on the kic table or the characteristic table.
// Entries not seen within the window are dropped by Prune.
type QueryStats struct {
	window time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	usage map[usageKey]*ColumnStats
}

// NewQueryStats returns an empty tracker.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		window: window,
		now:    time.Now,
		usage:  make(map[usageKey]*ColumnStats),
	}
}

// RecordConstraint counts one constraint. Unresolved columns are ignored.
func (q *QueryStats) RecordConstraint(c types.Constraint) {
	op := string(c.Operator)
	switch col := c.Column.(type) {
	case types.Field:
		q.bump(usageKey{kindField, col.String()}, op)
	case types.CharacteristicType:
		q.bump(usageKey{kindCharacteristic, col.Name}, op)
	case *types.CharacteristicType:
		if col != nil {
			q.bump(usageKey{kindCharacteristic, col.Name}, op)
		}
	}
}

// RecordPredicate counts a predicate on the fixed field named column.
func (q *QueryStats) RecordPredicate(column, operator string) {
	q.bump(usageKey{kindField, column}, operator)
}

func (q *QueryStats) bump(key usageKey, operator string) {
	seen := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.usage[key]
	if s == nil {
		s = &ColumnStats{Column: key.name, Operators: map[string]int{}}
		q.usage[key] = s
	}
	s.Frequency++
	s.Operators[operator]++
	if seen.After(s.LastSeen) {
		s.LastSeen = seen
	}
}

// GetTopFields returns up to n fixed fields, busiest first.
func (q *QueryStats) GetTopFields(n int) []ColumnStats {
	return q.top(kindField, n)
}

// GetTopCharacteristics returns up to n characteristic types, busiest first.
func (q *QueryStats) GetTopCharacteristics(n int) []ColumnStats {
	return q.top(kindCharacteristic, n)
}

func (q *QueryStats) top(kind columnKind, n int) []ColumnStats {
	out := []ColumnStats{}
	if n <= 0 {
		return out
	}

	q.mu.RLock()
	for key, s := range q.usage {
		if key.kind != kind {
			continue
		}
		c := *s
		c.Operators = maps.Clone(s.Operators)
		out = append(out, c)
	}
	q.mu.RUnlock()

	slices.SortFunc(out, func(a, b ColumnStats) int {
		if a.Frequency != b.Frequency {
			return cmp.Compare(b.Frequency, a.Frequency)
		}
		return cmp.Compare(a.Column, b.Column)
	})
	return out[:min(n, len(out))]
}

// Prune forgets columns last seen before the window. The app calls it on a
// timer.
func (q *QueryStats) Prune() {
	cutoff := q.now().Add(-q.window)

	q.mu.Lock()
	defer q.mu.Unlock()
	maps.DeleteFunc(q.usage, func(_ usageKey, s *ColumnStats) bool {
		return s.LastSeen.Before(cutoff)
	})
}
