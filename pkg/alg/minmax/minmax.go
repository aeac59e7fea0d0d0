// Package minmax provides a commutative accumulator that tracks the minimum
// and maximum of a stream of samples along with the number of samples seen.
//
// Trackers built independently, for example one per shard or worker, can be
// combined with Merge. The combined count and bounds do not depend on the
// order of the merges. A tracker is not safe for concurrent use; give each
// goroutine its own tracker and merge after the goroutines finish.
//
// Ordering is strict: a sample replaces a bound only when it compares less
// than the current minimum or greater than the current maximum. Among equal
// samples the first one seen is kept. Pairs that are not comparable, such as
// NaN against any float, compare as neither less nor greater and leave the
// bounds unchanged.
package minmax

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/Sumatoshi-tech/commute/pkg/alg/commute"
)

// notApplicable is the text form of a tracker that has seen no samples.
const notApplicable = "N/A"

var _ commute.Commuter[*MinMax[int]] = (*MinMax[int])(nil)

// MinMax tracks the minimum and maximum values of a data set and the number
// of samples in it. The zero value is not usable; create trackers with New
// or NewFunc.
type MinMax[T any] struct {
	less func(a, b T) bool
	len  uint64
	min  *T // nil iff len == 0.
	max  *T // nil iff len == 0.
}

// New creates an empty tracker ordered by the < operator.
func New[T cmp.Ordered]() *MinMax[T] {
	return NewFunc(lessOrdered[T])
}

// NewFunc creates an empty tracker ordered by less, which must report
// whether a sorts strictly before b. It panics if less is nil.
func NewFunc[T any](less func(a, b T) bool) *MinMax[T] {
	if less == nil {
		panic("minmax: nil less function")
	}

	return &MinMax[T]{less: less}
}

// Collect builds a tracker from every sample in seq.
func Collect[T cmp.Ordered](seq iter.Seq[T]) *MinMax[T] {
	m := New[T]()
	m.Extend(seq)

	return m
}

// CollectFunc builds a tracker ordered by less from every sample in seq.
func CollectFunc[T any](seq iter.Seq[T], less func(a, b T) bool) *MinMax[T] {
	m := NewFunc(less)
	m.Extend(seq)

	return m
}

// Add adds a sample to the data.
func (m *MinMax[T]) Add(sample T) {
	m.len++

	if m.min == nil || m.less(sample, *m.min) {
		m.min = ptr(sample)
	}

	if m.max == nil || m.less(*m.max, sample) {
		m.max = ptr(sample)
	}
}

// Extend adds every sample in seq, in iteration order.
func (m *MinMax[T]) Extend(seq iter.Seq[T]) {
	for sample := range seq {
		m.Add(sample)
	}
}

// Merge folds the samples of other into m. Counts add up; a bound that is
// unset on one side takes the other side's value, and on ties m keeps its
// own. The receiver's ordering is used. other is left unmodified, but the
// caller should treat it as consumed. Merging nil is a no-op.
func (m *MinMax[T]) Merge(other *MinMax[T]) {
	if other == nil {
		return
	}

	m.len += other.len

	if other.min != nil && (m.min == nil || m.less(*other.min, *m.min)) {
		m.min = ptr(*other.min)
	}

	if other.max != nil && (m.max == nil || m.less(*m.max, *other.max)) {
		m.max = ptr(*other.max)
	}
}

// Min returns the minimum of the data set.
// The boolean is false if and only if no samples have been added.
func (m *MinMax[T]) Min() (T, bool) {
	return deref(m.min)
}

// Max returns the maximum of the data set.
// The boolean is false if and only if no samples have been added.
func (m *MinMax[T]) Max() (T, bool) {
	return deref(m.max)
}

// Bounds returns the minimum and maximum together.
func (m *MinMax[T]) Bounds() (lo, hi T, ok bool) {
	lo, ok = m.Min()
	hi, _ = m.Max()

	return lo, hi, ok
}

// Len returns the number of samples.
func (m *MinMax[T]) Len() int {
	return int(m.len)
}

// Clone returns an independent copy of m sharing its ordering.
func (m *MinMax[T]) Clone() *MinMax[T] {
	c := &MinMax[T]{less: m.less, len: m.len}

	if m.min != nil {
		c.min = ptr(*m.min)
	}

	if m.max != nil {
		c.max = ptr(*m.max)
	}

	return c
}

// String renders the bounds as "[min, max]", or "N/A" for an empty tracker.
func (m *MinMax[T]) String() string {
	switch {
	case m.min != nil && m.max != nil:
		return fmt.Sprintf("[%v, %v]", *m.min, *m.max)
	case m.min == nil && m.max == nil:
		return notApplicable
	default:
		panic("minmax: exactly one bound is set")
	}
}

func lessOrdered[T cmp.Ordered](a, b T) bool {
	return a < b
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T

		return zero, false
	}

	return *p, true
}
