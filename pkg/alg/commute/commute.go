// Package commute defines the contract shared by accumulators whose partial
// results can be combined in any order, together with helpers that compute
// partials concurrently and fold them back together.
//
// An accumulator satisfies the contract when merging A into B yields the same
// observable state as merging B into A. That property is what makes it safe
// to build one partial per shard or worker and combine them after a join.
package commute

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidWorkers is returned when the worker limit is below one.
var ErrInvalidWorkers = errors.New("commute: workers must be at least 1")

// Commuter is implemented by accumulators that can absorb another instance
// of the same type. Merge must be commutative and associative.
type Commuter[S any] interface {
	// Merge folds other into the receiver. The caller must not use other
	// afterwards.
	Merge(other S)
}

// MergeAll folds every part into the first non-nil one and returns it.
// Nil parts are skipped. It reports false when parts yields no non-nil
// part. The first non-nil part is mutated.
func MergeAll[S Commuter[S]](parts iter.Seq[S]) (S, bool) {
	var (
		acc   S
		found bool
	)

	for part := range parts {
		if isNil(part) {
			continue
		}

		if !found {
			acc = part
			found = true

			continue
		}

		acc.Merge(part)
	}

	return acc, found
}

// MergeInto folds every non-nil part into dst and returns dst.
func MergeInto[S Commuter[S]](dst S, parts iter.Seq[S]) S {
	for part := range parts {
		if !isNil(part) {
			dst.Merge(part)
		}
	}

	return dst
}

// isNil reports whether v is a nil interface, pointer, map, slice, func or
// channel.
func isNil[S any](v S) bool {
	rv := reflect.ValueOf(any(v))

	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// MapShards runs fn once per input using at most workers goroutines and
// returns the partial results in input order. The first error cancels the
// context passed to the remaining calls and is returned.
func MapShards[In, S any](
	ctx context.Context,
	inputs []In,
	workers int,
	fn func(ctx context.Context, input In) (S, error),
) ([]S, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}

	partials := make([]S, len(inputs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, input := range inputs {
		group.Go(func() error {
			part, err := fn(groupCtx, input)
			if err != nil {
				return err
			}

			partials[i] = part

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return partials, nil
}
