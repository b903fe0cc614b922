// Package batch runs bounded fan-out over a slice while keeping results in
// input order.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapAll applies fn to every item with at most limit calls in flight. The
// first error cancels the remaining work and is returned.
func MapAll[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(normLimit(limit, len(items)))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Settled is the outcome for one input slot.
type Settled[R any] struct {
	Value R
	Err   error
}

// MapSettled applies fn to every item with at most limit calls in flight and
// records each outcome in its slot. Individual failures do not stop the batch;
// only cancellation of ctx does.
func MapSettled[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) (R, error)) []Settled[R] {
	out := make([]Settled[R], len(items))
	if len(items) == 0 {
		return out
	}
	var g errgroup.Group
	g.SetLimit(normLimit(limit, len(items)))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			r, err := fn(ctx, i, item)
			out[i] = Settled[R]{Value: r, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func normLimit(limit, n int) int {
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}
