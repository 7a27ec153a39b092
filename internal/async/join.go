package async

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// All runs every fn concurrently and returns the results in issue order.
// The first failure cancels the context handed to the others and is
// returned; no partial results are returned with it.
func All[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	if len(fns) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]T, len(fns))
	for i, fn := range fns {
		g.Go(func() error {
			v, err := protect(gctx, fn)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Map applies fn to every item concurrently and returns the outputs in item
// order. It fails like All.
func Map[In, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	fns := make([]func(context.Context) (Out, error), len(items))
	for i, item := range items {
		fns[i] = func(ctx context.Context) (Out, error) {
			return fn(ctx, item)
		}
	}
	return All(ctx, fns...)
}

// Result is one outcome of Settle.
type Result[T any] struct {
	Value T
	Err   error
}

// Settle runs every fn concurrently and waits for all of them. Failures are
// reported per index and do not affect the other computations.
func Settle[T any](ctx context.Context, fns ...func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := protect(ctx, fn)
			results[i] = Result[T]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results
}
