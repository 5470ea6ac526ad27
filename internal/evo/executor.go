package evo

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"rulevo/internal/config"
)

// Executor runs fn for every index in [0, n). Implementations report the
// first error; callers write results by index, never by completion order.
type Executor interface {
	Name() string
	Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// SerialExecutor runs every call in index order on the caller goroutine.
type SerialExecutor struct{}

func (SerialExecutor) Name() string {
	return config.ExecutorSerial
}

func (SerialExecutor) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// ParallelExecutor runs at most Workers calls at once. The first failure
// cancels the context handed to the remaining calls.
type ParallelExecutor struct {
	Workers int
}

func (ParallelExecutor) Name() string {
	return config.ExecutorParallel
}

func (e ParallelExecutor) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// NewExecutor resolves the executor named by the `executor` hyperparameter.
func NewExecutor(kind string, workers int) (Executor, error) {
	switch kind {
	case "", config.ExecutorParallel:
		return ParallelExecutor{Workers: workers}, nil
	case config.ExecutorSerial:
		return SerialExecutor{}, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", kind)
	}
}
