package evo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialExecutorRunsInOrder(t *testing.T) {
	var order []int
	err := SerialExecutor{}.Map(context.Background(), 5, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestParallelExecutorWritesByIndex(t *testing.T) {
	out := make([]int, 100)
	var running, peak atomic.Int64
	err := ParallelExecutor{Workers: 4}.Map(context.Background(), len(out), func(_ context.Context, i int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		out[i] = i * i
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
	assert.LessOrEqual(t, peak.Load(), int64(4))
}

func TestExecutorsReturnFirstError(t *testing.T) {
	boom := errors.New("boom")
	for _, exec := range []Executor{SerialExecutor{}, ParallelExecutor{Workers: 2}} {
		t.Run(exec.Name(), func(t *testing.T) {
			err := exec.Map(context.Background(), 10, func(_ context.Context, i int) error {
				if i == 3 {
					return boom
				}
				return nil
			})
			require.ErrorIs(t, err, boom)
		})
	}
}

func TestExecutorsHonorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, exec := range []Executor{SerialExecutor{}, ParallelExecutor{Workers: 2}} {
		var calls atomic.Int64
		err := exec.Map(ctx, 10, func(context.Context, int) error {
			calls.Add(1)
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls.Load(), exec.Name())
	}
}

func TestNewExecutor(t *testing.T) {
	exec, err := NewExecutor("serial", 0)
	require.NoError(t, err)
	assert.IsType(t, SerialExecutor{}, exec)

	exec, err = NewExecutor("parallel", 3)
	require.NoError(t, err)
	assert.Equal(t, ParallelExecutor{Workers: 3}, exec)

	_, err = NewExecutor("gpu", 1)
	assert.Error(t, err)
}
