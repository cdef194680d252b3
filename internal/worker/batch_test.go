package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errJob(fn func() error) Job {
	return Func(func(context.Context) Result { return ErrResult{Err: fn()} })
}

func TestRunAll_PreservesOrder(t *testing.T) {
	var jobs []Job
	for i := 0; i < 10; i++ {
		delay := time.Duration(10-i) * time.Millisecond
		jobs = append(jobs, valueJob{value: i, delay: delay})
	}

	results := RunAll(context.Background(), jobs, 3)
	require.Len(t, results, 10)
	for i, r := range results {
		require.NoError(t, r.GetError())
		assert.Equal(t, i, r.(valueResult).value)
	}
}

func TestRunAll_FailuresDoNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	jobs := []Job{
		errJob(func() error { ran.Add(1); return nil }),
		errJob(func() error { ran.Add(1); return boom }),
		errJob(func() error { ran.Add(1); return nil }),
	}

	results := RunAll(context.Background(), jobs, 2)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].GetError())
	assert.ErrorIs(t, results[1].GetError(), boom)
	assert.NoError(t, results[2].GetError())
	assert.EqualValues(t, 3, ran.Load())
}

func TestRunAll_Empty(t *testing.T) {
	results := RunAll(context.Background(), nil, 4)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRunAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{
		errJob(func() error { return nil }),
		errJob(func() error { return nil }),
	}

	results := RunAll(ctx, jobs, 1)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r)
	}
}

func TestRunAll_ConcurrencyCap(t *testing.T) {
	var current, peak atomic.Int32

	var jobs []Job
	for i := 0; i < 8; i++ {
		jobs = append(jobs, errJob(func() error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return nil
		}))
	}

	RunAll(context.Background(), jobs, 2)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
