package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type valueJob struct {
	value int
	delay time.Duration
}

type valueResult struct {
	value int
	err   error
}

func (r valueResult) GetError() error { return r.err }

func (j valueJob) Execute(ctx context.Context) Result {
	select {
	case <-time.After(j.delay):
		return valueResult{value: j.value}
	case <-ctx.Done():
		return valueResult{value: j.value, err: ctx.Err()}
	}
}

func TestPool_SubmitAndWait(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	for i := 0; i < 5; i++ {
		require.True(t, pool.Submit(valueJob{value: i}))
	}

	results := pool.Wait()
	require.Len(t, results, 5)
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, i, r.(valueResult).value)
	}
}

func TestPool_MoreJobsThanBuffers(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	for i := 0; i < 50; i++ {
		require.True(t, pool.Submit(valueJob{value: i}))
	}

	results := pool.Wait()
	assert.Len(t, results, 50)
}

func TestPool_DefaultsWorkers(t *testing.T) {
	pool := NewPool(context.Background(), 0)
	assert.Equal(t, 1, pool.workers)
	pool.Start()
	pool.Shutdown()
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()
	pool.Shutdown()

	assert.False(t, pool.Submit(valueJob{value: 1}))
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()
	require.True(t, pool.Submit(valueJob{value: 1, delay: time.Hour}))

	var results []Result
	done := make(chan struct{})
	go func() {
		results = pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.Len(t, results, 1, "one slot per submitted job")
}
