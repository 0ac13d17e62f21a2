package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	id    string
	count *atomic.Int32
}

func (j *countingJob) ID() string { return j.id }

func (j *countingJob) Execute(ctx context.Context) error {
	j.count.Add(1)
	return nil
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool(PoolConfig{Name: "test", MaxWorkers: 2})
	pool.Start(context.Background())
	defer pool.Stop()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.True(t, pool.Submit(&countingJob{id: "job", count: &count}))
	}

	require.Eventually(t, func() bool {
		return count.Load() == 5
	}, time.Second, 10*time.Millisecond)
}

type blockingJob struct {
	started chan struct{}
}

func (j *blockingJob) ID() string { return "blocking" }

func (j *blockingJob) Execute(ctx context.Context) error {
	close(j.started)
	<-ctx.Done()
	return nil
}

func TestPoolStopCancelsLongRunningJobs(t *testing.T) {
	pool := NewPool(PoolConfig{Name: "test", MaxWorkers: 1})
	pool.Start(context.Background())

	job := &blockingJob{started: make(chan struct{})}
	require.True(t, pool.Submit(job))
	<-job.started

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

type panickyJob struct{}

func (panickyJob) ID() string                    { return "panic" }
func (panickyJob) Execute(context.Context) error { panic("boom") }

func TestPoolSurvivesPanics(t *testing.T) {
	pool := NewPool(PoolConfig{Name: "test", MaxWorkers: 1})
	pool.Start(context.Background())
	defer pool.Stop()

	require.True(t, pool.Submit(panickyJob{}))

	var count atomic.Int32
	require.True(t, pool.Submit(&countingJob{id: "after", count: &count}))
	assert.Eventually(t, func() bool {
		return count.Load() == 1
	}, time.Second, 10*time.Millisecond)
}
