package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/errors"
)

// MockJob implements the Job interface for testing.
type MockJob struct {
	id       string
	jobType  string
	duration time.Duration
	err      error
	executed int32
}

func NewMockJob(id, jobType string, duration time.Duration, err error) *MockJob {
	return &MockJob{
		id:       id,
		jobType:  jobType,
		duration: duration,
		err:      err,
	}
}

func (m *MockJob) Execute(ctx context.Context) error {
	atomic.AddInt32(&m.executed, 1)
	if m.duration > 0 {
		select {
		case <-time.After(m.duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockJob) ID() string {
	return m.id
}

func (m *MockJob) Type() string {
	return m.jobType
}

func (m *MockJob) ExecutedCount() int32 {
	return atomic.LoadInt32(&m.executed)
}

func testConfig() Config {
	return Config{
		Size:            2,
		QueueSize:       10,
		MaxRetries:      2,
		RetryDelay:      10 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestNewPool(t *testing.T) {
	t.Run("creates pool with valid configuration", func(t *testing.T) {
		config := Config{Size: 5, QueueSize: 100, RateLimit: 10}
		pool := New(config)

		assert.Len(t, pool.workers, 5)
		assert.Equal(t, 100, cap(pool.jobs))
		assert.Equal(t, 100, cap(pool.results))
		assert.NotNil(t, pool.rateLimiter)
	})

	t.Run("clamps invalid sizes", func(t *testing.T) {
		pool := New(Config{Size: 0, QueueSize: -1})
		assert.Len(t, pool.workers, 1)
		assert.Equal(t, 0, cap(pool.jobs))
	})
}

func TestPool_Do(t *testing.T) {
	pool := New(testConfig())
	pool.Start()
	defer func() { _ = pool.Shutdown() }()

	t.Run("returns job result", func(t *testing.T) {
		job := NewMockJob("ok", "parse", 5*time.Millisecond, nil)
		result, err := pool.Do(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, "ok", result.JobID)
		assert.Equal(t, "parse", result.JobType)
		assert.Zero(t, result.Retries)
		assert.Equal(t, int32(1), job.ExecutedCount())
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		job := NewMockJob("bad", "parse", 0, errors.ErrNoScan())
		_, err := pool.Do(context.Background(), job)
		assert.True(t, errors.IsCode(err, errors.CodeNoScan))
		assert.Equal(t, int32(1), job.ExecutedCount())
	})

	t.Run("retries transient failures", func(t *testing.T) {
		job := NewMockJob("flaky", "store", 0, errors.ErrDatabaseConnection(fmt.Errorf("refused")))
		result, err := pool.Do(context.Background(), job)
		assert.True(t, errors.IsCode(err, errors.CodeDatabaseConnection))
		assert.Equal(t, 2, result.Retries)
		assert.Equal(t, int32(3), job.ExecutedCount())
	})

	t.Run("caller timeout drops the result", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		job := NewMockJob("slow", "parse", 200*time.Millisecond, nil)
		_, err := pool.Do(ctx, job)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("recovers from panics", func(t *testing.T) {
		job := NewFuncJob("boom", "parse", func(context.Context) error { panic("nil map") })
		_, err := pool.Do(context.Background(), job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")
	})
}

func TestPool_Submit(t *testing.T) {
	t.Run("delivers results", func(t *testing.T) {
		pool := New(testConfig())
		pool.Start()

		for i := 0; i < 3; i++ {
			require.NoError(t, pool.Submit(NewMockJob(fmt.Sprintf("job-%d", i), "spool", 0, nil)))
		}

		seen := map[string]bool{}
		timeout := time.After(2 * time.Second)
		for len(seen) < 3 {
			select {
			case result := <-pool.Results():
				assert.NoError(t, result.Error)
				seen[result.JobID] = true
			case <-timeout:
				t.Fatalf("only %d results received", len(seen))
			}
		}
		require.NoError(t, pool.Shutdown())
	})

	t.Run("rejects when queue is full", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})

		require.NoError(t, pool.Submit(NewMockJob("a", "spool", 0, nil)))
		err := pool.Submit(NewMockJob("b", "spool", 0, nil))
		assert.Same(t, ErrQueueFull, err)
		assert.True(t, errors.IsCode(err, errors.CodeServiceUnavailable))

		require.NoError(t, pool.Shutdown())
	})

	t.Run("rejects after shutdown", func(t *testing.T) {
		pool := New(testConfig())
		pool.Start()
		require.NoError(t, pool.Shutdown())

		assert.Same(t, ErrPoolClosed, pool.Submit(NewMockJob("late", "spool", 0, nil)))
		_, err := pool.Do(context.Background(), NewMockJob("late", "spool", 0, nil))
		assert.Same(t, ErrPoolClosed, err)
	})
}

func TestConcurrentSubmission(t *testing.T) {
	pool := New(Config{Size: 4, QueueSize: 100, ShutdownTimeout: 2 * time.Second})
	pool.Start()

	var wg sync.WaitGroup
	var failures int32
	jobs := make([]*MockJob, 40)
	for i := range jobs {
		jobs[i] = NewMockJob(fmt.Sprintf("job-%d", i), "parse", time.Millisecond, nil)
		wg.Add(1)
		go func(job *MockJob) {
			defer wg.Done()
			if _, err := pool.Do(context.Background(), job); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}(jobs[i])
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failures))
	for _, job := range jobs {
		assert.Equal(t, int32(1), job.ExecutedCount())
	}
	require.NoError(t, pool.Shutdown())
}

func TestGracefulShutdown(t *testing.T) {
	t.Run("drains queued jobs", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 5, ShutdownTimeout: 2 * time.Second})
		jobs := []*MockJob{
			NewMockJob("1", "parse", 10*time.Millisecond, nil),
			NewMockJob("2", "parse", 10*time.Millisecond, nil),
			NewMockJob("3", "parse", 10*time.Millisecond, nil),
		}
		for _, job := range jobs {
			require.NoError(t, pool.Submit(job))
		}
		pool.Start()

		require.NoError(t, pool.Shutdown())
		for _, job := range jobs {
			assert.Equal(t, int32(1), job.ExecutedCount())
		}
	})

	t.Run("cancels running jobs after timeout", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: 20 * time.Millisecond})
		pool.Start()

		started := make(chan struct{})
		var jobErr error
		job := NewFuncJob("stuck", "parse", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			jobErr = ctx.Err()
			return jobErr
		})
		require.NoError(t, pool.Submit(job))
		<-started

		begin := time.Now()
		require.NoError(t, pool.Shutdown())
		assert.Less(t, time.Since(begin), time.Second)
		assert.True(t, stderrors.Is(jobErr, context.Canceled))
	})

	t.Run("shutdown without start drains the queue", func(t *testing.T) {
		pool := New(testConfig())
		job := NewMockJob("queued", "parse", 0, nil)
		require.NoError(t, pool.Submit(job))

		require.NoError(t, pool.Shutdown())
		assert.Equal(t, int32(1), job.ExecutedCount())
	})

	t.Run("multiple shutdown calls are safe", func(t *testing.T) {
		pool := New(testConfig())
		pool.Start()
		require.NoError(t, pool.Shutdown())
		require.NoError(t, pool.Shutdown())
		pool.Wait()

		_, open := <-pool.Results()
		assert.False(t, open)
	})
}

func TestRateLimiting(t *testing.T) {
	pool := New(Config{Size: 2, QueueSize: 10, RateLimit: 20, ShutdownTimeout: 2 * time.Second})
	pool.Start()
	defer func() { _ = pool.Shutdown() }()

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := pool.Do(context.Background(), NewMockJob(fmt.Sprintf("r-%d", i), "parse", 0, nil))
		require.NoError(t, err)
	}
	// 20 jobs/s allows one job per 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
