package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRecalculator counts invocations and can block to simulate a slow pass
type stubRecalculator struct {
	calls   atomic.Int64
	block   chan struct{}
	failErr error
}

func (s *stubRecalculator) RecalculateWindow(ctx context.Context, horizon time.Duration, batchSize int) (int, int, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.failErr != nil {
		return 0, 0, s.failErr
	}
	return 2, 0, nil
}

func (s *stubRecalculator) CleanupExpired(ctx context.Context) (*dto.CleanupResponse, error) {
	return &dto.CleanupResponse{}, nil
}

func (s *stubRecalculator) LoadEvents(ctx context.Context) (int, error) {
	return 0, nil
}

func newTestScheduler(flow PricingRecalculator) *RecalculationScheduler {
	return NewRecalculationScheduler(flow, 50, log.New(log.Writer(), "", 0))
}

func TestDefaultJobs(t *testing.T) {
	jobs := defaultJobs(50)
	require.Len(t, jobs, 4)

	byName := make(map[string]*RecalculationJob, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}

	assert.Equal(t, time.Minute, byName["critical"].Interval)
	assert.Equal(t, 3*24*time.Hour, byName["critical"].Horizon)
	assert.Equal(t, 15*time.Minute, byName["high"].Interval)
	assert.Equal(t, 7*24*time.Hour, byName["high"].Horizon)
	assert.Equal(t, time.Hour, byName["medium"].Interval)
	assert.Equal(t, 14*24*time.Hour, byName["medium"].Horizon)
	assert.Equal(t, 6*time.Hour, byName["low"].Interval)
	assert.Equal(t, 90*24*time.Hour, byName["low"].Horizon)

	for _, j := range jobs {
		assert.Equal(t, 50, j.BatchSize)
	}
}

func TestRunJob(t *testing.T) {
	t.Run("SuccessfulPassCounted", func(t *testing.T) {
		flow := &stubRecalculator{}
		s := newTestScheduler(flow)

		job := s.jobs[0]
		s.runJob(context.Background(), job)

		assert.Equal(t, int64(1), flow.calls.Load())
		assert.Equal(t, uint64(1), s.Runs(job.Name))
	})

	t.Run("FailedPassNotCountedAsRun", func(t *testing.T) {
		flow := &stubRecalculator{failErr: errors.New("db down")}
		s := newTestScheduler(flow)

		job := s.jobs[0]
		s.runJob(context.Background(), job)

		assert.Equal(t, uint64(0), s.Runs(job.Name))
		assert.Equal(t, uint64(1), atomic.LoadUint64(&job.failed))
	})

	t.Run("OverlappingRunSkipped", func(t *testing.T) {
		flow := &stubRecalculator{block: make(chan struct{})}
		s := newTestScheduler(flow)
		job := s.jobs[0]

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(context.Background(), job)
		}()

		// Wait for the first pass to be inside RecalculateWindow
		require.Eventually(t, func() bool {
			return flow.calls.Load() == 1
		}, time.Second, time.Millisecond)

		// The second invocation must be skipped, not queued
		s.runJob(context.Background(), job)
		assert.Equal(t, int64(1), flow.calls.Load())

		close(flow.block)
		wg.Wait()
		assert.Equal(t, uint64(1), s.Runs(job.Name))
	})
}

func TestStartStop(t *testing.T) {
	flow := &stubRecalculator{}
	s := newTestScheduler(flow)

	stop := s.Start(context.Background())

	// Every job runs once immediately on start
	require.Eventually(t, func() bool {
		return flow.calls.Load() >= int64(len(s.jobs))
	}, time.Second, time.Millisecond)

	stop()
	settled := flow.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, flow.calls.Load(), "no passes may run after stop returns")
}
