// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/utils"
)

var (
	recalculationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_recalculation_runs_total",
		Help: "Recalculation job runs partitioned by job name and outcome",
	}, []string{"job", "outcome"})
	recalculatedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_recalculated_rows_total",
		Help: "Pricing rows refreshed by the recalculation scheduler",
	}, []string{"job"})
)

// PricingRecalculator is the slice of the pricing flow the scheduler needs.
type PricingRecalculator interface {
	RecalculateWindow(ctx context.Context, horizon time.Duration, batchSize int) (recalculated int, failed int, err error)
	CleanupExpired(ctx context.Context) (*dto.CleanupResponse, error)
	LoadEvents(ctx context.Context) (int, error)
}

// RecalculationJob refreshes stored pricing inside a horizon on a fixed
// interval. Jobs closer to check-in run more often over a narrower window.
type RecalculationJob struct {
	Name      string
	Interval  time.Duration
	Horizon   time.Duration
	BatchSize int

	running atomic.Bool
	runs    uint64
	failed  uint64
}

// defaultJobs builds the job table. Near-term pricing changes fast and gets
// short intervals; far-out pricing barely moves and gets long ones.
func defaultJobs(batchSize int) []*RecalculationJob {
	return []*RecalculationJob{
		{Name: "critical", Interval: time.Minute, Horizon: time.Duration(utils.CriticalDaysThreshold) * 24 * time.Hour, BatchSize: batchSize},
		{Name: "high", Interval: 15 * time.Minute, Horizon: time.Duration(utils.HighDaysThreshold) * 24 * time.Hour, BatchSize: batchSize},
		{Name: "medium", Interval: time.Hour, Horizon: time.Duration(utils.MediumDaysThreshold) * 24 * time.Hour, BatchSize: batchSize},
		{Name: "low", Interval: 6 * time.Hour, Horizon: time.Duration(utils.DefaultLookbackWindowDays) * 24 * time.Hour, BatchSize: batchSize},
	}
}

// RecalculationScheduler drives the job table plus housekeeping: an hourly
// expired-entry sweep and a periodic event reload from storage.
type RecalculationScheduler struct {
	flow    PricingRecalculator
	jobs    []*RecalculationJob
	logger  *log.Logger
	rotator *lumberjack.Logger
}

func NewRecalculationScheduler(flow PricingRecalculator, batchSize int, logger *log.Logger) *RecalculationScheduler {
	if batchSize <= 0 {
		batchSize = utils.DefaultRecalculationBatchSize
	}
	s := &RecalculationScheduler{
		flow: flow,
		jobs: defaultJobs(batchSize),
	}
	if logger != nil {
		s.logger = logger
	} else if err := s.initSchedulerLogger(); err != nil {
		s.logger = log.Default()
		s.logger.Printf("scheduler: failed to initialize file logger: %v", err)
	}
	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a rotating file under data/ (or /data)
func (s *RecalculationScheduler) initSchedulerLogger() error {
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	var lastErr error
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			continue
		}
		s.rotator = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "scheduler.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		mw := io.MultiWriter(os.Stdout, s.rotator)
		s.logger = log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return lastErr
}

// Start launches all job loops in background goroutines and returns a stop
// function. Each job runs once immediately, then on its ticker.
func (s *RecalculationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j *RecalculationJob) {
			defer wg.Done()
			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()

			s.runJob(ctx, j)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, j)
				}
			}
		}(job)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.housekeepingLoop(ctx)
	}()

	return func() {
		cancel()
		wg.Wait()
		if s.rotator != nil {
			_ = s.rotator.Close()
		}
	}
}

// runJob executes a single recalculation pass. Overlapping runs of the same
// job are skipped, not queued: a slow pass must not pile up behind itself.
func (s *RecalculationScheduler) runJob(ctx context.Context, job *RecalculationJob) {
	if !job.running.CompareAndSwap(false, true) {
		s.logger.Printf("scheduler: job %s still running, skipping this tick", job.Name)
		recalculationRunsTotal.WithLabelValues(job.Name, "skipped").Inc()
		return
	}
	defer job.running.Store(false)

	start := time.Now()
	recalculated, failed, err := s.flow.RecalculateWindow(ctx, job.Horizon, job.BatchSize)
	if err != nil {
		atomic.AddUint64(&job.failed, 1)
		recalculationRunsTotal.WithLabelValues(job.Name, "error").Inc()
		s.logger.Printf("scheduler: job %s failed: %v", job.Name, err)
		return
	}
	atomic.AddUint64(&job.runs, 1)
	recalculationRunsTotal.WithLabelValues(job.Name, "ok").Inc()
	recalculatedRowsTotal.WithLabelValues(job.Name).Add(float64(recalculated))
	if recalculated > 0 || failed > 0 {
		s.logger.Printf("scheduler: job %s refreshed %d rows (%d failed) in %s", job.Name, recalculated, failed, time.Since(start).Round(time.Millisecond))
	}
}

// housekeepingLoop sweeps expired entries hourly and reloads events every
// six hours so manual database edits eventually reach the demand model.
func (s *RecalculationScheduler) housekeepingLoop(ctx context.Context) {
	sweep := time.NewTicker(time.Hour)
	defer sweep.Stop()
	reload := time.NewTicker(6 * time.Hour)
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			res, err := s.flow.CleanupExpired(ctx)
			if err != nil {
				s.logger.Printf("scheduler: expired sweep failed: %v", err)
				continue
			}
			if res.RemovedEntries > 0 || res.RemovedRows > 0 {
				s.logger.Printf("scheduler: swept %d cache entries and %d rows", res.RemovedEntries, res.RemovedRows)
			}
		case <-reload.C:
			count, err := s.flow.LoadEvents(ctx)
			if err != nil {
				s.logger.Printf("scheduler: event reload failed: %v", err)
				continue
			}
			s.logger.Printf("scheduler: reloaded %d events", count)
		}
	}
}

// Runs reports how many passes of the named job completed successfully.
func (s *RecalculationScheduler) Runs(name string) uint64 {
	for _, job := range s.jobs {
		if job.Name == name {
			return atomic.LoadUint64(&job.runs)
		}
	}
	return 0
}
