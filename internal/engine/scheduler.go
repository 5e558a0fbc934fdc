package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is work run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Timeout bounds one run. Zero means the interval.
	Timeout time.Duration
}

// Scheduler drives periodic jobs such as staleness eviction, handshake
// collection and the account sync fan-out. Each job has its own goroutine, so
// a slow run delays only the next run of the same job.
type Scheduler struct {
	logger *zap.Logger
	jobs   []Job
	wg     sync.WaitGroup

	// stateLock protects the running state.
	stateLock sync.Mutex
	isRunning bool
}

// NewScheduler validates jobs and creates a Scheduler.
func NewScheduler(logger *zap.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	for _, j := range jobs {
		if j.Run == nil {
			return nil, errors.New("job " + j.Name + " has no run function")
		}
		if j.Interval <= 0 {
			return nil, errors.New("job " + j.Name + " needs a positive interval")
		}
	}
	return &Scheduler{
		logger: logger.With(zap.String("component", "scheduler")),
		jobs:   jobs,
	}, nil
}

// Start launches one loop per job. The loops exit when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.stateLock.Lock()
	if s.isRunning {
		s.stateLock.Unlock()
		s.logger.Warn("Scheduler.Start called, but scheduler is already running.")
		return
	}
	s.isRunning = true
	s.stateLock.Unlock()

	s.logger.Info("Starting scheduler", zap.Int("jobs", len(s.jobs)))
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Stop waits for every loop to exit. Cancel the Start context first.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler... waiting for jobs to finish.")
	s.wg.Wait()

	s.stateLock.Lock()
	s.isRunning = false
	s.stateLock.Unlock()

	s.logger.Info("Scheduler stopped gracefully.")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("job", j.Name))
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, job loop shutting down.", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			s.runOnce(ctx, j, logger)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job, logger *zap.Logger) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := j.Run(runCtx)
	switch {
	case err == nil:
		logger.Debug("Job run finished.", zap.Duration("took", time.Since(start)))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Job run timed out.", zap.Duration("timeout", timeout), zap.Error(err))
	case errors.Is(err, context.Canceled):
		logger.Debug("Job run was cancelled.", zap.Error(err))
	default:
		logger.Error("Job run failed.", zap.Error(err))
	}
}
