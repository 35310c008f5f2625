package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// JobType represents different types of background jobs
type JobType int

const (
	JobTypeSessionExpiry JobType = iota
	JobTypeDatabaseCheck
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeSessionExpiry:
		return "session_expiry"
	case JobTypeDatabaseCheck:
		return "database_check"
	default:
		return "unknown"
	}
}

// Job runs Run every Interval until the scheduler stops.
type Job struct {
	Type     JobType
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler manages periodic execution of background jobs
type Scheduler struct {
	jobs     []Job
	logger   *logrus.Logger
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential job execution
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:     jobs,
		logger:   logger,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.WithField("job_type", job.Type.String()).Warn("Skipping job without interval")
			continue
		}
		s.wg.Add(1)
		go s.runScheduler(job)
	}
}

// runScheduler ticks a single job until stopped
func (s *Scheduler) runScheduler(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.execute(job)
		}
	}
}

// execute runs one job, never two at the same time
func (s *Scheduler) execute(job Job) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		s.logger.WithError(err).WithField("job_type", job.Type.String()).Error("Scheduled job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"job_type": job.Type.String(),
		"duration": time.Since(start).String(),
	}).Debug("Scheduled job completed")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
	})
	s.wg.Wait()
}

// Expirer resets conversation sessions that have been idle too long.
type Expirer interface {
	ExpireIdle(maxIdle time.Duration) []int64
}

// SessionExpiryJob resets comparison flows untouched for longer than idle.
// onExpired, if set, receives the number of sessions reset on each run.
func SessionExpiryJob(sessions Expirer, idle, interval time.Duration, logger *logrus.Logger, onExpired func(n int)) Job {
	return Job{
		Type:     JobTypeSessionExpiry,
		Interval: interval,
		Run: func(ctx context.Context) error {
			expired := sessions.ExpireIdle(idle)
			if len(expired) == 0 {
				return nil
			}
			logger.WithFields(logrus.Fields{
				"count": len(expired),
				"users": expired,
			}).Info("Expired idle comparison sessions")
			if onExpired != nil {
				onExpired(len(expired))
			}
			return nil
		},
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheckJob pings the database on every run and fails when it is
// unreachable.
func DatabaseCheckJob(db Pinger, interval, timeout time.Duration) Job {
	return Job{
		Type:     JobTypeDatabaseCheck,
		Interval: interval,
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}
			return nil
		},
	}
}
