package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartwatch/cartwatch-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("jobqueue")
}

// Queue manages background jobs with retry support.
type Queue struct {
	mu            sync.Mutex
	jobs          []*Job
	stats         Stats
	stopCh        chan struct{}
	runningJobs   sync.WaitGroup
	isRunning     bool
	maxJobs       int
	processCancel context.CancelFunc
	pollInterval  time.Duration
	jobTimeout    time.Duration
}

// New creates a queue with default settings.
func New() *Queue {
	return NewWithOptions(256)
}

// NewWithOptions creates a queue with a custom pending-job limit.
func NewWithOptions(maxJobs int) *Queue {
	return &Queue{
		stopCh:       make(chan struct{}),
		maxJobs:      maxJobs,
		pollInterval: 250 * time.Millisecond,
		jobTimeout:   60 * time.Second,
	}
}

// SetPollInterval overrides the processing tick, for tests.
func (q *Queue) SetPollInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pollInterval = interval
}

// StartWithContext starts the processing loop. Calling it on a running
// queue is a no-op.
func (q *Queue) StartWithContext(ctx context.Context) {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	q.stopCh = make(chan struct{})

	processCtx, cancel := context.WithCancel(ctx)
	q.processCancel = cancel
	q.mu.Unlock()

	go q.processLoop(processCtx)
}

// Stop stops the queue and waits for in-flight jobs to finish.
func (q *Queue) Stop() error {
	return q.StopWithTimeout(10 * time.Second)
}

// StopWithTimeout stops the queue, waiting up to timeout for running
// jobs to drain.
func (q *Queue) StopWithTimeout(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	if q.processCancel != nil {
		q.processCancel()
		q.processCancel = nil
	}
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)
	}
}

// Enqueue adds an action to the queue.
func (q *Queue) Enqueue(action Action, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}
	if len(q.jobs) >= q.maxJobs {
		q.stats.DroppedJobs++
		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New().String(),
		Action:      action,
		MaxAttempts: config.MaxRetries + 1,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      config,
	}
	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++

	logger.Debug("job enqueued", "job_id", job.ID, "action", action.Description())
	return job, nil
}

func (q *Queue) processLoop(ctx context.Context) {
	q.mu.Lock()
	interval := q.pollInterval
	q.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			q.reapFinishedJobs()
			q.processDueJobs(ctx)
		}
	}
}

// reapFinishedJobs drops completed and permanently failed jobs.
func (q *Queue) reapFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status != JobStatusCompleted && job.Status != JobStatusFailed {
			active = append(active, job)
		}
	}
	q.jobs = active
}

func (q *Queue) processDueJobs(ctx context.Context) {
	q.mu.Lock()
	var due []*Job
	now := time.Now()
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			job.Status = JobStatusRunning
			due = append(due, job)
		}
	}
	q.mu.Unlock()

	for _, job := range due {
		if ctx.Err() != nil {
			q.mu.Lock()
			for _, j := range due {
				if j.Status == JobStatusRunning {
					if j.Attempts > 0 {
						j.Status = JobStatusRetrying
					} else {
						j.Status = JobStatusPending
					}
				}
			}
			q.mu.Unlock()
			return
		}

		q.runningJobs.Add(1)
		go func(j *Job) {
			defer q.runningJobs.Done()
			q.executeJob(ctx, j)
		}(job)
	}
}

func (q *Queue) executeJob(ctx context.Context, job *Job) {
	job.Attempts++
	if job.Attempts > 1 {
		q.mu.Lock()
		q.stats.RetryAttempts++
		q.mu.Unlock()
		logger.Info("retrying job", "job_id", job.ID, "action", job.Action.Description(),
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts)
	}

	execCtx, cancel := context.WithTimeout(ctx, q.jobTimeout)
	defer cancel()

	var err error
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job execution panicked: %v", r)
			}
			close(done)
		}()
		err = job.Action.Execute(execCtx)
	}()

	select {
	case <-done:
	case <-execCtx.Done():
		err = fmt.Errorf("job execution aborted: %w", execCtx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		job.LastError = err
		if job.Attempts >= job.MaxAttempts {
			job.Status = JobStatusFailed
			q.stats.FailedJobs++
			logger.Error("job permanently failed", "job_id", job.ID,
				"action", job.Action.Description(), "attempts", job.Attempts, "error", err)
		} else {
			job.Status = JobStatusRetrying
			delay := backoffDelay(job.Config, job.Attempts)
			job.NextRetryAt = time.Now().Add(delay)
			logger.Warn("job failed, scheduling retry", "job_id", job.ID,
				"action", job.Action.Description(), "retry_in", delay, "error", err)
		}
		return
	}

	job.Status = JobStatusCompleted
	q.stats.SuccessfulJobs++
	logger.Debug("job completed", "job_id", job.ID, "action", job.Action.Description(),
		"attempts", job.Attempts)
}

func backoffDelay(config RetryConfig, attempt int) time.Duration {
	backoff := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// ProcessImmediately runs one processing pass without waiting for the
// ticker. Intended for tests.
func (q *Queue) ProcessImmediately(ctx context.Context) {
	q.reapFinishedJobs()
	q.processDueJobs(ctx)
}

// Wait blocks until all currently running jobs have finished.
func (q *Queue) Wait() {
	q.runningJobs.Wait()
}

// PendingCount reports jobs that have not yet finished.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, job := range q.jobs {
		if job.Status != JobStatusCompleted && job.Status != JobStatusFailed {
			count++
		}
	}
	return count
}

// GetStats returns a snapshot of the activity counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
