package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAction struct {
	executions atomic.Int32
	failUntil  int32
}

func (a *countingAction) Execute(ctx context.Context) error {
	n := a.executions.Add(1)
	if n <= a.failUntil {
		return errors.New("transient failure")
	}
	return nil
}

func (a *countingAction) Description() string { return "counting action" }

func startedQueue(t *testing.T) *Queue {
	t.Helper()
	q := New()
	q.StartWithContext(context.Background())
	t.Cleanup(func() {
		assert.NoError(t, q.StopWithTimeout(5*time.Second))
	})
	return q
}

func TestEnqueueRejectsNilAction(t *testing.T) {
	q := startedQueue(t)
	_, err := q.Enqueue(nil, RetryConfig{})
	assert.ErrorIs(t, err, ErrNilAction)
}

func TestEnqueueRejectsWhenStopped(t *testing.T) {
	q := New()
	_, err := q.Enqueue(&countingAction{}, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := NewWithOptions(1)
	q.StartWithContext(context.Background())
	defer func() { _ = q.StopWithTimeout(time.Second) }()

	_, err := q.Enqueue(&countingAction{failUntil: 100}, RetryConfig{Enabled: true, MaxRetries: 100, InitialDelay: time.Hour, Multiplier: 2})
	require.NoError(t, err)

	_, err = q.Enqueue(&countingAction{}, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.GetStats().DroppedJobs)
}

func TestJobExecutes(t *testing.T) {
	q := startedQueue(t)

	action := &countingAction{}
	_, err := q.Enqueue(action, RetryConfig{})
	require.NoError(t, err)

	q.ProcessImmediately(context.Background())
	q.Wait()

	assert.Equal(t, int32(1), action.executions.Load())
	assert.Equal(t, 1, q.GetStats().SuccessfulJobs)
}

func TestJobRetriesUntilSuccess(t *testing.T) {
	q := startedQueue(t)

	action := &countingAction{failUntil: 2}
	job, err := q.Enqueue(action, RetryConfig{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for action.executions.Load() < 3 && time.Now().Before(deadline) {
		q.ProcessImmediately(context.Background())
		q.Wait()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, int32(3), action.executions.Load())
	assert.Equal(t, JobStatusCompleted, job.Status)
	stats := q.GetStats()
	assert.Equal(t, 1, stats.SuccessfulJobs)
	assert.Equal(t, 2, stats.RetryAttempts)
}

func TestJobFailsPermanently(t *testing.T) {
	q := startedQueue(t)

	action := &countingAction{failUntil: 100}
	job, err := q.Enqueue(action, RetryConfig{
		Enabled:      true,
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for job.Status != JobStatusFailed && time.Now().Before(deadline) {
		q.ProcessImmediately(context.Background())
		q.Wait()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, int32(2), action.executions.Load())
	assert.Equal(t, 1, q.GetStats().FailedJobs)
}

func TestReapRemovesFinishedJobs(t *testing.T) {
	q := startedQueue(t)

	_, err := q.Enqueue(&countingAction{}, RetryConfig{})
	require.NoError(t, err)

	q.ProcessImmediately(context.Background())
	q.Wait()
	q.reapFinishedJobs()

	assert.Equal(t, 0, q.PendingCount())
}

func TestStopDrainsRunningJobs(t *testing.T) {
	q := New()
	q.StartWithContext(context.Background())

	action := &countingAction{}
	_, err := q.Enqueue(action, RetryConfig{})
	require.NoError(t, err)

	q.ProcessImmediately(context.Background())
	require.NoError(t, q.StopWithTimeout(5*time.Second))
	assert.Equal(t, int32(1), action.executions.Load())

	_, err = q.Enqueue(&countingAction{}, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueStopped)
}
