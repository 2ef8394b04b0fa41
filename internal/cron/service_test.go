package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

type fakeLock struct {
	acquired bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("kaboom")
	}
	return t.err
}

type recordingJobMetrics struct {
	success  map[string]int
	failure  map[string]int
	observed int
}

func newRecordingJobMetrics() *recordingJobMetrics {
	return &recordingJobMetrics{success: map[string]int{}, failure: map[string]int{}}
}

func (m *recordingJobMetrics) ObserveDuration(string, time.Duration) { m.observed++ }
func (m *recordingJobMetrics) IncSuccess(job string)                 { m.success[job]++ }
func (m *recordingJobMetrics) IncFailure(job string)                 { m.failure[job]++ }

func newTestService(t *testing.T, lock Lock, m jobMetrics, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	panicking := &testJob{name: "panic", panic: true}
	m := newRecordingJobMetrics()
	lock := &fakeLock{}
	service := newTestService(t, lock, m, success, failing, panicking)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Contains(t, err.Error(), "fail: boom")
	require.Contains(t, err.Error(), "panic panicked")

	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failing.runs)
	require.Equal(t, 1, panicking.runs)
	require.Equal(t, 1, m.success["success"])
	require.Equal(t, 1, m.failure["fail"])
	require.Equal(t, 1, m.failure["panic"])
	require.Equal(t, 3, m.observed)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.acquired)
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "reconcile"}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, lock, nil, job)

	err := service.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrSkipped)
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestServiceRunCycleLockError(t *testing.T) {
	job := &testJob{name: "reconcile"}
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, nil, job)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "lock acquire")
	require.Zero(t, job.runs)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "reconcile"}
	service := newTestService(t, &fakeLock{}, nil, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := service.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, job.runs)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)

	service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, service.interval)
}
