package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

type purgeCall struct {
	cutoff   time.Time
	attempts int
}

type recordingPurger struct {
	calls   []purgeCall
	deleted int64
	err     error
}

func (p *recordingPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, attempts int) (int64, error) {
	p.calls = append(p.calls, purgeCall{cutoff: cutoff, attempts: attempts})
	return p.deleted, p.err
}

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func retentionJobAt(t *testing.T, params OutboxRetentionJobParams, now time.Time) *outboxRetentionJob {
	t.Helper()
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	params.DB = inlineTx{}
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	concrete, ok := job.(*outboxRetentionJob)
	require.True(t, ok)
	concrete.now = func() time.Time { return now }
	return concrete
}

func TestOutboxRetentionJobWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		retention    time.Duration
		attempts     int
		wantCutoff   time.Time
		wantAttempts int
	}{
		{
			name:         "defaults",
			wantCutoff:   now.Add(-defaultOutboxRetention),
			wantAttempts: defaultParkedAttempts,
		},
		{
			name:         "configured",
			retention:    72 * time.Hour,
			attempts:     3,
			wantCutoff:   now.Add(-72 * time.Hour),
			wantAttempts: 3,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			purger := &recordingPurger{deleted: 4}
			job := retentionJobAt(t, OutboxRetentionJobParams{
				Repository:     purger,
				Retention:      tc.retention,
				ParkedAttempts: tc.attempts,
			}, now)

			require.NoError(t, job.Run(context.Background()))
			require.Len(t, purger.calls, 1)
			assert.True(t, purger.calls[0].cutoff.Equal(tc.wantCutoff), "cutoff %s", purger.calls[0].cutoff)
			assert.Equal(t, tc.wantAttempts, purger.calls[0].attempts)
		})
	}
}

func TestOutboxRetentionJobLogsDeletedRows(t *testing.T) {
	var buf bytes.Buffer
	purger := &recordingPurger{deleted: 7}
	job := retentionJobAt(t, OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: &buf}),
		Repository: purger,
	}, time.Now())

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, buf.String(), `"rows_deleted":7`)
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestOutboxRetentionJobWrapsRepositoryError(t *testing.T) {
	boom := errors.New("relation does not exist")
	job := retentionJobAt(t, OutboxRetentionJobParams{
		Repository: &recordingPurger{err: boom},
	}, time.Now())

	err := job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "purge outbox rows before")
}

func TestNewOutboxRetentionJobRequiresCollaborators(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	assert.EqualError(t, err, "logger required")

	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	assert.EqualError(t, err, "db runner required")

	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: inlineTx{}})
	assert.EqualError(t, err, "outbox repository required")
}
