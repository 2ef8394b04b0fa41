package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

func seedOutboxRow(t *testing.T, repo *Repository, createdAt time.Time, publishedAt *time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutBatchCreated,
		AggregateType: enums.AggregatePayoutBatch,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, repo.Insert(repo.db, row))
	return row
}

func TestClaimDeliverableSkipsDeliveredAndParkedRows(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	published := base.Add(time.Minute)

	first := seedOutboxRow(t, repo, base, nil, 0)
	seedOutboxRow(t, repo, base.Add(time.Second), &published, 0)
	seedOutboxRow(t, repo, base.Add(2*time.Second), nil, 5)
	retrying := seedOutboxRow(t, repo, base.Add(3*time.Second), nil, 2)

	rows, err := repo.ClaimDeliverable(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first.ID, rows[0].ID)
	require.Equal(t, retrying.ID, rows[1].ID)
}

func TestRecordFailureThenPark(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	row := seedOutboxRow(t, repo, time.Now().UTC(), nil, 0)

	require.NoError(t, repo.RecordFailure(conn, row.ID, errors.New("topic unavailable")))
	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, 1, stored.AttemptCount)
	require.Equal(t, "topic unavailable", *stored.LastError)

	require.NoError(t, repo.Park(conn, row.ID, errors.New("bad payload"), 10))
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, 10, stored.AttemptCount)

	require.NoError(t, repo.MarkDelivered(conn, row.ID, time.Now()))
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	require.NotNil(t, stored.PublishedAt)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	seedOutboxRow(t, repo, old, &old, 0)
	keptRecent := seedOutboxRow(t, repo, old, &recent, 0)
	seedOutboxRow(t, repo, old, nil, 10)
	keptPending := seedOutboxRow(t, repo, old, nil, 3)

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, cutoff, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("attempt_count ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	require.Equal(t, keptRecent.ID, remaining[0].ID)
	require.Equal(t, keptPending.ID, remaining[1].ID)

	require.Len(t, truncateError(errors.New(string(make([]byte, 2000)))), maxLastErrorLen)
}
