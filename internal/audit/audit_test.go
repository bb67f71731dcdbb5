package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database/dbtest"
)

func TestRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	entries := []*AuditLog{
		{Action: ActionLogin, EntityType: "user", EntityID: "usr-1", UserID: "usr-1", Source: "web", CreatedAt: base},
		{Action: ActionCreate, EntityType: "plan", EntityID: "pln-1", UserID: "usr-1", Source: "web", CreatedAt: base.Add(time.Minute),
			Details: map[string]any{"name": "Monthly"}},
		{Action: ActionCheckIn, EntityType: "user", EntityID: "usr-2", UserID: "usr-2", Source: "kiosk", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
		_, err := uuid.Parse(strings.TrimPrefix(e.ID, "aud-"))
		assert.NoError(t, err, "audit id %q should carry a full uuid", e.ID)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, DefaultLimit, all.Limit)
	require.Len(t, all.Logs, 3)
	assert.Equal(t, ActionCheckIn, all.Logs[0].Action, "newest first")
	assert.Equal(t, "Monthly", all.Logs[1].Details["name"])

	byUser, err := repo.List(ctx, Filter{UserID: "usr-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, byUser.Total)

	byAction, err := repo.List(ctx, Filter{Action: ActionCreate, EntityType: "plan"})
	require.NoError(t, err)
	require.Len(t, byAction.Logs, 1)
	assert.Equal(t, "pln-1", byAction.Logs[0].EntityID)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, ActionCreate, page.Logs[0].Action)
}

func TestRepository_ListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)

	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, res.Limit)
	assert.Zero(t, res.Offset)
	assert.NotNil(t, res.Logs)
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)
	rec := NewRecorder(repo, nil)

	for range 5 {
		rec.Record(&AuditLog{Action: ActionLogout, EntityType: "user", Source: "web"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx) // returns once the queue is empty

	res, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)
	rec := NewRecorder(repo, nil)

	for range RecorderBufferSize + 10 {
		rec.Record(&AuditLog{Action: ActionCheckIn, EntityType: "user", Source: "kiosk"})
	}
	assert.Len(t, rec.ch, RecorderBufferSize)

	var nilRec *Recorder
	assert.NotPanics(t, func() { nilRec.Record(&AuditLog{}) })
}
