package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "stride.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous) // NORMAL

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore) // MEMORY

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestPragmasAppliedToExistingDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.db")
	first, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestAppendAndListPreservesOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// ids deliberately not in lexical order
	acts := []activity.Activity{
		testutil.NewActivity("zulu", activity.Running, 5.2, 1560),
		testutil.NewActivity("alpha", activity.Walking, 2.1, 1500),
		testutil.NewActivity("mike", activity.Running, 10, 3000),
	}
	for _, a := range acts {
		require.NoError(t, db.AppendActivity(ctx, a))
	}

	got, err := db.ListActivities(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(acts, got); diff != "" {
		t.Errorf("ListActivities mismatch (-want +got):\n%s", diff)
	}
}

func TestListEmpty(t *testing.T) {
	db := newTestDB(t)

	got, err := db.ListActivities(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTrackOrderIsPreserved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := testutil.NewActivity("loop", activity.Running, 1, 300)
	a.Track = nil
	for i := 0; i < 25; i++ {
		a.Track = append(a.Track, activity.TrackPoint{Lat: 51.5 - float64(i)*0.0001, Lng: -0.12 + float64(i%3)*0.0001})
	}
	require.NoError(t, db.AppendActivity(ctx, a))

	got, err := db.GetActivity(ctx, "loop")
	require.NoError(t, err)
	if diff := cmp.Diff(a.Track, got.Track); diff != "" {
		t.Errorf("track mismatch (-want +got):\n%s", diff)
	}
}

func TestActivityWithoutTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := testutil.NewActivity("bare", activity.Walking, 0.5, 400)
	a.Track = nil
	require.NoError(t, db.AppendActivity(ctx, a))

	got, err := db.GetActivity(ctx, "bare")
	require.NoError(t, err)
	assert.Empty(t, got.Track)
	assert.Equal(t, a.StartTime, got.StartTime)
	assert.Equal(t, a.EndTime, got.EndTime)
}

func TestGetActivityNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetActivity(context.Background(), "missing")
	assert.ErrorIs(t, err, activity.ErrNotFound)

	var perr *activity.PersistenceError
	assert.False(t, errors.As(err, &perr), "not found is not a persistence failure")
}

func TestDeleteActivityCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, a := range testutil.History(3) {
		require.NoError(t, db.AppendActivity(ctx, a))
	}
	require.NoError(t, db.DeleteActivity(ctx, "act-001"))

	got, err := db.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "act-000", got[0].ID)
	assert.Equal(t, "act-002", got[1].ID)

	var points int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM activity_track_points WHERE activity_id = ?`, "act-001").Scan(&points))
	assert.Zero(t, points)

	assert.NoError(t, db.DeleteActivity(ctx, "never-existed"))
}

func TestDuplicateIDIsPersistenceError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := testutil.NewActivity("dup", activity.Running, 3, 900)
	require.NoError(t, db.AppendActivity(ctx, a))

	err := db.AppendActivity(ctx, a)
	var perr *activity.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append", perr.Op)
	assert.Equal(t, "dup", perr.ID)

	got, err := db.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, got[0].Track, len(a.Track), "failed append must not add track points")
}

func TestRejectedAppendLeavesNoRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := testutil.NewActivity("cycling", activity.Type("cycling"), 20, 3600)
	err := db.AppendActivity(ctx, a)
	var perr *activity.PersistenceError
	require.ErrorAs(t, err, &perr)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activity_track_points`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activities`).Scan(&n))
	assert.Zero(t, n)
}

func TestCancelledContext(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.AppendActivity(ctx, testutil.NewActivity("late", activity.Running, 1, 60))
	var perr *activity.PersistenceError
	assert.ErrorAs(t, err, &perr)

	_, err = db.ListActivities(ctx)
	assert.ErrorAs(t, err, &perr)
}

func TestHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	want := testutil.History(4)
	for _, a := range want {
		require.NoError(t, db.AppendActivity(ctx, a))
	}
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.ListActivities(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history after reopen (-want +got):\n%s", diff)
	}
}
