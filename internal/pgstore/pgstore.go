// Package pgstore is the PostgreSQL activity store. Tracks are stored inline
// as JSONB so an append is a single statement.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banshee-data/stride/internal/activity"
)

const connectTimeout = 5 * time.Second

// Querier is the subset of pgx used by the store. Both *pgxpool.Pool and
// pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool for url and checks that the server answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

// Store implements activity.Store on PostgreSQL.
type Store struct {
	db Querier
}

var _ activity.Store = (*Store)(nil)

// New returns a store using db. Call EnsureSchema before first use.
func New(db Querier) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	seq              BIGSERIAL,
	activity_id      TEXT PRIMARY KEY,
	activity_type    TEXT NOT NULL CHECK (activity_type IN ('running', 'walking')),
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ NOT NULL,
	distance_km      DOUBLE PRECISION NOT NULL,
	duration_seconds BIGINT NOT NULL,
	avg_pace_kmh     DOUBLE PRECISION NOT NULL,
	max_speed_kmh    DOUBLE PRECISION NOT NULL,
	calories_burned  DOUBLE PRECISION NOT NULL,
	track            JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_activities_seq ON activities (seq);
`

// EnsureSchema creates the activities table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const selectColumns = `activity_id, activity_type, start_time, end_time, distance_km,
	duration_seconds, avg_pace_kmh, max_speed_kmh, calories_burned, track`

func (s *Store) AppendActivity(ctx context.Context, a activity.Activity) error {
	track := a.Track
	if track == nil {
		track = []activity.TrackPoint{}
	}
	encoded, err := json.Marshal(track)
	if err != nil {
		return &activity.PersistenceError{Op: "append", ID: a.ID, Err: err}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO activities (activity_id, activity_type, start_time, end_time, distance_km,
			duration_seconds, avg_pace_kmh, max_speed_kmh, calories_burned, track)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, string(a.Type), a.StartTime, a.EndTime, a.DistanceKm,
		a.DurationSeconds, a.AvgPaceKmh, a.MaxSpeedKmh, a.CaloriesBurned, encoded)
	if err != nil {
		return &activity.PersistenceError{Op: "append", ID: a.ID, Err: err}
	}
	return nil
}

func (s *Store) ListActivities(ctx context.Context) ([]activity.Activity, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM activities ORDER BY seq`)
	if err != nil {
		return nil, &activity.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	acts := []activity.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, &activity.PersistenceError{Op: "list", Err: err}
		}
		acts = append(acts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &activity.PersistenceError{Op: "list", Err: err}
	}
	return acts, nil
}

func (s *Store) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM activities WHERE activity_id = $1`, id)
	a, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return activity.Activity{}, fmt.Errorf("%w: %s", activity.ErrNotFound, id)
	}
	if err != nil {
		return activity.Activity{}, &activity.PersistenceError{Op: "get", ID: id, Err: err}
	}
	return a, nil
}

// DeleteActivity removes the activity with id. Unknown ids are ignored.
func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM activities WHERE activity_id = $1`, id); err != nil {
		return &activity.PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

func scanActivity(row pgx.Row) (activity.Activity, error) {
	var (
		a     activity.Activity
		typ   string
		track []byte
	)
	err := row.Scan(&a.ID, &typ, &a.StartTime, &a.EndTime, &a.DistanceKm,
		&a.DurationSeconds, &a.AvgPaceKmh, &a.MaxSpeedKmh, &a.CaloriesBurned, &track)
	if err != nil {
		return activity.Activity{}, err
	}
	a.Type = activity.Type(typ)
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	if len(track) > 0 {
		if err := json.Unmarshal(track, &a.Track); err != nil {
			return activity.Activity{}, fmt.Errorf("decode track of %s: %w", a.ID, err)
		}
	}
	if len(a.Track) == 0 {
		a.Track = nil
	}
	return a, nil
}
