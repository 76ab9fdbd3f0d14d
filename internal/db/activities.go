package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/stride/internal/activity"
)

var _ activity.Store = (*DB)(nil)

const activityColumns = `activity_id, activity_type, start_time_ns, end_time_ns, distance_km,
	duration_seconds, avg_pace_kmh, max_speed_kmh, calories_burned`

// AppendActivity stores a and its track in a single transaction.
func (db *DB) AppendActivity(ctx context.Context, a activity.Activity) error {
	if err := db.appendActivity(ctx, a); err != nil {
		return &activity.PersistenceError{Op: "append", ID: a.ID, Err: err}
	}
	return nil
}

func (db *DB) appendActivity(ctx context.Context, a activity.Activity) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.StartTime.UnixNano(), a.EndTime.UnixNano(), a.DistanceKm,
		a.DurationSeconds, a.AvgPaceKmh, a.MaxSpeedKmh, a.CaloriesBurned,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	if len(a.Track) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO activity_track_points (activity_id, seq, lat, lng) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, p := range a.Track {
			if _, err := stmt.ExecContext(ctx, a.ID, i, p.Lat, p.Lng); err != nil {
				return fmt.Errorf("insert track point %d: %w", i, err)
			}
		}
	}

	return tx.Commit()
}

// ListActivities returns every activity in the order it was appended.
func (db *DB) ListActivities(ctx context.Context) ([]activity.Activity, error) {
	acts, err := db.listActivities(ctx)
	if err != nil {
		return nil, &activity.PersistenceError{Op: "list", Err: err}
	}
	return acts, nil
}

func (db *DB) listActivities(ctx context.Context) ([]activity.Activity, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	acts := []activity.Activity{}
	index := make(map[string]int)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[a.ID] = len(acts)
		acts = append(acts, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	points, err := tx.QueryContext(ctx,
		`SELECT activity_id, lat, lng FROM activity_track_points ORDER BY activity_id, seq`)
	if err != nil {
		return nil, err
	}
	defer points.Close()
	for points.Next() {
		var (
			id string
			p  activity.TrackPoint
		)
		if err := points.Scan(&id, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			acts[i].Track = append(acts[i].Track, p)
		}
	}
	if err := points.Err(); err != nil {
		return nil, err
	}
	return acts, tx.Commit()
}

// GetActivity returns the activity with the given id or activity.ErrNotFound.
func (db *DB) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Activity{}, fmt.Errorf("%w: %s", activity.ErrNotFound, id)
	}
	if err != nil {
		return activity.Activity{}, &activity.PersistenceError{Op: "get", ID: id, Err: err}
	}

	track, err := db.track(ctx, id)
	if err != nil {
		return activity.Activity{}, &activity.PersistenceError{Op: "get", ID: id, Err: err}
	}
	a.Track = track
	return a, nil
}

func (db *DB) track(ctx context.Context, id string) ([]activity.TrackPoint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT lat, lng FROM activity_track_points WHERE activity_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var track []activity.TrackPoint
	for rows.Next() {
		var p activity.TrackPoint
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		track = append(track, p)
	}
	return track, rows.Err()
}

// DeleteActivity removes an activity and its track. Unknown ids are ignored.
func (db *DB) DeleteActivity(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM activities WHERE activity_id = ?`, id); err != nil {
		return &activity.PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (activity.Activity, error) {
	var (
		a              activity.Activity
		typ            string
		startNs, endNs int64
	)
	err := s.Scan(&a.ID, &typ, &startNs, &endNs, &a.DistanceKm,
		&a.DurationSeconds, &a.AvgPaceKmh, &a.MaxSpeedKmh, &a.CaloriesBurned)
	if err != nil {
		return activity.Activity{}, err
	}
	a.Type = activity.Type(typ)
	a.StartTime = time.Unix(0, startNs).UTC()
	a.EndTime = time.Unix(0, endNs).UTC()
	return a, nil
}
