package testutil

import (
	"fmt"
	"time"

	"github.com/banshee-data/stride/internal/activity"
)

// FixtureStart is the start time of the first fixture activity.
var FixtureStart = time.Date(2025, time.June, 1, 7, 30, 0, 0, time.UTC)

// NewActivity returns a plausible finalized activity. Derived fields are
// consistent with distance and duration.
func NewActivity(id string, t activity.Type, distanceKm float64, durationSeconds int64) activity.Activity {
	rate := 60.0
	if t == activity.Walking {
		rate = 30
	}
	var pace float64
	if durationSeconds > 0 {
		pace = distanceKm / (float64(durationSeconds) / 3600)
	}
	start := FixtureStart
	return activity.Activity{
		ID:              id,
		Type:            t,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(durationSeconds) * time.Second),
		DistanceKm:      distanceKm,
		DurationSeconds: durationSeconds,
		AvgPaceKmh:      pace,
		MaxSpeedKmh:     pace * 1.3,
		CaloriesBurned:  distanceKm * rate,
		Track: []activity.TrackPoint{
			{Lat: 51.5007, Lng: -0.1246},
			{Lat: 51.5007 + distanceKm/111.19, Lng: -0.1246},
		},
	}
}

// History returns n activities alternating running and walking, one day
// apart.
func History(n int) []activity.Activity {
	out := make([]activity.Activity, n)
	for i := range out {
		t := activity.Running
		if i%2 == 1 {
			t = activity.Walking
		}
		a := NewActivity(fmt.Sprintf("act-%03d", i), t, float64(i+1), int64(600*(i+1)))
		offset := time.Duration(i) * 24 * time.Hour
		a.StartTime = a.StartTime.Add(offset)
		a.EndTime = a.EndTime.Add(offset)
		out[i] = a
	}
	return out
}
