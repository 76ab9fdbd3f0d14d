// Package stats aggregates an activity history into summary statistics.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stride/internal/activity"
)

// Summary is derived from the full history on every request and never
// cached.
type Summary struct {
	TotalDistanceKm    float64 `json:"total_distance_km"`
	TotalActivityCount int     `json:"total_activity_count"`
	// AveragePaceKmh is the unweighted mean of each activity's pace, so a
	// short activity counts as much as a long one.
	AveragePaceKmh float64 `json:"average_pace_kmh"`
	TotalCalories  float64 `json:"total_calories"`
}

// Summarize folds history into a Summary. An empty history yields the zero
// Summary.
func Summarize(history []activity.Activity) Summary {
	if len(history) == 0 {
		return Summary{}
	}

	distances := make([]float64, len(history))
	paces := make([]float64, len(history))
	calories := make([]float64, len(history))
	for i, a := range history {
		distances[i] = a.DistanceKm
		paces[i] = a.AvgPaceKmh
		calories[i] = a.CaloriesBurned
	}

	return Summary{
		TotalDistanceKm:    floats.Sum(distances),
		TotalActivityCount: len(history),
		AveragePaceKmh:     stat.Mean(paces, nil),
		TotalCalories:      floats.Sum(calories),
	}
}

// ByType summarises each activity type separately. Types with no activities
// are omitted.
func ByType(history []activity.Activity) map[activity.Type]Summary {
	groups := make(map[activity.Type][]activity.Activity)
	for _, a := range history {
		groups[a.Type] = append(groups[a.Type], a)
	}
	out := make(map[activity.Type]Summary, len(groups))
	for t, acts := range groups {
		out[t] = Summarize(acts)
	}
	return out
}

// Rounded returns the display form of s: distance and pace to two decimals,
// calories to whole kilocalories.
func (s Summary) Rounded() Summary {
	return Summary{
		TotalDistanceKm:    round(s.TotalDistanceKm, 2),
		TotalActivityCount: s.TotalActivityCount,
		AveragePaceKmh:     round(s.AveragePaceKmh, 2),
		TotalCalories:      round(s.TotalCalories, 0),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
