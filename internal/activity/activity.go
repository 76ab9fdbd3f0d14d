// Package activity defines the records shared by the session engine, the
// activity stores and the statistics aggregator.
package activity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Type is the kind of activity being recorded.
type Type string

const (
	Running Type = "running"
	Walking Type = "walking"
)

// ValidTypes lists every supported activity type.
var ValidTypes = []Type{Running, Walking}

// ParseType converts a user supplied name into a Type. Matching is case
// insensitive.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Running:
		return Running, nil
	case Walking:
		return Walking, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Valid reports whether t is one of ValidTypes.
func (t Type) Valid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// GeoSample is a single position fix delivered by a location source. Samples
// are transient and never stored individually.
type GeoSample struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	SpeedMPS        float64 `json:"speed_mps"`
	TimestampMillis int64   `json:"timestamp_ms"`
}

// Validate rejects samples that would corrupt distance accumulation.
func (s GeoSample) Validate() error {
	switch {
	case math.IsNaN(s.Latitude) || math.IsInf(s.Latitude, 0):
		return fmt.Errorf("%w: latitude is not finite", ErrInvalidSample)
	case math.IsNaN(s.Longitude) || math.IsInf(s.Longitude, 0):
		return fmt.Errorf("%w: longitude is not finite", ErrInvalidSample)
	case s.Latitude < -90 || s.Latitude > 90:
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidSample, s.Latitude)
	case s.Longitude < -180 || s.Longitude > 180:
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidSample, s.Longitude)
	case math.IsNaN(s.SpeedMPS) || math.IsInf(s.SpeedMPS, 0) || s.SpeedMPS < 0:
		return fmt.Errorf("%w: speed %f", ErrInvalidSample, s.SpeedMPS)
	}
	return nil
}

// Time returns the sample timestamp as a time.Time in UTC.
func (s GeoSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMillis).UTC()
}

// TrackPoint is a position on a finalized activity's route. Speed and
// timestamps are dropped when a session is finalized.
type TrackPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Activity is a finalized, immutable activity record.
type Activity struct {
	ID              string       `json:"id"`
	Type            Type         `json:"type"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         time.Time    `json:"end_time"`
	DistanceKm      float64      `json:"distance_km"`
	DurationSeconds int64        `json:"duration_seconds"`
	AvgPaceKmh      float64      `json:"avg_pace_kmh"`
	MaxSpeedKmh     float64      `json:"max_speed_kmh"`
	CaloriesBurned  float64      `json:"calories_burned"`
	Track           []TrackPoint `json:"track"`
}

// Clone returns a deep copy so callers can never mutate a stored record
// through a shared Track slice.
func (a Activity) Clone() Activity {
	c := a
	if a.Track != nil {
		c.Track = make([]TrackPoint, len(a.Track))
		copy(c.Track, a.Track)
	}
	return c
}

func (a Activity) String() string {
	return fmt.Sprintf("Activity %s: %s %.3fkm in %ds (%.2fkm/h, %.0fkcal, %d points)",
		a.ID, a.Type, a.DistanceKm, a.DurationSeconds, a.AvgPaceKmh, a.CaloriesBurned, len(a.Track))
}

// Store persists finalized activities. Implementations must be safe for
// concurrent use and must reflect an append in any subsequent list.
type Store interface {
	// AppendActivity persists a finalized activity at the end of the history.
	AppendActivity(ctx context.Context, a Activity) error
	// ListActivities returns the full history in insertion order.
	ListActivities(ctx context.Context) ([]Activity, error)
	// DeleteActivity removes an activity. Deleting an unknown id is not an
	// error.
	DeleteActivity(ctx context.Context, id string) error
	// GetActivity returns a single activity or ErrNotFound.
	GetActivity(ctx context.Context, id string) (Activity, error)
}
