// Package session turns a live stream of geolocation samples into finalized
// activity records.
//
// Engine is the state machine for a single in-progress activity. It is not
// safe for concurrent use; Recorder owns an Engine and serialises every event
// (samples, ticks, start and stop) onto one goroutine.
package session

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/geo"
	"github.com/banshee-data/stride/internal/monitoring"
	"github.com/banshee-data/stride/internal/timeutil"
	"github.com/banshee-data/stride/internal/units"
)

// DefaultNoiseFloorMeters is the distance at or below which a stopped
// session is discarded as GPS jitter.
const DefaultNoiseFloorMeters = 10.0

// EngineConfig tunes session finalization.
type EngineConfig struct {
	// NoiseFloorMeters discards sessions whose total distance does not
	// exceed it.
	NoiseFloorMeters float64
	// CaloriesPerKm is the flat energy cost per kilometre for each type.
	CaloriesPerKm map[activity.Type]float64
	// NewID generates activity identifiers. Defaults to UUIDv7, which sorts
	// by creation time.
	NewID func() string
}

// DefaultEngineConfig returns the standard calorie model: 60 kcal/km running,
// 30 kcal/km walking.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		NoiseFloorMeters: DefaultNoiseFloorMeters,
		CaloriesPerKm: map[activity.Type]float64{
			activity.Running: 60,
			activity.Walking: 30,
		},
		NewID: newActivityID,
	}
}

func newActivityID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Snapshot is a read-only view of the active session.
type Snapshot struct {
	Type        activity.Type `json:"type"`
	StartTime   time.Time     `json:"start_time"`
	SampleCount int           `json:"sample_count"`
	// DistanceMeters is the running sum of distances between consecutive
	// samples.
	DistanceMeters float64 `json:"distance_m"`
	MaxSpeedMPS    float64 `json:"max_speed_mps"`
	// CurrentSpeedKmh is the speed reported by the most recent sample. It is
	// not averaged.
	CurrentSpeedKmh float64 `json:"current_speed_kmh"`
	Calories        float64 `json:"calories"`
	ElapsedSeconds  int64   `json:"elapsed_seconds"`
	LocationErrors  int     `json:"location_errors"`
}

// Elapsed returns ElapsedSeconds formatted for display.
func (s Snapshot) Elapsed() string {
	return units.FormatDuration(s.ElapsedSeconds)
}

type session struct {
	typ             activity.Type
	startTime       time.Time
	samples         []activity.GeoSample
	distanceMeters  float64
	maxSpeedMPS     float64
	currentSpeedKmh float64
	calories        float64
	elapsedSeconds  int64
	locationErrors  int
}

// Engine is the Idle/Recording state machine for one activity at a time.
type Engine struct {
	cfg     EngineConfig
	clock   timeutil.Clock
	current *session
	logf    func(format string, v ...interface{})
}

// NewEngine returns an idle Engine. Zero-valued config fields take their
// defaults.
func NewEngine(cfg EngineConfig, clock timeutil.Clock) *Engine {
	def := DefaultEngineConfig()
	if cfg.NoiseFloorMeters <= 0 {
		cfg.NoiseFloorMeters = def.NoiseFloorMeters
	}
	if cfg.CaloriesPerKm == nil {
		cfg.CaloriesPerKm = def.CaloriesPerKm
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{cfg: cfg, clock: clock, logf: monitoring.Prefixed("session")}
}

// Recording reports whether a session is active.
func (e *Engine) Recording() bool {
	return e.current != nil
}

// Start begins a new session of the given type.
func (e *Engine) Start(t activity.Type) error {
	if e.current != nil {
		return fmt.Errorf("%w: start called while recording %s", activity.ErrInvalidState, e.current.typ)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q", activity.ErrInvalidType, t)
	}
	e.current = &session{
		typ:       t,
		startTime: e.clock.Now(),
	}
	return nil
}

// OnSample folds a sample into the active session and reports whether it was
// applied. Samples arriving while idle are ignored. An invalid sample is
// rejected without touching the session.
func (e *Engine) OnSample(s activity.GeoSample) bool {
	cur := e.current
	if cur == nil {
		return false
	}
	if err := s.Validate(); err != nil {
		e.logf("rejected sample: %v", err)
		return false
	}

	// compute everything first so the session is updated all at once
	distance := cur.distanceMeters
	if n := len(cur.samples); n > 0 {
		distance += geo.Between(cur.samples[n-1], s)
	}
	maxSpeed := math.Max(cur.maxSpeedMPS, s.SpeedMPS)
	elapsed := e.elapsedAt(e.clock.Now())

	cur.samples = append(cur.samples, s)
	cur.distanceMeters = distance
	cur.maxSpeedMPS = maxSpeed
	cur.currentSpeedKmh = units.Kmh(s.SpeedMPS)
	cur.calories = e.caloriesFor(cur.typ, distance)
	if elapsed > cur.elapsedSeconds {
		cur.elapsedSeconds = elapsed
	}
	return true
}

// Tick advances the elapsed time without touching distance or calories.
func (e *Engine) Tick(now time.Time) {
	if e.current == nil {
		return
	}
	if elapsed := e.elapsedAt(now); elapsed > e.current.elapsedSeconds {
		e.current.elapsedSeconds = elapsed
	}
}

// RecordLocationError counts a location failure against the active session.
// The session itself is unaffected.
func (e *Engine) RecordLocationError() {
	if e.current != nil {
		e.current.locationErrors++
	}
}

// Snapshot returns a copy of the active session's metrics.
func (e *Engine) Snapshot() (Snapshot, bool) {
	cur := e.current
	if cur == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Type:            cur.typ,
		StartTime:       cur.startTime,
		SampleCount:     len(cur.samples),
		DistanceMeters:  cur.distanceMeters,
		MaxSpeedMPS:     cur.maxSpeedMPS,
		CurrentSpeedKmh: cur.currentSpeedKmh,
		Calories:        cur.calories,
		ElapsedSeconds:  cur.elapsedSeconds,
		LocationErrors:  cur.locationErrors,
	}, true
}

// Stop ends the active session. It returns a nil activity when the session
// did not cover more than the noise floor.
func (e *Engine) Stop() (*activity.Activity, error) {
	cur := e.current
	if cur == nil {
		return nil, fmt.Errorf("%w: stop called while idle", activity.ErrInvalidState)
	}
	e.current = nil

	now := e.clock.Now()
	// duration is read from the clock at stop, not the last tick, so a stop
	// between ticks is not short by up to one tick interval
	elapsed := cur.elapsedSeconds
	if fresh := elapsedSince(cur.startTime, now); fresh > elapsed {
		elapsed = fresh
	}

	if cur.distanceMeters <= e.cfg.NoiseFloorMeters {
		return nil, nil
	}

	distanceKm := cur.distanceMeters / 1000
	track := make([]activity.TrackPoint, len(cur.samples))
	for i, s := range cur.samples {
		track[i] = activity.TrackPoint{Lat: s.Latitude, Lng: s.Longitude}
	}

	return &activity.Activity{
		ID:              e.cfg.NewID(),
		Type:            cur.typ,
		StartTime:       cur.startTime,
		EndTime:         now,
		DistanceKm:      distanceKm,
		DurationSeconds: elapsed,
		AvgPaceKmh:      units.PaceKmh(distanceKm, elapsed),
		MaxSpeedKmh:     units.Kmh(cur.maxSpeedMPS),
		CaloriesBurned:  cur.calories,
		Track:           track,
	}, nil
}

// Abort discards the active session, if any, without producing an activity.
func (e *Engine) Abort() {
	e.current = nil
}

func (e *Engine) caloriesFor(t activity.Type, distanceMeters float64) float64 {
	return distanceMeters / 1000 * e.cfg.CaloriesPerKm[t]
}

func (e *Engine) elapsedAt(now time.Time) int64 {
	return elapsedSince(e.current.startTime, now)
}

func elapsedSince(start, now time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
