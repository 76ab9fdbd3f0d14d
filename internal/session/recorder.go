package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/gps"
	"github.com/banshee-data/stride/internal/monitoring"
	"github.com/banshee-data/stride/internal/timeutil"
)

// DefaultTickInterval is how often elapsed time is refreshed while recording.
const DefaultTickInterval = time.Second

// shutdownPersistTimeout bounds the save of an activity that was still
// recording when Run's context was cancelled.
const shutdownPersistTimeout = 5 * time.Second

var (
	// ErrRecorderClosed is returned by calls made after Run has exited.
	ErrRecorderClosed = errors.New("recorder closed")
	// ErrSessionAborted is returned when handling a request panicked. The
	// active session, if any, has been discarded.
	ErrSessionAborted = errors.New("session aborted")
)

// RecorderConfig wires a Recorder to its collaborators.
type RecorderConfig struct {
	Engine       EngineConfig
	Source       gps.Source
	Store        activity.Store
	Clock        timeutil.Clock
	TickInterval time.Duration
	Location     gps.Options
}

// recording is the live subscription and ticker of an active session. They
// are acquired together on start and released together on every exit.
type recording struct {
	subID    string
	readings <-chan gps.Reading
	ticker   timeutil.Ticker
}

type call struct {
	fn   func()
	done chan error
}

// Recorder serialises every event of a session onto the goroutine running
// Run: start and stop requests, location readings and timer ticks. All its
// methods are safe for concurrent use.
type Recorder struct {
	engine       *Engine
	source       gps.Source
	store        activity.Store
	clock        timeutil.Clock
	tickInterval time.Duration
	location     gps.Options
	logf         func(format string, v ...interface{})

	calls  chan call
	closed chan struct{}

	// owned by the Run goroutine
	rec *recording
}

// NewRecorder returns a Recorder. Its other methods block until Run is
// started.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Source == nil {
		return nil, errors.New("recorder requires a location source")
	}
	if cfg.Store == nil {
		return nil, errors.New("recorder requires an activity store")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Location == (gps.Options{}) {
		cfg.Location = gps.DefaultOptions()
	}
	return &Recorder{
		engine:       NewEngine(cfg.Engine, cfg.Clock),
		source:       cfg.Source,
		store:        cfg.Store,
		clock:        cfg.Clock,
		tickInterval: cfg.TickInterval,
		location:     cfg.Location,
		logf:         monitoring.Prefixed("recorder"),
		calls:        make(chan call),
		closed:       make(chan struct{}),
	}, nil
}

// Run processes events until ctx is cancelled. A session still recording at
// that point is finalized and saved.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.closed)
	defer r.release()

	for {
		var readings <-chan gps.Reading
		var ticks <-chan time.Time
		if r.rec != nil {
			readings = r.rec.readings
			ticks = r.rec.ticker.C()
		}

		select {
		case <-ctx.Done():
			r.finishOnShutdown()
			return ctx.Err()

		case c := <-r.calls:
			r.exec(c)

		case rd, ok := <-readings:
			if !ok {
				r.logf("location source closed the subscription; no further samples this session")
				r.source.Unsubscribe(r.rec.subID)
				r.rec.readings = nil
				continue
			}
			r.handleReading(rd)

		case now := <-ticks:
			r.engine.Tick(now)
		}
	}
}

func (r *Recorder) handleReading(rd gps.Reading) {
	if rd.Err != nil {
		r.engine.RecordLocationError()
		r.logf("location error: %v", rd.Err)
		return
	}
	r.engine.OnSample(rd.Sample)
}

// exec runs a request on the Run goroutine. A panic discards the session and
// is reported to the caller.
func (r *Recorder) exec(c call) {
	defer func() {
		if p := recover(); p != nil {
			r.logf("recovered panic, discarding session: %v", p)
			r.release()
			r.engine.Abort()
			c.done <- fmt.Errorf("%w: %v", ErrSessionAborted, p)
		}
	}()
	c.fn()
	c.done <- nil
}

// do hands fn to the Run goroutine and waits for it to complete. Once the
// request is accepted it always runs to completion.
func (r *Recorder) do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case r.calls <- c:
	case <-r.closed:
		return ErrRecorderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.done
}

// Start begins recording an activity of type t.
func (r *Recorder) Start(ctx context.Context, t activity.Type) error {
	var startErr error
	if err := r.do(ctx, func() { startErr = r.start(t) }); err != nil {
		return err
	}
	return startErr
}

func (r *Recorder) start(t activity.Type) error {
	if err := r.engine.Start(t); err != nil {
		return err
	}
	id, readings, err := r.source.Subscribe(r.location)
	if err != nil {
		r.engine.Abort()
		return fmt.Errorf("subscribe to location source: %w", err)
	}
	r.rec = &recording{
		subID:    id,
		readings: readings,
		ticker:   r.clock.NewTicker(r.tickInterval),
	}
	r.logf("started %s session", t)
	return nil
}

// Stop ends the active session and saves it. A nil activity with a nil error
// means the session was discarded as noise. If saving fails the finalized
// activity is returned together with a *activity.PersistenceError so the
// caller may retry.
func (r *Recorder) Stop(ctx context.Context) (*activity.Activity, error) {
	var (
		act     *activity.Activity
		stopErr error
	)
	if err := r.do(ctx, func() { act, stopErr = r.stop() }); err != nil {
		return nil, err
	}
	if stopErr != nil || act == nil {
		return nil, stopErr
	}

	if err := r.persist(ctx, *act); err != nil {
		return act, err
	}
	return act, nil
}

func (r *Recorder) stop() (*activity.Activity, error) {
	act, err := r.engine.Stop()
	if err != nil {
		return nil, err
	}
	r.release()
	if act == nil {
		r.logf("discarded session below the noise floor")
	} else {
		r.logf("finalized %v", act)
	}
	return act, nil
}

// persist saves a finalized activity, normalising failures to
// *activity.PersistenceError.
func (r *Recorder) persist(ctx context.Context, a activity.Activity) error {
	err := r.store.AppendActivity(ctx, a)
	if err == nil {
		return nil
	}
	var pe *activity.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &activity.PersistenceError{Op: "append", ID: a.ID, Err: err}
}

// Snapshot returns the active session metrics and whether a session is
// recording.
func (r *Recorder) Snapshot(ctx context.Context) (Snapshot, bool, error) {
	var (
		snap Snapshot
		ok   bool
	)
	if err := r.do(ctx, func() { snap, ok = r.engine.Snapshot() }); err != nil {
		return Snapshot{}, false, err
	}
	return snap, ok, nil
}

// finishOnShutdown saves a session that was still recording when Run was
// cancelled.
func (r *Recorder) finishOnShutdown() {
	if !r.engine.Recording() {
		return
	}
	act, err := r.stop()
	if err != nil || act == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
	defer cancel()
	if err := r.persist(ctx, *act); err != nil {
		r.logf("failed to save activity on shutdown: %v", err)
	}
}

// release stops the ticker and drops the location subscription. It is a
// no-op when nothing is held.
func (r *Recorder) release() {
	if r.rec == nil {
		return
	}
	r.rec.ticker.Stop()
	r.source.Unsubscribe(r.rec.subID)
	r.rec = nil
}
