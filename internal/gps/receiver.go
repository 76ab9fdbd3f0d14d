package gps

import (
	"bufio"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/monitoring"
	"github.com/banshee-data/stride/internal/timeutil"
)

// subscriberBuffer is the number of readings held for a slow subscriber before
// further readings are skipped.
const subscriberBuffer = 8

// watchdogInterval is how often subscription timeouts are checked.
const watchdogInterval = time.Second

// Stats counts what a Receiver has seen since it was created.
type Stats struct {
	Lines       int       `json:"lines"`
	Fixes       int       `json:"fixes"`
	NoFix       int       `json:"no_fix"`
	Rejected    int       `json:"rejected"`
	Subscribers int       `json:"subscribers"`
	HDOP        float64   `json:"hdop,omitempty"`
	LastFix     time.Time `json:"last_fix,omitempty"`
}

type subscriber struct {
	opts        Options
	ch          chan Reading
	lastReading time.Time
}

// Receiver reads NMEA sentences from a single port and fans the decoded
// readings out to every subscriber.
type Receiver[T SerialPorter] struct {
	port  T
	clock timeutil.Clock
	logf  func(format string, v ...interface{})

	mu          sync.Mutex
	subscribers map[string]*subscriber
	closing     bool
	ended       bool
	hdop        float64
	haveHDOP    bool
	stats       Stats
}

var _ Device = (*Receiver[SerialPorter])(nil)

// NewReceiver wraps port. A nil clock uses wall-clock time.
func NewReceiver[T SerialPorter](port T, clock timeutil.Clock) *Receiver[T] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Receiver[T]{
		port:        port,
		clock:       clock,
		logf:        monitoring.Prefixed("gps"),
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a new subscription. Subscribing to a closed receiver,
// or one whose port has reached EOF, returns an already closed channel.
func (r *Receiver[T]) Subscribe(opts Options) (string, <-chan Reading, error) {
	id := randomID()
	sub := &subscriber{
		opts:        opts,
		ch:          make(chan Reading, subscriberBuffer),
		lastReading: r.clock.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing || r.ended {
		close(sub.ch)
		return id, sub.ch, nil
	}
	r.subscribers[id] = sub
	return id, sub.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (r *Receiver[T]) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subscribers[id]; ok {
		close(sub.ch)
		delete(r.subscribers, id)
	}
}

// Monitor reads lines from the port and delivers readings until ctx is
// cancelled, the port reaches EOF or the receiver is closed. Once the port
// stops producing lines every subscription is closed.
func (r *Receiver[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(r.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs on its own goroutine so the loop below can
	// still observe cancellation and the timeout watchdog.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	watchdog := r.clock.NewTicker(watchdogInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			r.endStream()
			return err

		case now := <-watchdog.C():
			r.checkTimeouts(now)

		case line, ok := <-lineChan:
			if !ok {
				r.endStream()
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if r.isClosing() {
				return nil
			}
			r.handleLine(line)
		}
	}
}

// endStream closes the subscriptions of a port that will deliver nothing
// more, so subscribers see a closed channel instead of waiting on timeouts.
func (r *Receiver[T]) endStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended || r.closing {
		return
	}
	r.ended = true
	for id, sub := range r.subscribers {
		close(sub.ch)
		delete(r.subscribers, id)
	}
}

func (r *Receiver[T]) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

func (r *Receiver[T]) handleLine(line string) {
	r.mu.Lock()
	r.stats.Lines++
	r.mu.Unlock()

	sentence, err := ParseLine(line)
	switch {
	case errors.Is(err, ErrUnsupportedSentence):
		return
	case err != nil:
		r.reject(line, err)
		return
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		hdop, err := HDOPFromGGA(s)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.hdop, r.haveHDOP = hdop, true
		r.stats.HDOP = hdop
		r.mu.Unlock()

	case nmea.RMC:
		sample, err := SampleFromRMC(s)
		switch {
		case errors.Is(err, activity.ErrLocationUnavailable):
			r.mu.Lock()
			r.stats.NoFix++
			r.mu.Unlock()
			r.broadcast(Reading{Err: err})
		case err != nil:
			r.reject(line, err)
		default:
			r.mu.Lock()
			r.stats.Fixes++
			r.stats.LastFix = sample.Time()
			r.mu.Unlock()
			r.broadcast(Reading{Sample: sample})
		}
	}
}

func (r *Receiver[T]) reject(line string, err error) {
	r.mu.Lock()
	r.stats.Rejected++
	r.mu.Unlock()
	r.logf("rejected line %q: %v", line, err)
}

// broadcast delivers a reading to every subscriber whose options accept it.
// Subscribers that are not keeping up are skipped.
func (r *Receiver[T]) broadcast(rd Reading) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscribers {
		if rd.Err == nil && !r.accepts(sub.opts, rd.Sample, now) {
			continue
		}
		select {
		case sub.ch <- rd:
			sub.lastReading = now
		default:
		}
	}
}

// accepts must be called with r.mu held.
func (r *Receiver[T]) accepts(opts Options, s activity.GeoSample, now time.Time) bool {
	if opts.HighAccuracy && r.haveHDOP && r.hdop > MaxHDOP {
		return false
	}
	if opts.MaxSampleAge > 0 && now.Sub(s.Time()) > opts.MaxSampleAge {
		return false
	}
	return true
}

// checkTimeouts sends ErrLocationUnavailable to subscribers that have gone
// without a reading for longer than their timeout.
func (r *Receiver[T]) checkTimeouts(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscribers {
		if sub.opts.Timeout <= 0 || now.Sub(sub.lastReading) < sub.opts.Timeout {
			continue
		}
		select {
		case sub.ch <- Reading{Err: activity.ErrLocationUnavailable}:
		default:
		}
		sub.lastReading = now
	}
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Subscribers = len(r.subscribers)
	return s
}

// Close closes every subscription and the underlying port.
func (r *Receiver[T]) Close() error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	for id, sub := range r.subscribers {
		close(sub.ch)
		delete(r.subscribers, id)
	}
	r.mu.Unlock()
	return r.port.Close()
}
