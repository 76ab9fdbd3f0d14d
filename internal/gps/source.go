// Package gps delivers position fixes from a GPS receiver to any number of
// subscribers.
package gps

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/banshee-data/stride/internal/activity"
)

// DefaultTimeout is how long a subscriber waits for a fix before it is sent
// an ErrLocationUnavailable reading.
const DefaultTimeout = 10 * time.Second

// Options tunes a single subscription.
type Options struct {
	// HighAccuracy drops fixes whose reported HDOP exceeds MaxHDOP.
	HighAccuracy bool
	// Timeout emits ErrLocationUnavailable when no fix arrives in time.
	// Zero disables the watchdog.
	Timeout time.Duration
	// MaxSampleAge drops fixes older than this relative to the clock. Zero
	// accepts fixes of any age.
	MaxSampleAge time.Duration
}

// DefaultOptions returns the options used when recording an activity.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      DefaultTimeout,
		MaxSampleAge: 0,
	}
}

// Reading is either a sample or a location error.
type Reading struct {
	Sample activity.GeoSample
	Err    error
}

// Source is a stream of position readings. A subscription stays open until it
// is unsubscribed or the source is closed, at which point its channel is
// closed.
type Source interface {
	Subscribe(opts Options) (string, <-chan Reading, error)
	// Unsubscribe releases a subscription. It is safe to call more than once.
	Unsubscribe(id string)
}

// Device is a Source backed by hardware (or a stand-in for it) that must be
// monitored to produce readings.
type Device interface {
	Source
	// Monitor reads from the device until ctx is cancelled or the device
	// stops producing data.
	Monitor(ctx context.Context) error
	// Close closes every subscription and releases the device.
	Close() error
	// AttachAdminRoutes mounts debugging endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// randomID generates a random subscription ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
