package gps

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/units"
)

// MaxHDOP is the worst horizontal dilution of precision accepted from a
// receiver when high accuracy is requested.
const MaxHDOP = 5.0

var (
	ErrMalformedSentence   = errors.New("malformed nmea sentence")
	ErrUnsupportedSentence = errors.New("unsupported nmea sentence")
)

// ParseLine decodes a single checksummed NMEA 0183 line. Sentence types the
// decoder does not know are reported as ErrUnsupportedSentence, everything
// else that fails framing, checksum or field decoding as ErrMalformedSentence.
func ParseLine(line string) (nmea.Sentence, error) {
	s, err := nmea.Parse(strings.TrimSpace(line))
	if err != nil {
		var unsupported *nmea.NotSupportedError
		if errors.As(err, &unsupported) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSentence, unsupported.Prefix)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedSentence, err)
	}
	return s, nil
}

// SampleFromRMC maps a recommended minimum sentence onto a sample. A receiver
// without a fix (status V) yields ErrLocationUnavailable.
func SampleFromRMC(m nmea.RMC) (activity.GeoSample, error) {
	if m.Validity != nmea.ValidRMC {
		return activity.GeoSample{}, fmt.Errorf("%w: receiver reports no fix", activity.ErrLocationUnavailable)
	}

	ts, err := fixTime(m.Date, m.Time)
	if err != nil {
		return activity.GeoSample{}, err
	}

	// a missing or nonsensical speed is reported as stationary
	var speed float64
	if !math.IsNaN(m.Speed) && m.Speed > 0 {
		speed = m.Speed * units.KnotsToMPS
	}

	sample := activity.GeoSample{
		Latitude:        m.Latitude,
		Longitude:       m.Longitude,
		SpeedMPS:        speed,
		TimestampMillis: ts.UnixMilli(),
	}
	if err := sample.Validate(); err != nil {
		return activity.GeoSample{}, fmt.Errorf("%w: %v", ErrMalformedSentence, err)
	}
	return sample, nil
}

// HDOPFromGGA returns the horizontal dilution of precision of a fix.
func HDOPFromGGA(m nmea.GGA) (float64, error) {
	if m.FixQuality == nmea.Invalid {
		return 0, fmt.Errorf("%w: GGA fix quality 0", activity.ErrLocationUnavailable)
	}
	return m.HDOP, nil
}

// fixTime combines an RMC date and time of day in UTC.
func fixTime(d nmea.Date, t nmea.Time) (time.Time, error) {
	if !d.Valid || !t.Valid {
		return time.Time{}, fmt.Errorf("%w: missing date or time", ErrMalformedSentence)
	}
	// two digit years pivot at 1980, the start of GPS time
	year := d.YY + 2000
	if d.YY >= 80 {
		year = d.YY + 1900
	}
	return time.Date(year, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC), nil
}
