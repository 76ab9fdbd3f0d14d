// Package units provides shared constants and conversions for speeds,
// distances and durations.
package units

import (
	"fmt"
	"time"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// MPSToKmh is the factor converting metres per second into kilometres per hour.
const MPSToKmh = 3.6

// KnotsToMPS converts NMEA speed over ground (knots) into metres per second.
const KnotsToMPS = 0.514444

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Samples carry speeds in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * MPSToKmh
	default:
		return speedMPS
	}
}

// Kmh converts metres per second to kilometres per hour.
func Kmh(speedMPS float64) float64 {
	return speedMPS * MPSToKmh
}

// PaceKmh returns the average rate in km/h for a distance covered in the
// given number of seconds. A zero duration yields 0 rather than +Inf.
func PaceKmh(distanceKm float64, seconds int64) float64 {
	if seconds <= 0 {
		return 0
	}
	return distanceKm / (float64(seconds) / 3600)
}

// FormatDuration renders whole seconds as "1h 2m 3s", dropping the hour
// component when it is zero ("2m 3s").
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
