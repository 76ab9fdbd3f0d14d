package gps

import (
	"testing"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stride/internal/activity"
)

const (
	rmcMunich    = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcNoFix     = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
	ggaGood      = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaPoor      = "$GPGGA,123520,4807.038,N,01131.000,E,1,04,7.5,545.4,M,46.9,M,,*4A"
	ggaNoFix     = "$GPGGA,123519,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*7E"
	rmcSouthWest = "$GNRMC,000000.500,A,3345.000,S,15112.000,W,,,010125,,,A*7A"
	gsv          = "$GPGSV,1,1,00*79"
	unknown      = "$GPZZZ,1,2*4E"
)

func parseRMC(t *testing.T, line string) (activity.GeoSample, error) {
	t.Helper()
	s, err := ParseLine(line)
	if err != nil {
		return activity.GeoSample{}, err
	}
	rmc, ok := s.(nmea.RMC)
	require.True(t, ok, "%q is %T", line, s)
	return SampleFromRMC(rmc)
}

func parseGGA(t *testing.T, line string) (float64, error) {
	t.Helper()
	s, err := ParseLine(line)
	require.NoError(t, err)
	gga, ok := s.(nmea.GGA)
	require.True(t, ok, "%q is %T", line, s)
	return HDOPFromGGA(gga)
}

func TestParseLine(t *testing.T) {
	s, err := ParseLine(rmcMunich + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, nmea.TypeRMC, s.DataType())
	assert.Equal(t, "GP", s.TalkerID())

	s, err = ParseLine(rmcSouthWest)
	require.NoError(t, err)
	assert.Equal(t, "GN", s.TalkerID())

	s, err = ParseLine(gsv)
	require.NoError(t, err)
	assert.Equal(t, nmea.TypeGSV, s.DataType())
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"no prefix", "GPRMC,123519,A", ErrMalformedSentence},
		{"bad checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00", ErrMalformedSentence},
		{"missing checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", ErrMalformedSentence},
		{"bad hemisphere", "$GPRMC,123519,A,4807.038,Q,01131.000,E,022.4,084.4,230394,003.1,W*75", ErrMalformedSentence},
		{"empty", "", ErrMalformedSentence},
		{"unknown type", unknown, ErrUnsupportedSentence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSampleFromRMC(t *testing.T) {
	sample, err := parseRMC(t, rmcMunich)
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, sample.Latitude, 1e-4)
	assert.InDelta(t, 11.516667, sample.Longitude, 1e-5)
	assert.InDelta(t, 11.5235, sample.SpeedMPS, 1e-3)
	assert.Equal(t, time.Date(1994, time.March, 23, 12, 35, 19, 0, time.UTC), sample.Time())
	assert.NoError(t, sample.Validate())
}

func TestSampleFromRMC_SouthWestWithoutSpeed(t *testing.T) {
	sample, err := parseRMC(t, rmcSouthWest)
	require.NoError(t, err)
	assert.InDelta(t, -33.75, sample.Latitude, 1e-9)
	assert.InDelta(t, -151.2, sample.Longitude, 1e-9)
	assert.Equal(t, 0.0, sample.SpeedMPS)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 500*int(time.Millisecond), time.UTC), sample.Time())
}

func TestSampleFromRMC_NoFix(t *testing.T) {
	_, err := parseRMC(t, rmcNoFix)
	assert.ErrorIs(t, err, activity.ErrLocationUnavailable)
}

func TestSampleFromRMC_Malformed(t *testing.T) {
	tests := []struct {
		name string
		rmc  nmea.RMC
	}{
		{"missing time", nmea.RMC{
			Validity: nmea.ValidRMC, Latitude: 48.1, Longitude: 11.5,
			Date: nmea.Date{Valid: true, DD: 23, MM: 3, YY: 94},
		}},
		{"missing date", nmea.RMC{
			Validity: nmea.ValidRMC, Latitude: 48.1, Longitude: 11.5,
			Time: nmea.Time{Valid: true, Hour: 12},
		}},
		{"latitude out of range", nmea.RMC{
			Validity: nmea.ValidRMC, Latitude: 91.1, Longitude: 11.5,
			Date: nmea.Date{Valid: true, DD: 23, MM: 3, YY: 94},
			Time: nmea.Time{Valid: true, Hour: 12},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SampleFromRMC(tt.rmc)
			assert.ErrorIs(t, err, ErrMalformedSentence)
		})
	}
}

func TestFixTime_YearPivot(t *testing.T) {
	tm := nmea.Time{Valid: true, Hour: 6, Minute: 30, Second: 15, Millisecond: 250}

	got, err := fixTime(nmea.Date{Valid: true, DD: 6, MM: 1, YY: 80}, tm)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1980, time.January, 6, 6, 30, 15, 250*int(time.Millisecond), time.UTC), got)

	got, err = fixTime(nmea.Date{Valid: true, DD: 1, MM: 6, YY: 79}, tm)
	require.NoError(t, err)
	assert.Equal(t, 2079, got.Year())
}

func TestHDOPFromGGA(t *testing.T) {
	hdop, err := parseGGA(t, ggaGood)
	require.NoError(t, err)
	assert.Equal(t, 0.9, hdop)

	hdop, err = parseGGA(t, ggaPoor)
	require.NoError(t, err)
	assert.Greater(t, hdop, MaxHDOP)

	_, err = parseGGA(t, ggaNoFix)
	assert.ErrorIs(t, err, activity.ErrLocationUnavailable)
}
