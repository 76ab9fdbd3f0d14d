package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, time.Second, cfg.Session.TickInterval.Duration)
	assert.Equal(t, 10.0, cfg.Session.NoiseFloorMeters)
}

func TestLoadFilePartial(t *testing.T) {
	path := writeFile(t, "stride.json", `{
		"listen": ":9000",
		"gps": {"high_accuracy": true, "timeout": "30s"},
		"session": {"noise_floor_m": 25}
	}`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, ":9000", cfg.Listen)
	assert.True(t, cfg.GPS.HighAccuracy)
	assert.Equal(t, 30*time.Second, cfg.GPS.Timeout.Duration)
	assert.Equal(t, 25.0, cfg.Session.NoiseFloorMeters)

	// untouched fields keep defaults
	assert.Equal(t, "stride.db", cfg.DBPath)
	assert.Equal(t, 9600, cfg.GPS.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Session.TickInterval.Duration)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "wrong extension",
			path:    func(t *testing.T) string { return writeFile(t, "stride.yaml", "listen: x") },
			wantErr: ".json extension",
		},
		{
			name:    "missing",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			wantErr: "failed to stat",
		},
		{
			name: "too large",
			path: func(t *testing.T) string {
				return writeFile(t, "big.json", `{"listen":"`+strings.Repeat("x", maxFileSize)+`"}`)
			},
			wantErr: "too large",
		},
		{
			name:    "bad json",
			path:    func(t *testing.T) string { return writeFile(t, "bad.json", `{"listen":`) },
			wantErr: "failed to parse",
		},
		{
			name:    "bad duration",
			path:    func(t *testing.T) string { return writeFile(t, "dur.json", `{"gps":{"timeout":"soon"}}`) },
			wantErr: "failed to parse",
		},
		{
			name:    "numeric duration",
			path:    func(t *testing.T) string { return writeFile(t, "num.json", `{"gps":{"timeout":30}}`) },
			wantErr: "duration must be a string",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Default().LoadFile(tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STRIDE_BACKEND", "postgres")
	t.Setenv("STRIDE_POSTGRES_URL", "postgres://stride@localhost/stride")
	t.Setenv("STRIDE_GPS_TIMEOUT", "15s")
	t.Setenv("STRIDE_CORS_ORIGINS", "http://a.example, http://b.example,")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(""))
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://stride@localhost/stride", cfg.PostgresURL)
	assert.Equal(t, 15*time.Second, cfg.GPS.Timeout.Duration)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvDotenvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "STRIDE_LISTEN=:7000\nSTRIDE_GPS_DISABLED=true\nSTRIDE_NOISE_FLOOR_M=5\n")
	t.Setenv("STRIDE_LISTEN", ":7100")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile))
	assert.Equal(t, ":7100", cfg.Listen, "process environment wins over .env")
	assert.True(t, cfg.GPS.Disabled)
	assert.Equal(t, 5.0, cfg.Session.NoiseFloorMeters)
}

func TestApplyEnvMissingDotenv(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestApplyEnvInvalidValue(t *testing.T) {
	t.Setenv("STRIDE_GPS_BAUD", "fast")

	err := Default().ApplyEnv("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIDE_GPS_BAUD")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }, "unknown backend"},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"postgres without url", func(c *Config) { c.Backend = BackendPostgres }, "postgres_url"},
		{"no port", func(c *Config) { c.GPS.Port = "" }, "gps port"},
		{"bad data bits", func(c *Config) { c.GPS.Serial.DataBits = 9 }, "data bits"},
		{"bad parity", func(c *Config) { c.GPS.Serial.Parity = "X" }, "parity"},
		{"zero replay interval", func(c *Config) {
			c.GPS.Replay = "track.nmea"
			c.GPS.ReplayInterval.Duration = 0
		}, "replay_interval"},
		{"zero timeout", func(c *Config) { c.GPS.Timeout.Duration = 0 }, "timeout"},
		{"negative sample age", func(c *Config) { c.GPS.MaxSampleAge.Duration = -time.Second }, "max_sample_age"},
		{"zero tick", func(c *Config) { c.Session.TickInterval.Duration = 0 }, "tick_interval"},
		{"negative noise floor", func(c *Config) { c.Session.NoiseFloorMeters = -1 }, "noise_floor_m"},
		{"zero calories", func(c *Config) { c.Session.WalkingCaloriesPerKm = 0 }, "calorie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSkipsSerialWhenNotUsed(t *testing.T) {
	cfg := Default()
	cfg.GPS.Port = ""
	cfg.GPS.Serial.Parity = "X"
	cfg.GPS.Disabled = true
	assert.NoError(t, cfg.Validate())

	cfg.GPS.Disabled = false
	cfg.GPS.Replay = "track.nmea"
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayering(t *testing.T) {
	path := writeFile(t, "stride.json", `{"listen": ":9000", "db_path": "file.db", "gps": {"disabled": true}}`)
	envFile := writeFile(t, ".env", "STRIDE_DB_PATH=env.db\n")

	cfg, err := Load([]string{"-config", path, "-listen", ":9100", "-tick-interval", "2s"}, envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen, "flag overrides file")
	assert.Equal(t, "env.db", cfg.DBPath, "env overrides file")
	assert.True(t, cfg.GPS.Disabled, "file overrides default")
	assert.Equal(t, 2*time.Second, cfg.Session.TickInterval.Duration)
}

func TestLoadCORSFlag(t *testing.T) {
	cfg, err := Load([]string{"-cors-origins", "http://localhost:5173,http://example.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:5173", "http://example.com"}, cfg.CORSOrigins)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"}, "")
	assert.Error(t, err)

	_, err = Load([]string{"-backend", "postgres"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = Load([]string{"-config", "stride.toml"}, "")
	assert.Error(t, err)
}

func TestGPSOptions(t *testing.T) {
	cfg := Default()
	cfg.GPS.HighAccuracy = true
	cfg.GPS.MaxSampleAge.Duration = 5 * time.Second

	opts := cfg.GPSOptions()
	assert.True(t, opts.HighAccuracy)
	assert.Equal(t, cfg.GPS.Timeout.Duration, opts.Timeout)
	assert.Equal(t, 5*time.Second, opts.MaxSampleAge)
}

func TestDurationJSON(t *testing.T) {
	d := Duration{1500 * time.Millisecond}
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, d, back)
}
