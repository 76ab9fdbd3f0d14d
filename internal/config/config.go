// Package config loads stride's runtime configuration.
//
// Values are layered: built-in defaults, then an optional JSON file, then a
// .env file and STRIDE_* environment variables, then command-line flags.
// Later layers override earlier ones.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/stride/internal/gps"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Duration is a time.Duration written as a string like "1s" in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// GPSConfig selects and tunes the location source.
type GPSConfig struct {
	Port           string          `json:"port"`
	Serial         gps.PortOptions `json:"serial"`
	Replay         string          `json:"replay"`
	ReplayInterval Duration        `json:"replay_interval"`
	Disabled       bool            `json:"disabled"`
	HighAccuracy   bool            `json:"high_accuracy"`
	Timeout        Duration        `json:"timeout"`
	MaxSampleAge   Duration        `json:"max_sample_age"`
}

// SessionConfig tunes the session engine.
type SessionConfig struct {
	TickInterval         Duration `json:"tick_interval"`
	NoiseFloorMeters     float64  `json:"noise_floor_m"`
	RunningCaloriesPerKm float64  `json:"running_kcal_per_km"`
	WalkingCaloriesPerKm float64  `json:"walking_kcal_per_km"`
}

// Config is the complete runtime configuration.
type Config struct {
	Listen      string        `json:"listen"`
	Backend     string        `json:"backend"`
	DBPath      string        `json:"db_path"`
	PostgresURL string        `json:"postgres_url"`
	CORSOrigins []string      `json:"cors_origins"`
	GPS         GPSConfig     `json:"gps"`
	Session     SessionConfig `json:"session"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Listen:  "localhost:8080",
		Backend: BackendSQLite,
		DBPath:  "stride.db",
		GPS: GPSConfig{
			Port:           "/dev/ttyUSB0",
			Serial:         gps.PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"},
			ReplayInterval: Duration{500 * time.Millisecond},
			Timeout:        Duration{gps.DefaultTimeout},
		},
		Session: SessionConfig{
			TickInterval:         Duration{time.Second},
			NoiseFloorMeters:     10,
			RunningCaloriesPerKm: 60,
			WalkingCaloriesPerKm: 30,
		},
	}
}

// LoadFile overlays the JSON file at path onto c. Fields omitted from the
// file keep their current values, so partial configs are safe.
// The file must have a .json extension and be under 1MB.
func (c *Config) LoadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

// envVars maps STRIDE_* variables onto config fields.
var envVars = []struct {
	name  string
	apply func(c *Config, v string) error
}{
	{"STRIDE_LISTEN", func(c *Config, v string) error { c.Listen = v; return nil }},
	{"STRIDE_BACKEND", func(c *Config, v string) error { c.Backend = v; return nil }},
	{"STRIDE_DB_PATH", func(c *Config, v string) error { c.DBPath = v; return nil }},
	{"STRIDE_POSTGRES_URL", func(c *Config, v string) error { c.PostgresURL = v; return nil }},
	{"STRIDE_CORS_ORIGINS", func(c *Config, v string) error { c.CORSOrigins = splitList(v); return nil }},
	{"STRIDE_GPS_PORT", func(c *Config, v string) error { c.GPS.Port = v; return nil }},
	{"STRIDE_GPS_BAUD", func(c *Config, v string) error { return parseInt(v, &c.GPS.Serial.BaudRate) }},
	{"STRIDE_GPS_REPLAY", func(c *Config, v string) error { c.GPS.Replay = v; return nil }},
	{"STRIDE_GPS_DISABLED", func(c *Config, v string) error { return parseBool(v, &c.GPS.Disabled) }},
	{"STRIDE_GPS_HIGH_ACCURACY", func(c *Config, v string) error { return parseBool(v, &c.GPS.HighAccuracy) }},
	{"STRIDE_GPS_TIMEOUT", func(c *Config, v string) error { return parseDuration(v, &c.GPS.Timeout) }},
	{"STRIDE_GPS_MAX_SAMPLE_AGE", func(c *Config, v string) error { return parseDuration(v, &c.GPS.MaxSampleAge) }},
	{"STRIDE_TICK_INTERVAL", func(c *Config, v string) error { return parseDuration(v, &c.Session.TickInterval) }},
	{"STRIDE_NOISE_FLOOR_M", func(c *Config, v string) error { return parseFloat(v, &c.Session.NoiseFloorMeters) }},
}

// ApplyEnv overlays STRIDE_* variables onto c. Variables in envFile are used
// when the process environment does not set them; a missing envFile is not
// an error.
func (c *Config) ApplyEnv(envFile string) error {
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}

	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok {
			v, ok = dotenv[ev.name]
		}
		if !ok {
			continue
		}
		if err := ev.apply(c, v); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}
	return nil
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}

	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return errors.New("db_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q: expected %s or %s", c.Backend, BackendSQLite, BackendPostgres)
	}

	if !c.GPS.Disabled && c.GPS.Replay == "" {
		if c.GPS.Port == "" {
			return errors.New("gps port is required unless gps is disabled or replaying")
		}
		if _, err := c.GPS.Serial.Normalize(); err != nil {
			return fmt.Errorf("gps serial: %w", err)
		}
	}
	if c.GPS.Replay != "" && c.GPS.ReplayInterval.Duration <= 0 {
		return fmt.Errorf("gps replay_interval must be positive, got %s", c.GPS.ReplayInterval)
	}
	if c.GPS.Timeout.Duration <= 0 {
		return fmt.Errorf("gps timeout must be positive, got %s", c.GPS.Timeout)
	}
	if c.GPS.MaxSampleAge.Duration < 0 {
		return fmt.Errorf("gps max_sample_age must be non-negative, got %s", c.GPS.MaxSampleAge)
	}

	if c.Session.TickInterval.Duration <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.Session.TickInterval)
	}
	if c.Session.NoiseFloorMeters < 0 {
		return fmt.Errorf("noise_floor_m must be non-negative, got %f", c.Session.NoiseFloorMeters)
	}
	if c.Session.RunningCaloriesPerKm <= 0 || c.Session.WalkingCaloriesPerKm <= 0 {
		return errors.New("calorie rates must be positive")
	}
	return nil
}

// GPSOptions returns the subscription options for the recorder.
func (c *Config) GPSOptions() gps.Options {
	return gps.Options{
		HighAccuracy: c.GPS.HighAccuracy,
		Timeout:      c.GPS.Timeout.Duration,
		MaxSampleAge: c.GPS.MaxSampleAge.Duration,
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func parseDuration(v string, dst *Duration) error {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	dst.Duration = d
	return nil
}

// listValue is a comma separated flag value.
type listValue struct{ dst *[]string }

func (l listValue) String() string {
	if l.dst == nil {
		return ""
	}
	return strings.Join(*l.dst, ",")
}

func (l listValue) Set(v string) error {
	*l.dst = splitList(v)
	return nil
}

// Load builds the configuration from defaults, the file named by -config,
// envFile and finally the flags in args.
func Load(args []string, envFile string) (*Config, error) {
	cfg := Default()

	flags := flag.NewFlagSet("stride", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a JSON config file")
	cfg.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// flags win over every other layer, so remember them and apply them last
	explicit := map[string]string{}
	flags.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			explicit[f.Name] = f.Value.String()
		}
	})

	loaded := Default()
	if *configPath != "" {
		if err := loaded.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := loaded.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	*cfg = *loaded
	for name, value := range explicit {
		if err := flags.Set(name, value); err != nil {
			return nil, fmt.Errorf("flag -%s: %w", name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RegisterFlags binds command-line flags to the fields of c.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	flags.StringVar(&c.Backend, "backend", c.Backend, "activity store: sqlite or postgres")
	flags.StringVar(&c.DBPath, "db-path", c.DBPath, "path to the sqlite database")
	flags.StringVar(&c.PostgresURL, "postgres-url", c.PostgresURL, "postgres connection URL")
	flags.Var(listValue{&c.CORSOrigins}, "cors-origins", "comma separated allowed CORS origins")

	flags.StringVar(&c.GPS.Port, "gps-port", c.GPS.Port, "serial port of the GPS receiver")
	flags.IntVar(&c.GPS.Serial.BaudRate, "gps-baud", c.GPS.Serial.BaudRate, "GPS serial baud rate")
	flags.IntVar(&c.GPS.Serial.DataBits, "gps-data-bits", c.GPS.Serial.DataBits, "GPS serial data bits")
	flags.IntVar(&c.GPS.Serial.StopBits, "gps-stop-bits", c.GPS.Serial.StopBits, "GPS serial stop bits")
	flags.StringVar(&c.GPS.Serial.Parity, "gps-parity", c.GPS.Serial.Parity, "GPS serial parity (N, E or O)")
	flags.StringVar(&c.GPS.Replay, "gps-replay", c.GPS.Replay, "replay an NMEA file instead of reading a device")
	flags.DurationVar(&c.GPS.ReplayInterval.Duration, "gps-replay-interval", c.GPS.ReplayInterval.Duration, "delay between replayed sentences")
	flags.BoolVar(&c.GPS.Disabled, "disable-gps", c.GPS.Disabled, "run without a location source")
	flags.BoolVar(&c.GPS.HighAccuracy, "gps-high-accuracy", c.GPS.HighAccuracy, "drop fixes with poor HDOP")
	flags.DurationVar(&c.GPS.Timeout.Duration, "gps-timeout", c.GPS.Timeout.Duration, "report the location unavailable after this long without a fix")
	flags.DurationVar(&c.GPS.MaxSampleAge.Duration, "gps-max-sample-age", c.GPS.MaxSampleAge.Duration, "drop fixes older than this (0 accepts any age)")

	flags.DurationVar(&c.Session.TickInterval.Duration, "tick-interval", c.Session.TickInterval.Duration, "elapsed time refresh interval")
	flags.Float64Var(&c.Session.NoiseFloorMeters, "noise-floor", c.Session.NoiseFloorMeters, "discard activities no longer than this many meters")
}
