package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/config"
	"github.com/banshee-data/stride/internal/gps"
	"github.com/banshee-data/stride/internal/monitoring"
	"github.com/banshee-data/stride/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.DBPath = filepath.Join(t.TempDir(), "stride.db")
	cfg.GPS.Disabled = true
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOpenDevice(t *testing.T) {
	cfg := testConfig(t)

	d, err := openDevice(cfg)
	require.NoError(t, err)
	assert.IsType(t, &gps.DisabledSource{}, d)
	require.NoError(t, d.Close())

	cfg.GPS.Disabled = false
	cfg.GPS.Replay = "../../internal/gps/testdata/track.nmea"
	d, err = openDevice(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	cfg.GPS.Replay = filepath.Join(t.TempDir(), "missing.nmea")
	_, err = openDevice(cfg)
	assert.Error(t, err)

	cfg.GPS.Replay = ""
	cfg.GPS.Port = filepath.Join(t.TempDir(), "no-such-tty")
	_, err = openDevice(cfg)
	assert.Error(t, err)
}

func TestEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.NoiseFloorMeters = 42
	cfg.Session.WalkingCaloriesPerKm = 45

	ec := engineConfig(cfg)
	assert.Equal(t, 42.0, ec.NoiseFloorMeters)
	assert.Equal(t, 60.0, ec.CaloriesPerKm[activity.Running])
	assert.Equal(t, 45.0, ec.CaloriesPerKm[activity.Walking])
	assert.NotNil(t, ec.NewID)
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := testConfig(t)

	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer st.close()

	ctx := context.Background()
	require.NoError(t, st.AppendActivity(ctx, testutil.NewActivity("a", activity.Walking, 1, 600)))
	acts, err := st.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func TestOpenStorePostgresUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = config.BackendPostgres
	cfg.PostgresURL = "postgres://stride@127.0.0.1:1/stride?connect_timeout=1"

	_, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSOrigins = []string{"http://localhost:5173"}

	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer st.close()
	device := gps.NewDisabledSource()
	defer device.Close()

	h, err := newHandler(nil, st, device, cfg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/version"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/activities"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, testutil.NewLocalRequest(http.MethodGet, "/debug/backup", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := testutil.NewTestRequest(http.MethodGet, "/api/version")
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Listen = "127.0.0.1:-1"

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after listen failure")
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "stride dev")
}
