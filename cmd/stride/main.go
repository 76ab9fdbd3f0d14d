// Command stride records running and walking activities from a GPS receiver
// and serves the history over a JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/api"
	"github.com/banshee-data/stride/internal/config"
	"github.com/banshee-data/stride/internal/db"
	"github.com/banshee-data/stride/internal/gps"
	"github.com/banshee-data/stride/internal/pgstore"
	"github.com/banshee-data/stride/internal/session"
	"github.com/banshee-data/stride/internal/version"
)

const envFile = ".env"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			cfg := config.Default()
			if err := cfg.ApplyEnv(envFile); err != nil {
				log.Fatalf("failed to load environment: %v", err)
			}
			if err := db.RunMigrateCommand(os.Args[2:], cfg.DBPath, os.Stdout); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		case "version":
			printVersion(os.Stdout)
			return
		}
	}

	cfg, err := config.Load(os.Args[1:], envFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, version.Current())
}

// store is an activity store together with its lifecycle hooks.
type store struct {
	activity.Store
	attachAdmin func(mux *http.ServeMux) error
	close       func() error
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &store{
			Store:       s,
			attachAdmin: func(*http.ServeMux) error { return nil },
			close:       func() error { pool.Close(); return nil },
		}, nil
	default:
		d, err := db.NewDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return &store{Store: d, attachAdmin: d.AttachAdminRoutes, close: d.Close}, nil
	}
}

func openDevice(cfg *config.Config) (gps.Device, error) {
	switch {
	case cfg.GPS.Disabled:
		log.Printf("GPS disabled; sessions will record no samples")
		return gps.NewDisabledSource(), nil
	case cfg.GPS.Replay != "":
		data, err := os.ReadFile(cfg.GPS.Replay)
		if err != nil {
			return nil, fmt.Errorf("failed to open replay file: %w", err)
		}
		log.Printf("replaying %s every %s", cfg.GPS.Replay, cfg.GPS.ReplayInterval)
		return gps.NewReplayReceiver(data, cfg.GPS.ReplayInterval.Duration), nil
	default:
		r, err := gps.NewSerialReceiver(cfg.GPS.Port, cfg.GPS.Serial)
		if err != nil {
			return nil, err
		}
		log.Printf("reading GPS from %s", cfg.GPS.Port)
		return r, nil
	}
}

func engineConfig(cfg *config.Config) session.EngineConfig {
	ec := session.DefaultEngineConfig()
	ec.NoiseFloorMeters = cfg.Session.NoiseFloorMeters
	ec.CaloriesPerKm = map[activity.Type]float64{
		activity.Running: cfg.Session.RunningCaloriesPerKm,
		activity.Walking: cfg.Session.WalkingCaloriesPerKm,
	}
	return ec
}

// newHandler assembles the API, the /debug/ admin routes and the middleware.
func newHandler(rec api.Recorder, st *store, device gps.Device, cfg *config.Config) (http.Handler, error) {
	mux := api.NewServer(rec, st).ServeMux()
	device.AttachAdminRoutes(mux)
	if err := st.attachAdmin(mux); err != nil {
		return nil, err
	}
	return api.WithCORS(api.LoggingMiddleware(mux), cfg.CORSOrigins), nil
}

// run starts the device monitor, the recorder and the HTTP server, and
// blocks until ctx is cancelled and all of them have stopped.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	device, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer device.Close()

	rec, err := session.NewRecorder(session.RecorderConfig{
		Engine:       engineConfig(cfg),
		Source:       device,
		Store:        st,
		TickInterval: cfg.Session.TickInterval.Duration,
		Location:     cfg.GPSOptions(),
	})
	if err != nil {
		return err
	}

	handler, err := newHandler(rec, st, device, cfg)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := device.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor gps: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// the recorder saves an active session on shutdown, so the store must
	// stay open until it returns
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("recorder stopped: %v", err)
		}
		log.Print("recorder routine terminated")
	}()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cancel()
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	return err
}
