// Package api is the JSON presentation layer over the session recorder, the
// activity store and the statistics aggregator.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/httputil"
	"github.com/banshee-data/stride/internal/session"
	"github.com/banshee-data/stride/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Recorder is the part of session.Recorder the API drives.
type Recorder interface {
	Start(ctx context.Context, t activity.Type) error
	Stop(ctx context.Context) (*activity.Activity, error)
	Snapshot(ctx context.Context) (session.Snapshot, bool, error)
}

type Server struct {
	rec   Recorder
	store activity.Store
}

func NewServer(rec Recorder, store activity.Store) *Server {
	return &Server{
		rec:   rec,
		store: store,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// WithCORS allows browser clients from origins to call the API. With no
// origins the handler is returned unchanged.
func WithCORS(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return next
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(next)
}

// ServeMux returns a mux with every /api/ route registered. Callers may add
// further routes, such as /debug/, before serving it.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", s.showSession)
	mux.HandleFunc("POST /api/session/start", s.startSession)
	mux.HandleFunc("POST /api/session/stop", s.stopSession)
	mux.HandleFunc("GET /api/activities", s.listActivities)
	mux.HandleFunc("GET /api/activities/{id}", s.showActivity)
	mux.HandleFunc("DELETE /api/activities/{id}", s.deleteActivity)
	mux.HandleFunc("GET /api/stats", s.showStats)
	mux.HandleFunc("GET /api/charts/distance", s.distanceChart)
	mux.HandleFunc("GET /api/charts/pace.png", s.paceChart)
	mux.HandleFunc("GET /api/version", s.showVersion)
	return mux
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var pe *activity.PersistenceError
	switch {
	case errors.Is(err, activity.ErrInvalidState):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, activity.ErrInvalidType):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, activity.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.As(err, &pe):
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, session.ErrRecorderClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("api: unexpected error: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Current())
}
