package gps

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"tailscale.com/tsweb"
)

var tailPageTemplate = template.Must(template.New("gps-tail").Parse(`<!DOCTYPE html>
<html>
<head><title>GPS tail</title></head>
<body>
<h1>GPS readings</h1>
<pre id="log" data-src="{{.}}"></pre>
<script>
const log = document.getElementById("log");
const es = new EventSource(log.dataset.src);
es.onmessage = (e) => { log.textContent = e.data + "\n" + log.textContent; };
</script>
</body>
</html>
`))

// readingEvent is the JSON form of a Reading on the tail stream.
type readingEvent struct {
	Latitude  float64   `json:"lat,omitempty"`
	Longitude float64   `json:"lng,omitempty"`
	SpeedKmh  float64   `json:"speed_kmh,omitempty"`
	Time      time.Time `json:"time,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newReadingEvent(rd Reading) readingEvent {
	if rd.Err != nil {
		return readingEvent{Error: rd.Err.Error()}
	}
	return readingEvent{
		Latitude:  rd.Sample.Latitude,
		Longitude: rd.Sample.Longitude,
		SpeedKmh:  rd.Sample.SpeedMPS * 3.6,
		Time:      rd.Sample.Time(),
	}
}

// AttachAdminRoutes mounts the live tail page and receiver counters under
// /debug/. tsweb restricts these to localhost and the tailnet.
func (r *Receiver[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("gps", "live tail of GPS readings", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tailPageTemplate.Execute(w, "/debug/gps-tail"); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("gps-tail", func(w http.ResponseWriter, req *http.Request) {
		serveTail(w, req, r)
	})

	debug.HandleSilentFunc("gps-stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(r.Stats())
	})
}

// serveTail streams every reading from src as Server-Sent Events until the
// client disconnects or the subscription is closed.
func serveTail(w http.ResponseWriter, req *http.Request, src Source) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c, err := src.Subscribe(Options{})
	if err != nil {
		http.Error(w, "Failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer src.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case rd, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(newReadingEvent(rd))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-req.Context().Done():
			return
		}
	}
}
