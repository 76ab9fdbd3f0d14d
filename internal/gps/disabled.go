package gps

import (
	"context"
	"net/http"
	"sync"
)

// DisabledSource is used when no GPS receiver is attached (--disable-gps).
// Subscriptions never receive readings, but their channels are closed on
// Unsubscribe or Close so readers unblock during shutdown.
type DisabledSource struct {
	mu          sync.Mutex
	subscribers map[string]chan Reading
	closing     bool
}

var _ Device = (*DisabledSource)(nil)

func NewDisabledSource() *DisabledSource {
	return &DisabledSource{
		subscribers: make(map[string]chan Reading),
	}
}

func (d *DisabledSource) Subscribe(Options) (string, <-chan Reading, error) {
	id := randomID()
	ch := make(chan Reading)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch, nil
	}
	d.subscribers[id] = ch
	return id, ch, nil
}

func (d *DisabledSource) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSource) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSource) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/gps-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("gps disabled"))
	})
}
