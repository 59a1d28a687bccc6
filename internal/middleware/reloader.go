package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// reloader serves the most recently built wrapper around next and rebuilds
// it on an interval. A failed build keeps the previous handler.
type reloader struct {
	next     http.Handler
	interval time.Duration
	build    func(ctx context.Context, next http.Handler) (http.Handler, error)
	onError  func(err error)

	mu      sync.RWMutex
	current http.Handler
}

func (r *reloader) wrap(next http.Handler) http.Handler {
	r.next = next
	r.load(context.Background())
	return r
}

// Start runs the reload loop until ctx is cancelled. Call after the middleware is applied.
func (r *reloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *reloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}
	h, err := r.build(ctx, r.next)
	if err != nil {
		if r.onError != nil {
			r.onError(err)
		}
		return
	}
	r.mu.Lock()
	r.current = h
	r.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (r *reloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if r.next != nil {
		r.next.ServeHTTP(w, req)
	}
}
