package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{name: "GET request", method: "GET", path: "/healthz", handlerStatus: http.StatusOK},
		{name: "POST request", method: "POST", path: "/api/v1/notes/enqueue", handlerStatus: http.StatusAccepted},
		{name: "404 request", method: "GET", path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			RequestID(Logging(zap.New(core))(handler)).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.handlerStatus)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("got %d http_request entries, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["path"] != tt.path {
				t.Errorf("path = %v, want %s", fields["path"], tt.path)
			}
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("status_code = %v, want %d", fields["status_code"], tt.handlerStatus)
			}
			if fields["request_id"] == "" {
				t.Error("request_id missing")
			}
		})
	}
}

func TestLogging_ImplicitStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test"))
		w.WriteHeader(http.StatusTeapot)
	})

	Logging(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["status_code"] != int64(http.StatusOK) {
		t.Errorf("entries = %+v, want one entry with status 200", entries)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	existing := uuid.New().String()
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "assigned when missing", incoming: "", keep: false},
		{name: "kept when valid", incoming: existing, keep: true},
		{name: "replaced when malformed", incoming: "not-a-uuid\r\n", keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			})
			req := httptest.NewRequest("GET", "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q != context %q", got, seen)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("request id %q is not a uuid", got)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("request id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("request id %q was not replaced", got)
			}
		})
	}

	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q", got)
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		event  string
	}{
		{status: http.StatusOK, event: ""},
		{status: http.StatusUnauthorized, event: "security_event"},
		{status: http.StatusForbidden, event: "security_event"},
		{status: http.StatusTooManyRequests, event: "rate_limit_violation"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			req := httptest.NewRequest("GET", "/api/v1/runs", nil)
			req.Header.Set("X-Forwarded-For", "1.2.3.4")
			Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)

			if tt.event == "" {
				if logs.Len() != 0 {
					t.Errorf("logged %d entries for %d", logs.Len(), tt.status)
				}
				return
			}
			entries := logs.FilterMessage(tt.event).All()
			if len(entries) != 1 {
				t.Fatalf("got %d %s entries, want 1", len(entries), tt.event)
			}
			if ip := entries[0].ContextMap()["ip"]; ip != "1.2.3.4" {
				t.Errorf("ip = %v, want 1.2.3.4", ip)
			}
		})
	}
}
