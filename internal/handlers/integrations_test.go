package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/voiceflow/internal/retry"
	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/benvon/voiceflow/internal/services/todoist"
)

func TestIntegrationsHandler_Todoist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		client      *mockTodoist
		wantStatus  int
		wantMessage string
	}{
		{
			name:       "ok",
			client:     &mockTodoist{projects: []todoist.Project{{ID: "1", Name: "Inbox"}}, labels: []todoist.Label{{ID: "2", Name: "urgent"}}},
			wantStatus: http.StatusOK,
		},
		{
			name:        "no token",
			client:      &mockTodoist{err: todoist.ErrNotConfigured},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "not configured",
		},
		{
			name:        "rejected token",
			client:      &mockTodoist{err: fmt.Errorf("list projects: %w", &retry.HTTPError{StatusCode: http.StatusUnauthorized})},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "401 Unauthorized",
		},
		{
			name:       "upstream failure",
			client:     &mockTodoist{err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewIntegrationsHandler(tt.client, &mockConverter{}, nil)
			for path, handle := range map[string]http.HandlerFunc{
				"/api/v1/todoist/projects": h.Projects,
				"/api/v1/todoist/labels":   h.Labels,
			} {
				w := httptest.NewRecorder()
				handle(w, httptest.NewRequest(http.MethodGet, path, nil))
				if w.Code != tt.wantStatus {
					t.Errorf("%s status = %d, want %d", path, w.Code, tt.wantStatus)
				}
				if !strings.Contains(w.Body.String(), tt.wantMessage) {
					t.Errorf("%s body = %s, want %q", path, w.Body.String(), tt.wantMessage)
				}
			}
		})
	}
}

func TestIntegrationsHandler_ConverterHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		converter *mockConverter
		wantReady bool
		wantError bool
	}{
		{name: "ready", converter: &mockConverter{health: &converter.Health{Status: "running", FFmpegAvailable: true}}, wantReady: true},
		{name: "no ffmpeg", converter: &mockConverter{health: &converter.Health{Status: "running"}}},
		{name: "unreachable", converter: &mockConverter{err: errors.New("dial tcp: connection refused")}, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewIntegrationsHandler(&mockTodoist{}, tt.converter, nil)
			w := httptest.NewRecorder()
			h.ConverterHealth(w, httptest.NewRequest(http.MethodGet, "/api/v1/converter/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var resp ConverterHealthResponse
			decodeData(t, w.Body.Bytes(), &resp)
			if resp.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tt.wantReady)
			}
			if (resp.Error != "") != tt.wantError {
				t.Errorf("error = %q, wantError %v", resp.Error, tt.wantError)
			}
		})
	}
}
