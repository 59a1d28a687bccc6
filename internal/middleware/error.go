package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/benvon/voiceflow/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the body written for requests that panicked.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler turns a handler panic into a 500 JSON response. When the
// handler already started its response the panic is only logged.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				fields := []zap.Field{
					zap.Any("error", rec),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				}
				if rw.wroteHeader {
					logger.Error("panic_after_response_started", append(fields, zap.Int("status_code", rw.statusCode))...)
					return
				}
				logger.Error("panic_recovered", fields...)
				writeErrorResponse(w, r, http.StatusInternalServerError, "An unexpected error occurred", logger)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Warn("failed_to_encode_error_response", zap.Error(err), zap.Int("status_code", status))
	}
}
