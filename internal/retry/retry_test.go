package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "500", err: &HTTPError{StatusCode: 500}, want: true},
		{name: "503 wrapped", err: fmt.Errorf("chat: %w", &HTTPError{StatusCode: 503}), want: true},
		{name: "429 rate limit", err: &HTTPError{StatusCode: 429, Type: "rate_limit_error"}, want: true},
		{name: "429 quota by type", err: &HTTPError{StatusCode: 429, Type: "insufficient_quota"}, want: false},
		{name: "429 quota by code", err: &HTTPError{StatusCode: 429, Type: "requests", Code: "insufficient_quota"}, want: false},
		{name: "401", err: &HTTPError{StatusCode: 401}, want: false},
		{name: "400", err: &HTTPError{StatusCode: 400}, want: false},
		{name: "404", err: &HTTPError{StatusCode: 404}, want: false},
		{name: "transport", err: &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")}, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain error", err: errors.New("decode failed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDo_SucceedsAfterServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	status, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return 0, err
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestDo_QuotaExhaustedFailsFast(t *testing.T) {
	t.Parallel()

	attempts := 0
	quotaErr := &HTTPError{StatusCode: 429, Type: QuotaExhaustedType, Message: "You exceeded your current quota"}
	_, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "", quotaErr
	})
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.QuotaExhausted() {
		t.Errorf("expected the quota error to propagate, got %v", err)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	attempts := 0
	var notified []int
	p := fastPolicy()
	p.Notify = func(err error, attempt int, wait time.Duration) {
		notified = append(notified, attempt)
	}
	_, err := Do(context.Background(), p, func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, &HTTPError{StatusCode: 502, Message: fmt.Sprintf("attempt %d", attempts)}
	})
	if attempts != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, attempts)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Message != fmt.Sprintf("attempt %d", DefaultMaxAttempts) {
		t.Errorf("expected the last error to propagate, got %q", httpErr.Message)
	}
	if len(notified) != DefaultMaxAttempts-1 {
		t.Errorf("expected %d notifications, got %d", DefaultMaxAttempts-1, len(notified))
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, &HTTPError{StatusCode: 401, Message: "invalid api key"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_TransportErrorRetried(t *testing.T) {
	t.Parallel()

	attempts := 0
	res, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok" || attempts != 3 {
		t.Errorf("expected ok after 3 attempts, got %q after %d", res, attempts)
	}
}

func TestDo_StopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.InitialInterval = 50 * time.Millisecond
	p.MaxInterval = 50 * time.Millisecond

	attempts := 0
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, &HTTPError{StatusCode: 500}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt after cancel, got %d", attempts)
	}
}
