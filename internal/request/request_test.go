package request

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"empty xff entry falls through", map[string]string{"X-Forwarded-For": " , 5.6.7.8", "X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.1:12345", "10.0.0.1:12345"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			got := ClientIP(r)
			if got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	t.Parallel()
	p := &Principal{Subject: "user-1", Scopes: []string{"notes:write"}}
	ctx := WithPrincipal(context.Background(), p)
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	got := PrincipalFromContext(r)
	if got != p {
		t.Errorf("PrincipalFromContext() = %p, want %p", got, p)
	}
	if !got.HasScope("notes:write") || got.HasScope("admin") {
		t.Errorf("HasScope mismatch for %+v", got.Scopes)
	}
}

func TestPrincipalFromContext_NoPrincipal(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/", nil)
	got := PrincipalFromContext(r)
	if got != nil {
		t.Errorf("PrincipalFromContext() = %+v, want nil", got)
	}
	if got.HasScope("notes:write") {
		t.Error("nil principal has a scope")
	}
}

func TestPrincipalFromContext_WrongType(t *testing.T) {
	t.Parallel()
	ctx := context.WithValue(context.Background(), PrincipalContextKey(), "not a principal")
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	got := PrincipalFromContext(r)
	if got != nil {
		t.Errorf("PrincipalFromContext() = %+v, want nil when wrong type", got)
	}
}
