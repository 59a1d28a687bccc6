package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// DefaultAllowedOrigin is used when no origin is configured.
const DefaultAllowedOrigin = "http://localhost:3000"

// ParseOrigins splits a comma separated origin list, dropping blanks and
// duplicates. An empty result falls back to DefaultAllowedOrigin.
func ParseOrigins(raw string) []string {
	var origins []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		o := strings.TrimSpace(part)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = []string{DefaultAllowedOrigin}
	}
	return origins
}

func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		MaxAge:           86400,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
	}
}

// CORS creates CORS middleware for a fixed origin list.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(corsOptions(origins)).Handler
}
