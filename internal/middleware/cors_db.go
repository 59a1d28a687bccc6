package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/database"
	"go.uber.org/zap"
)

// CORSReloader wraps rs/cors and periodically reloads the allowed origins
// from the api settings table.
type CORSReloader struct {
	reloader
	settings database.SettingStore
	fallback string
	log      *zap.Logger
}

// NewCORSReloader creates a CORS middleware that loads origins from the DB
// and hot-reloads them. fallback (e.g. FRONTEND_URL) applies while no
// origins are stored.
func NewCORSReloader(settings database.SettingStore, fallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	r := &CORSReloader{
		settings: settings,
		fallback: strings.TrimSpace(fallback),
		log:      log,
	}
	r.interval = reloadInterval
	r.build = r.buildHandler
	return r
}

// Middleware returns a middleware that wraps next with CORS and hot-reload.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return r.wrap
}

func (r *CORSReloader) buildHandler(ctx context.Context, next http.Handler) (http.Handler, error) {
	raw, err := r.settings.Get(ctx, database.SettingAllowedOrigins)
	if err != nil {
		r.log.Warn("failed_to_load_cors_config_from_db_using_fallback",
			zap.Error(err),
			zap.String("fallback", r.fallback),
		)
		raw = ""
	}
	if strings.TrimSpace(raw) == "" {
		raw = r.fallback
	}
	return CORS(ParseOrigins(raw))(next), nil
}
