package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// DefaultRate is the limit per client IP when none is configured.
const DefaultRate = "60-M"

// NewRedisClient connects to redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func clientKey(r *http.Request) string {
	return request.ClientIP(r)
}

// RateLimit limits requests per client IP with a fixed rate such as "5-S".
func RateLimit(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	mw := stdlibmw.NewMiddleware(limiter.New(store, parsed), stdlibmw.WithKeyGetter(clientKey))
	return mw.Handler, nil
}

// RateLimitReloader wraps ulule/limiter and periodically reloads the rate
// from the api settings table.
type RateLimitReloader struct {
	reloader
	store       limiter.Store
	settings    database.SettingStore
	defaultRate string
	log         *zap.Logger
}

// NewRateLimitReloader creates a Redis-backed rate limit middleware. When no
// rate is stored, defaultRate is saved and used.
func NewRateLimitReloader(redisClient *redis.Client, settings database.SettingStore, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	store, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "voiceflow_ratelimit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for rate limiter: %w", err)
	}
	return newRateLimitReloader(store, settings, defaultRate, log, reloadInterval), nil
}

func newRateLimitReloader(store limiter.Store, settings database.SettingStore, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = DefaultRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &RateLimitReloader{
		store:       store,
		settings:    settings,
		defaultRate: defaultRate,
		log:         log,
	}
	r.interval = reloadInterval
	r.build = r.buildHandler
	return r
}

// Middleware returns a middleware that wraps next with rate limiting and hot-reload.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return r.wrap
}

func (r *RateLimitReloader) buildHandler(ctx context.Context, next http.Handler) (http.Handler, error) {
	rate := r.defaultRate
	stored, err := r.settings.Get(ctx, database.SettingRateLimit)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
	case stored != "":
		rate = stored
	default:
		if err := r.settings.Set(ctx, database.SettingRateLimit, r.defaultRate); err != nil {
			r.log.Error("failed_to_save_default_ratelimit_config",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
		}
	}

	mw, err := RateLimit(r.store, rate)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rate),
		)
		mw, err = RateLimit(r.store, r.defaultRate)
		if err != nil {
			return nil, err
		}
	}
	return mw(next), nil
}
