package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/quota"
)

const (
	DefaultWindow   = time.Minute
	DefaultMaxCalls = 60
)

// Store increments the counter for key inside the current window and
// reports the new count and when the window resets.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps buckets in process. An expired bucket is replaced on
// its next access; nothing sweeps idle keys.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.count++
	return b.count, b.resetAt, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RedisStore struct {
	counter WindowCounter
}

func NewRedisStore(counter WindowCounter) *RedisStore {
	return &RedisStore{counter: counter}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	count, ttl, err := s.counter.IncrWindow(ctx, key, window)
	if err != nil {
		return 0, time.Time{}, err
	}
	return int(count), now.Add(ttl), nil
}

type Result struct {
	Allowed   bool
	Limited   bool
	Remaining int
	ResetAt   time.Time
	ResetIn   time.Duration
}

type Config struct {
	Window   time.Duration
	MaxCalls int
	Mode     quota.Mode
	Store    Store
	Logger   *zap.Logger
	Now      func() time.Time
}

type Limiter struct {
	window   time.Duration
	maxCalls int
	mode     quota.Mode
	store    Store
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = DefaultMaxCalls
	}
	if cfg.Mode == "" {
		cfg.Mode = quota.ModeEnforced
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		window:   cfg.Window,
		maxCalls: cfg.MaxCalls,
		mode:     cfg.Mode,
		store:    cfg.Store,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// CheckAndIncrement counts one call for identity. An empty identity and
// bypass mode are always allowed and never counted.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity string) (Result, error) {
	if identity == "" || l.mode == quota.ModeBypass {
		metrics.RateLimitDecisions.WithLabelValues("bypassed").Inc()
		return Result{Allowed: true, Remaining: l.maxCalls}, nil
	}

	now := l.now()
	count, resetAt, err := l.store.Incr(ctx, identity, l.window, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count call: %w", err)
	}

	res := Result{
		Limited: count > l.maxCalls,
		ResetAt: resetAt,
		ResetIn: resetAt.Sub(now),
	}
	if res.Remaining = l.maxCalls - count; res.Remaining < 0 {
		res.Remaining = 0
	}
	res.Allowed = !res.Limited || l.mode == quota.ModeSoft

	switch {
	case !res.Limited:
		metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
	case res.Allowed:
		metrics.RateLimitDecisions.WithLabelValues("soft_exceeded").Inc()
	default:
		metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
	}

	return res, nil
}

// Middleware limits /api requests per X-User-ID. Requests without the
// header pass through uncounted. A failing store lets the request through.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := ""
		if userID := c.Get("X-User-ID"); userID != "" {
			identity = "user:" + userID
		}

		res, err := l.CheckAndIncrement(c.UserContext(), identity)
		if err != nil {
			l.logger.Error("Rate limiter unavailable, allowing request",
				zap.String("key", identity),
				zap.Error(err),
			)
			return c.Next()
		}

		if identity != "" && l.mode != quota.ModeBypass {
			c.Set("X-RateLimit-Limit", strconv.Itoa(l.maxCalls))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}

		if !res.Allowed {
			l.logger.Warn("Rate limit exceeded",
				zap.String("key", identity),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			rerr := &apperr.RateLimitExceededError{Identity: identity, RetryAfter: res.ResetIn}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(res.ResetIn)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":          rerr.Error(),
				"retry_after_ms": res.ResetIn.Milliseconds(),
			})
		}

		if res.Limited {
			c.Set("X-RateLimit-Soft-Exceeded", "true")
		}

		return c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
