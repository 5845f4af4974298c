// Package quota enforces the monthly token ceiling and keeps the usage
// ledger. Token counts are estimates (four characters per token), not the
// provider's billed numbers.
package quota

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/storage/models"
)

const DefaultMonthlyTokenLimit = 200000

type Mode string

const (
	ModeEnforced Mode = "enforced"
	ModeSoft     Mode = "soft"
	ModeBypass   Mode = "bypass"
)

func ParseMode(disable string) (Mode, error) {
	switch disable {
	case "", "off":
		return ModeEnforced, nil
	case "soft":
		return ModeSoft, nil
	case "full-bypass":
		return ModeBypass, nil
	}
	return "", fmt.Errorf("unknown limits mode %q", disable)
}

func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

func EstimateTextTokens(s string) int {
	return EstimateTokens(utf8.RuneCountInString(s))
}

// Period is the ledger key for the calendar month containing t, in UTC.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type LedgerStore interface {
	RecordUsageEvent(ctx context.Context, userID string, event models.UsageEvent) error
	GetUserProfile(ctx context.Context, userID, period string) (models.UserProfile, error)
	IncrementUserTokens(ctx context.Context, userID, period string, delta int) error
}

type UsageReporter interface {
	UsageByEventType(ctx context.Context, userID string, since time.Time) ([]models.UsageAggregate, error)
}

type Result struct {
	Allowed  bool `json:"allowed"`
	Used     int  `json:"used"`
	Limit    int  `json:"limit"`
	Exceeded bool `json:"exceeded"`
	Soft     bool `json:"soft"`
	Bypassed bool `json:"bypassed"`
}

type Config struct {
	Store             LedgerStore
	MonthlyTokenLimit int
	Mode              Mode
	Logger            *zap.Logger
	Now               func() time.Time
}

type Accountant struct {
	store  LedgerStore
	limit  int
	mode   Mode
	logger *zap.Logger
	now    func() time.Time
}

func NewAccountant(cfg Config) *Accountant {
	if cfg.MonthlyTokenLimit <= 0 {
		cfg.MonthlyTokenLimit = DefaultMonthlyTokenLimit
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeEnforced
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Accountant{
		store:  cfg.Store,
		limit:  cfg.MonthlyTokenLimit,
		mode:   cfg.Mode,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

func (a *Accountant) Mode() Mode { return a.mode }

func (a *Accountant) Limit() int { return a.limit }

// CheckQuota reports whether estimated more tokens fit under the monthly
// limit. It never writes; concurrent requests may both pass a check that
// together overshoot the limit.
func (a *Accountant) CheckQuota(ctx context.Context, userID string, estimated int) (Result, error) {
	if a.mode == ModeBypass {
		metrics.QuotaDecisions.WithLabelValues("bypassed").Inc()
		return Result{Allowed: true, Limit: a.limit, Bypassed: true}, nil
	}

	profile, err := a.store.GetUserProfile(ctx, userID, Period(a.now()))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read quota state: %w", err)
	}

	res := Result{
		Used:  profile.MonthlyTokensUsed,
		Limit: a.limit,
		Soft:  a.mode == ModeSoft,
	}
	res.Exceeded = res.Used+estimated > a.limit
	res.Allowed = !res.Exceeded || res.Soft

	switch {
	case !res.Exceeded:
		metrics.QuotaDecisions.WithLabelValues("allowed").Inc()
	case res.Soft:
		metrics.QuotaDecisions.WithLabelValues("soft_exceeded").Inc()
		a.logger.Warn("Quota exceeded in soft mode",
			zap.String("user_id", userID),
			zap.Int("used", res.Used),
			zap.Int("requested", estimated),
			zap.Int("limit", a.limit),
		)
	default:
		metrics.QuotaDecisions.WithLabelValues("denied").Inc()
	}

	return res, nil
}

func (a *Accountant) Reserve(ctx context.Context, userID string, estimated int) (Result, error) {
	res, err := a.CheckQuota(ctx, userID, estimated)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		return res, &apperr.QuotaExceededError{
			UserID:    userID,
			Used:      res.Used,
			Limit:     res.Limit,
			Requested: estimated,
		}
	}
	return res, nil
}

// RecordUsage appends event to the ledger and adds its tokens to the
// user's monthly counter. Store failures are logged, never returned, so a
// completed generation is not lost to a ledger write.
func (a *Accountant) RecordUsage(ctx context.Context, userID string, event models.UsageEvent) {
	if a.mode == ModeBypass {
		return
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = a.now()
	}
	event.UserID = userID

	if err := a.store.RecordUsageEvent(ctx, userID, event); err != nil {
		a.logger.Error("Failed to record usage event",
			zap.String("user_id", userID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}

	if total := event.TotalTokens(); total > 0 {
		if err := a.store.IncrementUserTokens(ctx, userID, Period(event.CreatedAt), total); err != nil {
			a.logger.Error("Failed to increment user tokens",
				zap.String("user_id", userID),
				zap.Int("tokens", total),
				zap.Error(err),
			)
		}
	}

	model := event.Model
	if model == "" {
		model = "none"
	}
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(event.TokensPrompt))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(event.TokensCompletion))
}

type Summary struct {
	UserID    string                  `json:"user_id"`
	Period    string                  `json:"period"`
	Used      int                     `json:"used"`
	Limit     int                     `json:"limit"`
	Remaining int                     `json:"remaining"`
	Mode      Mode                    `json:"mode"`
	ByEvent   []models.UsageAggregate `json:"by_event"`
}

// Summary reports the current month's usage. ByEvent is filled when the
// store also implements UsageReporter.
func (a *Accountant) Summary(ctx context.Context, userID string) (Summary, error) {
	now := a.now().UTC()
	period := Period(now)

	profile, err := a.store.GetUserProfile(ctx, userID, period)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read quota state: %w", err)
	}

	s := Summary{
		UserID: userID,
		Period: period,
		Used:   profile.MonthlyTokensUsed,
		Limit:  a.limit,
		Mode:   a.mode,
	}
	if s.Remaining = a.limit - s.Used; s.Remaining < 0 {
		s.Remaining = 0
	}

	if reporter, ok := a.store.(UsageReporter); ok {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		s.ByEvent, err = reporter.UsageByEventType(ctx, userID, monthStart)
		if err != nil {
			return Summary{}, err
		}
	}

	return s, nil
}
