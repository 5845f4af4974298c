// Package apperr defines the typed errors surfaced by the orchestration
// layer. Callers inspect them with errors.As.
package apperr

import (
	"fmt"
	"strings"
	"time"
)

type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed caller input or malformed model output.
// It is never retried.
type ValidationError struct {
	Subject    string
	Violations []Violation
}

func NewValidationError(subject string, violations ...Violation) *ValidationError {
	return &ValidationError{Subject: subject, Violations: violations}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	if e.Subject == "" {
		return "validation failed: " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("%s validation failed: %s", e.Subject, strings.Join(parts, "; "))
}

type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// QuotaExceededError is returned in enforced mode when an operation would
// push the user's monthly total past the plan ceiling.
type QuotaExceededError struct {
	UserID    string
	Used      int
	Limit     int
	Requested int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: used %d + requested %d > limit %d", e.Used, e.Requested, e.Limit)
}

type RateLimitExceededError struct {
	Identity   string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %dms", e.Identity, e.RetryAfter.Milliseconds())
}
