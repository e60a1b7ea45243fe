package eligibility

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoProviders is returned by NewOrchestrator when no provider is configured.
var ErrNoProviders = errors.New("eligibility: no providers configured")

// Category classifies provider failures.
type Category string

const (
	CategoryAuth            Category = "auth"
	CategoryBlocked         Category = "blocked"
	CategoryUnavailable     Category = "unavailable"
	CategoryTimeout         Category = "timeout"
	CategoryInvalidResponse Category = "invalid_response"
)

// Blocking reports whether failures of this category should trip the breaker
// for subsequent calls.
func (c Category) Blocking() bool {
	return c == CategoryAuth || c == CategoryBlocked
}

// ProviderError is returned by provider clients for any non-business failure.
type ProviderError struct {
	Provider   string
	Category   Category
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("eligibility: %s %s (status %d): %v", e.Provider, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("eligibility: %s %s: %v", e.Provider, e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a category.
func NewProviderError(provider string, category Category, statusCode int, err error) *ProviderError {
	if err == nil {
		err = errors.New(string(category))
	}
	return &ProviderError{Provider: provider, Category: category, StatusCode: statusCode, Err: err}
}

// CategoryForStatus maps an HTTP status code to a failure category.
func CategoryForStatus(status int) Category {
	switch {
	case status == 401:
		return CategoryAuth
	case status == 403 || status == 429:
		return CategoryBlocked
	case status == 408 || status == 504:
		return CategoryTimeout
	default:
		return CategoryUnavailable
	}
}

// Classify returns the category of err. Typed ProviderErrors win; untyped
// errors fall back to message inspection for clients that do not categorize.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"auth", "403", "bloqueado"} {
		if strings.Contains(msg, marker) {
			return CategoryBlocked
		}
	}
	return CategoryUnavailable
}
