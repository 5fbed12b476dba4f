package retry

import (
	"context"
	"errors"
	"strings"
)

// Category groups failures by how the retry loop treats them.
type Category string

const (
	CategoryRateLimit      Category = "rate_limit"
	CategoryTimeout        Category = "timeout"
	CategoryNetwork        Category = "network"
	CategoryUnavailable    Category = "unavailable"
	CategoryValidation     Category = "validation"
	CategoryInvalidRequest Category = "invalid_request"
	CategoryUnauthorized   Category = "unauthorized"
	CategoryUnknownRole    Category = "unknown_role"
	CategoryFatal          Category = "fatal"
	CategoryCanceled       Category = "canceled"
	CategoryUnknown        Category = "unknown"
)

// Categorized is implemented by errors that know their own category.
type Categorized interface {
	Category() Category
}

// Classify maps an error to a Category. Errors implementing Categorized
// anywhere in their chain win; context errors come next; the message is
// inspected last.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return CategoryRateLimit
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return CategoryTimeout
	case containsAny(msg, "service unavailable", "unavailable", "503", "overloaded"):
		return CategoryUnavailable
	case containsAny(msg, "connection refused", "connection reset", "network", "eof", "broken pipe", "no such host"):
		return CategoryNetwork
	case containsAny(msg, "unauthorized", "forbidden", "401", "403", "invalid api key"):
		return CategoryUnauthorized
	case containsAny(msg, "bad request", "malformed", "400", "invalid request"):
		return CategoryInvalidRequest
	}
	return CategoryUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
