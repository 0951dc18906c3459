package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// AuthError means the API key was rejected. Never retried.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("llm authentication failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// RateLimitError is a 429 from the vendor. Transient limits are retried
// with backoff; daily quota exhaustion is not.
type RateLimitError struct {
	// RetryAfter is the server-suggested wait, zero when unknown.
	RetryAfter time.Duration
	// Daily marks per-day quota exhaustion, which retrying cannot fix.
	Daily bool
	Cause error
}

func (e *RateLimitError) Error() string {
	if e.Daily {
		return fmt.Sprintf("llm daily quota exhausted: %v", e.Cause)
	}
	return fmt.Sprintf("llm rate limited: %v", e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// ToolCallGenerationError means the model produced tool calls the
// stream could not assemble into valid invocations.
type ToolCallGenerationError struct {
	Cause error
}

func (e *ToolCallGenerationError) Error() string {
	return fmt.Sprintf("llm tool call generation failed: %v", e.Cause)
}

func (e *ToolCallGenerationError) Unwrap() error { return e.Cause }

// RequestError covers everything else: bad requests, server errors,
// network failures.
type RequestError struct {
	Status int
	Cause  error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm request failed (status %d): %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("llm request failed: %v", e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// retryAfterPattern matches the wait hint OpenAI embeds in 429 bodies,
// e.g. "Please try again in 20s" or "in 1.5s" or "in 250ms".
var retryAfterPattern = regexp.MustCompile(`try again in ([0-9.]+)\s*(ms|s|m)\b`)

var dailyQuotaHints = []string{
	"requests per day",
	"tokens per day",
	"rpd",
	"daily limit",
	"insufficient_quota",
	"exceeded your current quota",
}

// classifyError converts a raw SDK or transport error into the typed
// taxonomy. nil stays nil.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var (
		authErr *AuthError
		rateErr *RateLimitError
		toolErr *ToolCallGenerationError
		reqErr2 *RequestError
	)
	if errors.As(err, &authErr) || errors.As(err, &rateErr) ||
		errors.As(err, &toolErr) || errors.As(err, &reqErr2) {
		return err
	}

	status := 0
	message := err.Error()

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}

	lower := strings.ToLower(message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
		return &AuthError{Cause: err}

	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		return &RateLimitError{
			RetryAfter: parseRetryAfter(lower),
			Daily:      isDailyQuota(lower),
			Cause:      err,
		}

	default:
		return &RequestError{Status: status, Cause: err}
	}
}

func isDailyQuota(lower string) bool {
	for _, hint := range dailyQuotaHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func parseRetryAfter(lower string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0
	}
	d, err := time.ParseDuration(m[1] + m[2])
	if err != nil {
		return 0
	}
	return d
}

// isRetryable reports whether retrying the call may succeed.
func isRetryable(err error) bool {
	var rate *RateLimitError
	if errors.As(err, &rate) {
		return !rate.Daily
	}
	var req *RequestError
	if errors.As(err, &req) {
		return req.Status >= 500 || req.Status == 0
	}
	return false
}
