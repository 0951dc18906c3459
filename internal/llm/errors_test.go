package llm

import (
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestClassifyAuthError(t *testing.T) {
	inputs := []error{
		&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"},
		&openai.APIError{HTTPStatusCode: http.StatusForbidden, Message: "forbidden"},
		errors.New("Incorrect API key provided"),
	}
	for _, input := range inputs {
		var authErr *AuthError
		if !errors.As(classifyError(input), &authErr) {
			t.Fatalf("classifyError(%v) is not AuthError", input)
		}
	}
}

func TestClassifyTransientRateLimit(t *testing.T) {
	err := classifyError(&openai.APIError{
		HTTPStatusCode: http.StatusTooManyRequests,
		Message:        "Rate limit reached for gpt-4o. Please try again in 20s.",
	})

	var rate *RateLimitError
	if !errors.As(err, &rate) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rate.Daily {
		t.Fatal("transient limit misclassified as daily quota")
	}
	if rate.RetryAfter != 20*time.Second {
		t.Fatalf("RetryAfter = %v, want 20s", rate.RetryAfter)
	}
	if !isRetryable(err) {
		t.Fatal("transient rate limit must be retryable")
	}
}

func TestClassifyDailyQuota(t *testing.T) {
	messages := []string{
		"Rate limit reached: you have hit your requests per day (RPD) limit",
		"You exceeded your current quota, please check your plan and billing details",
	}
	for _, msg := range messages {
		err := classifyError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: msg})

		var rate *RateLimitError
		if !errors.As(err, &rate) {
			t.Fatalf("expected RateLimitError for %q, got %T", msg, err)
		}
		if !rate.Daily {
			t.Fatalf("daily quota not detected in %q", msg)
		}
		if isRetryable(err) {
			t.Fatal("daily quota must not be retryable")
		}
	}
}

func TestClassifyServerError(t *testing.T) {
	err := classifyError(&openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "upstream error"})

	var req *RequestError
	if !errors.As(err, &req) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if req.Status != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", req.Status)
	}
	if !isRetryable(err) {
		t.Fatal("5xx should be retryable")
	}
}

func TestClassifyBadRequestNotRetryable(t *testing.T) {
	err := classifyError(&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid request"})
	if isRetryable(err) {
		t.Fatal("400 must not be retried")
	}
}

func TestClassifyPassesTypedErrorsThrough(t *testing.T) {
	original := &RateLimitError{Daily: true, Cause: errors.New("quota")}
	if classifyError(original) != error(original) {
		t.Fatal("typed errors must pass through unchanged")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		message string
		want    time.Duration
	}{
		{"please try again in 20s", 20 * time.Second},
		{"please try again in 1.5s", 1500 * time.Millisecond},
		{"please try again in 250ms", 250 * time.Millisecond},
		{"please try again in 2m", 2 * time.Minute},
		{"no hint here", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.message); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}
