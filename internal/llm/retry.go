package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UpstreamError is a classified LLM failure. Status is the HTTP status the
// server should answer with.
type UpstreamError struct {
	Status  int
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Caller-facing messages for throttled and unavailable upstreams.
const (
	MsgRateLimited = "Rate limit exceeded. Please try again later."
	MsgUnavailable = "Service temporarily unavailable. Please try again later."
)

var rateLimitPhrases = []string{"rate limit", "quota", "too many requests", "429", "resource_exhausted", "resource exhausted"}

// InvalidOutput is implemented by errors that describe an unusable model
// answer. Their text may quote the answer, so it is never matched against
// rate-limit phrases.
type InvalidOutput interface {
	InvalidOutput() bool
}

// ClassifyError maps an LLM error to an UpstreamError. Rate limits become 429
// and unavailability becomes 503; everything else is a 500.
func ClassifyError(err error) *UpstreamError {
	if err == nil {
		return nil
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return &UpstreamError{Status: http.StatusTooManyRequests, Message: MsgRateLimited, Cause: err}
		case http.StatusServiceUnavailable:
			return &UpstreamError{Status: http.StatusServiceUnavailable, Message: MsgUnavailable, Cause: err}
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return &UpstreamError{Status: http.StatusTooManyRequests, Message: MsgRateLimited, Cause: err}
		case codes.Unavailable:
			return &UpstreamError{Status: http.StatusServiceUnavailable, Message: MsgUnavailable, Cause: err}
		}
	}

	var invalid InvalidOutput
	if errors.As(err, &invalid) && invalid.InvalidOutput() {
		return &UpstreamError{Status: http.StatusInternalServerError, Message: err.Error(), Cause: err}
	}

	lower := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return &UpstreamError{Status: http.StatusTooManyRequests, Message: MsgRateLimited, Cause: err}
		}
	}

	return &UpstreamError{Status: http.StatusInternalServerError, Message: err.Error(), Cause: err}
}

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy makes three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retry runs fn up to policy.Attempts times. Rate-limit (429) and
// unavailability (503) errors, ErrNoAPIKey and Permanent errors are returned
// immediately; otherwise the last failure is returned, classified.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last *UpstreamError
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.Is(err, ErrNoAPIKey) || errors.As(err, &perm) {
			return err
		}

		last = ClassifyError(err)
		if last.Status != http.StatusInternalServerError {
			logger.Warn("llm request throttled", "op", op, "attempt", attempt, "status", last.Status)
			return last
		}
		logger.Warn("llm attempt failed", "op", op, "attempt", attempt, "max_attempts", attempts, "error", err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return &UpstreamError{Status: http.StatusInternalServerError, Message: "request cancelled", Cause: ctx.Err()}
		case <-time.After(policy.Delay):
		}
	}
	return last
}
