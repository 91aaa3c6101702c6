package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// IsRetryable reports whether err is a transient backend failure (rate limit,
// server error, network). Callers use it to label failures; the pipeline never
// retries a generation call on its own.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	if status, ok := statusCode(err); ok {
		switch {
		case status == 429:
			slog.WarnContext(ctx, "llm rate limited", "status_code", status)
			return true
		case status >= 500:
			slog.WarnContext(ctx, "llm server error", "status_code", status)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", status)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error", "error", err)
	return true
}

func statusCode(err error) (int, bool) {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode, true
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode, true
	}
	return 0, false
}
