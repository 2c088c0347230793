package bitrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
)

// IsRetryable reports whether an attempt that ended with status (0 when no
// response arrived) and transport error err should be retried. Timeouts,
// missing responses, 429 and 5xx are transient; a cancelled caller is not.
func IsRetryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Backoff is the delay after the given failed attempt (1-based): base*attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	return base * time.Duration(attempt)
}

// normalizeError turns one failed attempt into an upstream *errmodel.Error.
// The message prefers the body's error_description, then error, then a
// transport description.
func normalizeError(resp *response, transportErr error) *errmodel.Error {
	if resp == nil {
		msg := "Bitrix24 request failed"
		if transportErr != nil {
			msg = "Bitrix24 request failed: " + transportErr.Error()
		}
		return errmodel.Upstream(msg, 0, nil, transportErr)
	}

	status := resp.status
	if status >= 200 && status <= 299 {
		// 2xx carrying an error object.
		status = http.StatusBadRequest
	}

	msg := fmt.Sprintf("Request failed with status code %d", resp.status)
	if m, ok := resp.body.(map[string]any); ok {
		if s := nonEmptyString(m["error_description"]); s != "" {
			msg = s
		} else if s := nonEmptyString(m["error"]); s != "" {
			msg = s
		}
	}
	return errmodel.Upstream(msg, status, resp.body, nil)
}

func nonEmptyString(v any) string {
	s, _ := v.(string)
	return s
}
