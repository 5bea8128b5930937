package github

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
)

// RateLimitError reports that GitHub refused a request because of rate
// limiting. RetryAfter is nil when the response carried no Retry-After header.
type RateLimitError struct {
	StatusCode int
	Message    string
	RetryAfter *time.Duration
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("GitHub API rate limit exceeded (HTTP %d)", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry after %s", *e.RetryAfter)
	}
	return msg
}

// IsRateLimit reports whether err wraps a *RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// classify converts go-gh HTTP errors into *RateLimitError where they signal
// rate limiting: any 429, or a 403 whose message mentions the rate limit or
// whose remaining quota is zero.
func classify(err error) error {
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	limited := httpErr.StatusCode == http.StatusTooManyRequests
	if httpErr.StatusCode == http.StatusForbidden {
		limited = strings.Contains(strings.ToLower(httpErr.Message), "rate limit") ||
			httpErr.Headers.Get("X-RateLimit-Remaining") == "0"
	}
	if !limited {
		return err
	}
	return &RateLimitError{
		StatusCode: httpErr.StatusCode,
		Message:    httpErr.Message,
		RetryAfter: parseRetryAfter(httpErr.Headers.Get("Retry-After")),
	}
}

func parseRetryAfter(v string) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}

func isNotFound(err error) bool {
	var httpErr *api.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
