package gh

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrRateLimited matches any *APIError caused by GitHub rate limiting.
	ErrRateLimited = errors.New("github rate limit exceeded")
	// ErrCursorUnknown is returned by the GraphQL backend when a page is
	// requested before the page preceding it was fetched.
	ErrCursorUnknown = errors.New("no cursor for requested page")
	// ErrTokenRequired is returned when a backend needs a token and none was found.
	ErrTokenRequired = errors.New("github token required")
)

// APIError is a non-2xx response from GitHub.
type APIError struct {
	StatusCode  int
	Message     string
	RateLimited bool
	ResetAt     time.Time // Zero when GitHub did not say
}

func (e *APIError) Error() string {
	if e.RateLimited {
		if e.ResetAt.IsZero() {
			return "GitHub rate limit exceeded, try again shortly"
		}
		return fmt.Sprintf("GitHub rate limit exceeded, resets at %s", e.ResetAt.Local().Format(time.Kitchen))
	}
	if e.Message == "" {
		return fmt.Sprintf("GitHub API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GitHub API error: %d %s", e.StatusCode, e.Message)
}

// Is reports rate-limit errors as ErrRateLimited.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}

// newAPIError builds an APIError from a failed response. The body is read
// but not closed.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.RateLimited = true
	case resp.StatusCode == http.StatusForbidden:
		apiErr.RateLimited = resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			resp.Header.Get("Retry-After") != "" ||
			strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
	}
	if apiErr.RateLimited {
		apiErr.ResetAt = resetTime(resp.Header, time.Now())
	}
	return apiErr
}

// resetTime reads X-RateLimit-Reset (epoch seconds) or Retry-After (seconds).
func resetTime(h http.Header, now time.Time) time.Time {
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0)
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}
