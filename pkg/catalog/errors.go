package catalog

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a non-2xx catalog response.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code"`

	// Method is the HTTP method of the failed request.
	Method string `json:"method"`

	// Path is the request path.
	Path string `json:"path"`

	// Message is the error message extracted from the response body, or
	// the status text when the body carried none.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("catalog request failed: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether a request error is worth retrying:
// 5xx responses, 429 rate limiting, and network-level failures.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
