package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents a non-2xx response from a remote API
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
	// Body holds the beginning of the response body, if any
	Body string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d for URL %s: %s: %s", e.StatusCode, e.URL, e.Message, e.Body)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsNotFound reports whether err is an HTTPError with status 404
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is an HTTPError with status 401 or 403
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
