package affinity

import (
	"errors"
	"fmt"
)

// Credential errors. These fire before any network call is attempted.
var (
	// ErrMissingV1Key is returned when the legacy basic-auth key is absent.
	ErrMissingV1Key = errors.New("affinity v1 api key missing")

	// ErrMissingV2Key is returned when the bearer token is absent.
	ErrMissingV2Key = errors.New("affinity v2 bearer token missing")
)

// ErrorKind classifies an API failure by status class.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"       // 401
	KindPermission ErrorKind = "permission" // 403
	KindRateLimit  ErrorKind = "rate_limit" // 429
	KindClient     ErrorKind = "client"     // other 4xx
	KindServer     ErrorKind = "server"     // 5xx
)

// APIError represents an error response from the Affinity API.
type APIError struct {
	Surface    string    // "v1" or "v2"
	Kind       ErrorKind
	StatusCode int
	Path       string
	Body       string
	Hint       string // extra guidance for known permission-gated endpoints
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("affinity %s error %d for %s", e.Surface, e.StatusCode, e.Path)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether the failure is transient (rate limit or server).
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401:
		return KindAuth
	case status == 403:
		return KindPermission
	case status == 429:
		return KindRateLimit
	case status >= 400 && status < 500:
		return KindClient
	default:
		return KindServer
	}
}
