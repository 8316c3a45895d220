package remote

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against *APIError responses.
var (
	// ErrNotFound marks a 404 on a mutation. The reconciler coalesces it
	// into a local tombstone instead of surfacing it.
	ErrNotFound = errors.New("remote: not found")

	// ErrUnauthorized marks a rejected credential.
	ErrUnauthorized = errors.New("remote: unauthorized")
)

// APIError is a non-2xx authority response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote: unexpected status %d", e.StatusCode)
}

// Is maps status codes onto the package sentinels so callers can write
// errors.Is(err, remote.ErrNotFound).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}
