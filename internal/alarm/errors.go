package alarm

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable aborts a tick; nothing is assumed about partial state.
	ErrStoreUnavailable = errors.New("schedule store unavailable")
	// ErrCacheUnavailable is recoverable per alarm: fire anyway, skip the marker.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrNotFound is returned by stores for unknown classes or users.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is raised by the caller-facing layers only.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError marks a malformed record or request. In an evaluation pass
// the offending record is skipped and the pass continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
