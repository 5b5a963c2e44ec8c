// ABOUTME: Error kinds returned by the conversation layer
// ABOUTME: Callers match with errors.Is; wrapped messages carry the client-safe detail

package conversation

import (
	"errors"
	"fmt"

	"github.com/nexial/nexial-gateway/internal/store"
)

var (
	// ErrInvalidArgument covers empty content, self-conversations and missing targets.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied is returned when the caller is not a participant.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned for unknown users or conversations.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable wraps any persistence failure. Its detail must not
	// reach clients.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// storageError classifies a store error. store.ErrNotFound becomes ErrNotFound
// with what as the detail; everything else is a storage failure.
func storageError(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, what, err)
}
