package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks errors for tracks or resources that do not exist or are inaccessible.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath marks traversal attempts or malformed file references.
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotReady marks artifact requests made before a finished job exists.
	ErrNotReady = errors.New("not ready")
	// ErrProducerFailure marks failures raised by the external producer; these are
	// recorded on the job row rather than surfaced to the request path.
	ErrProducerFailure = errors.New("producer failure")
	// ErrStorageUnavailable marks job store I/O failures other than the
	// missing-table cold start, which the store swallows itself.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStorageUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
