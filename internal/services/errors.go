package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks bad input detected before any provider work starts.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication marks rejected or expired provider credentials.
	ErrAuthentication = errors.New("authentication error")
	// ErrNotFound marks a missing entity or an unmatched rink feed.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks provider network or timeout failures that may be retried.
	ErrTransient = errors.New("transient failure")
	// ErrExternalTool marks failures reported by an external binary such as ffmpeg.
	ErrExternalTool = errors.New("external tool error")
	// ErrInternal marks unexpected programmer errors.
	ErrInternal = errors.New("internal error")
)

// Wrap builds an error message that includes pipeline context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Message extracts the single human-readable string surfaced to clients when a
// job fails. Sentinel prefixes are stripped so users see the step detail only.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range []error{ErrValidation, ErrAuthentication, ErrNotFound, ErrTransient, ErrExternalTool, ErrInternal} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return msg
}

// IsRetryable reports whether a bounded retry is worthwhile. Only transient
// provider failures qualify; authentication and not-found errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
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
