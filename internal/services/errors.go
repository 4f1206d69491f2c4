package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
)

// Error kinds reported by Details.
const (
	KindPermanent = "permanent"
	KindTransient = "transient"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether err carries a marker that retrying cannot fix.
// Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConfiguration)
}

// ErrorDetails summarizes an error for structured logging.
type ErrorDetails struct {
	Kind    string
	Marker  string
	Message string
	Hint    string
}

// Details classifies err and returns a log-friendly summary.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindTransient, Message: err.Error()}
	if IsPermanent(err) {
		details.Kind = KindPermanent
	}
	switch {
	case errors.Is(err, ErrValidation):
		details.Marker = "validation"
		details.Hint = "inspect the job payload and stage output"
	case errors.Is(err, ErrNotFound):
		details.Marker = "not_found"
		details.Hint = "verify the segment and scene exist"
	case errors.Is(err, ErrConfiguration):
		details.Marker = "configuration"
		details.Hint = "check config.toml and provider credentials"
	case errors.Is(err, ErrPermanent):
		details.Marker = "permanent"
		details.Hint = "the job cannot succeed without operator action"
	case errors.Is(err, ErrTimeout):
		details.Marker = "timeout"
		details.Hint = "provider or tool exceeded its deadline"
	case errors.Is(err, ErrExternalTool):
		details.Marker = "external_tool"
		details.Hint = "check ffmpeg/ffprobe output in the job log"
	default:
		details.Marker = "transient"
		details.Hint = "will be retried with backoff"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
