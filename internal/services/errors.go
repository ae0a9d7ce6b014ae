package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers used to classify pipeline failures. Stage adapters tag their
// errors with one of these so the workflow manager can name the failure kind
// without inspecting adapter internals.
var (
	ErrParse           = errors.New("parse error")
	ErrReadiness       = errors.New("readiness error")
	ErrSynthesis       = errors.New("synthesis error")
	ErrStorage         = errors.New("storage error")
	ErrTranscription   = errors.New("transcription error")
	ErrAnalysis        = errors.New("analysis error")
	ErrMalformedOutput = errors.New("malformed output")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// markerKinds is ordered: the first match wins, so the stage-level markers
// come before generic ones that may also be present in the chain.
var markerKinds = []struct {
	marker error
	kind   string
}{
	{ErrParse, "parse"},
	{ErrReadiness, "readiness"},
	{ErrSynthesis, "synthesis"},
	{ErrStorage, "storage"},
	{ErrTranscription, "transcription"},
	{ErrAnalysis, "analysis"},
	{ErrMalformedOutput, "malformed_output"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrTransient, "transient"},
}

// ErrorDetails is the user-facing summary of a classified error.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
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

// Kind returns the classification label for err, or "unknown".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range markerKinds {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return "unknown"
}

// Details extracts the classification and a human readable message from err.
// The leading marker text is dropped because Kind already conveys it.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	message := strings.TrimSpace(err.Error())
	for _, entry := range markerKinds {
		prefix := entry.marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimSpace(strings.TrimPrefix(message, prefix))
			break
		}
	}
	if message == "" {
		message = "unknown failure"
	}
	return ErrorDetails{Kind: Kind(err), Message: message}
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
