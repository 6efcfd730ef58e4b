package notes

import (
	"fmt"
	"strings"
)

// PredictRequest is the payload sent to the prediction backend.
// The same value drives both the blocking and the streaming call.
type PredictRequest struct {
	// Prompt is the selected text or the full note contents
	Prompt string `json:"prompt"`

	// NotePath is the vault-relative path of the active note (nil if none)
	NotePath *string `json:"note_path,omitempty"`

	// IncludeMemory asks the backend to recall memories for NotePath
	IncludeMemory bool `json:"include_memory"`

	// IncludeRetrieval asks the backend to search indexed notes for Prompt
	IncludeRetrieval bool `json:"include_retrieval"`
}

// Validate checks that the request can be sent.
func (r *PredictRequest) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Reason: "request is nil", Err: ErrInvalidRequest}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Value: r.Prompt, Reason: "prompt must not be empty", Err: ErrInvalidRequest}
	}
	return nil
}

// NotePathOrDefault returns the note path, or "default" when none was sent.
// Memories recorded without a note are stored under that key.
func (r *PredictRequest) NotePathOrDefault() string {
	if r.NotePath == nil || *r.NotePath == "" {
		return "default"
	}
	return *r.NotePath
}

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field  string // The request field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for '%s': %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
