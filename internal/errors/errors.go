package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for the Bubble Extraction Worker
 *
 * Taxonomy:
 * - INPUT_ERROR: fatal, aborts the run (missing input directory/files)
 * - DETECTION_FAILED / TRANSCRIPTION_FAILED / CLASSIFICATION_FAILED:
 *   recoverable per-call upstream failures; pipeline stages degrade to
 *   safe defaults instead of aborting the page
 * - PARSE_ERROR: malformed classifier response, treated like an upstream
 *   failure
 * - STORAGE_FAILED: cache/database persistence failures
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Fatal input errors
	ErrorInput ErrorCode = "INPUT_ERROR"

	// Recoverable upstream service errors
	ErrorDetectionFailed      ErrorCode = "DETECTION_FAILED"
	ErrorTranscriptionFailed  ErrorCode = "TRANSCRIPTION_FAILED"
	ErrorClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	ErrorParse                ErrorCode = "PARSE_ERROR"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"

	// Page-level processing errors
	ErrorPageFailed ErrorCode = "PAGE_FAILED"
)

// PipelineError represents a structured pipeline error
type PipelineError struct {
	Code      ErrorCode
	Message   string
	Page      string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error should abort the whole run rather than a
// single page.
func (e *PipelineError) Fatal() bool {
	return e.Code == ErrorInput
}

// Factory functions for common errors

func NewInputError(path string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorInput,
		Message:   fmt.Sprintf("Input not usable: %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewDetectionFailedError(page string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorDetectionFailed,
		Message:   "Region detection call failed",
		Page:      page,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewTranscriptionFailedError carries the region index so a failed subset can
// be re-run without reprocessing the whole page.
func NewTranscriptionFailedError(page string, regionIndex int, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorTranscriptionFailed,
		Message:   fmt.Sprintf("Transcription failed for region %d", regionIndex),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region_index": regionIndex,
		},
		Cause: cause,
	}
}

func NewClassificationFailedError(page string, regionIndex int, textPreview string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorClassificationFailed,
		Message:   fmt.Sprintf("Classification failed for region %d", regionIndex),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region_index": regionIndex,
			"text_preview": Preview(textPreview, 40),
		},
		Cause: cause,
	}
}

func NewParseError(page string, regionIndex int, raw string) *PipelineError {
	return &PipelineError{
		Code:      ErrorParse,
		Message:   fmt.Sprintf("Classifier response for region %d contained no parseable JSON", regionIndex),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region_index": regionIndex,
			"raw_preview":  Preview(raw, 80),
		},
	}
}

func NewStorageFailedError(page string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to persist pipeline results",
		Page:      page,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewPageFailedError(page string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorPageFailed,
		Message:   fmt.Sprintf("Page %s aborted", page),
		Page:      page,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Preview truncates text for log output and error details.
func Preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// ToMap converts error to map for database storage
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Page != "" {
		result["page"] = e.Page
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
