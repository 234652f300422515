package domain

import (
	"errors"
	"fmt"
)

// DomainError carries a stable Code that the API maps to an HTTP status and
// a Message safe to show clients. Err is the internal cause, never shown.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches any DomainError with the same code and message, so a sentinel
// still matches after WithCause attached a cause to a copy of it.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// WithCause returns a copy of e wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Err: cause}
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidTemplateContent  = NewDomainError(ErrCodeValidation, "invalid template content")
	ErrInvalidTemplateSource   = NewDomainError(ErrCodeValidation, "invalid template source")
	ErrInvalidLearningJobState = NewDomainError(ErrCodeValidation, "invalid learning job status")
	ErrInvalidScoreWeights     = NewDomainError(ErrCodeValidation, "composite score weights must be non-negative and sum to 1")
	ErrMissingRequiredField    = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuery              = NewDomainError(ErrCodeValidation, "query text cannot be empty")
	ErrEmptyFeedback           = NewDomainError(ErrCodeValidation, "feedback text cannot be empty")
)

// Not found errors
var (
	ErrClusterNotFound       = NewDomainError(ErrCodeNotFound, "cluster not found")
	ErrTemplateNotFound      = NewDomainError(ErrCodeNotFound, "template not found")
	ErrAssignmentNotFound    = NewDomainError(ErrCodeNotFound, "assignment not found")
	ErrLearningJobNotFound   = NewDomainError(ErrCodeNotFound, "learning job not found")
	ErrLearningEventNotFound = NewDomainError(ErrCodeNotFound, "learning event not found")
)

// Already exists errors
var (
	ErrFeedbackAlreadyRecorded  = NewDomainError(ErrCodeAlreadyExists, "feedback already recorded for assignment")
	ErrLearningEventExists      = NewDomainError(ErrCodeAlreadyExists, "learning event already recorded for assignment")
	ErrTemplateAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "template already exists")
	ErrClusterCreationContended = NewDomainError(ErrCodeAlreadyExists, "cluster created concurrently within radius")
)

// Invalid operation errors
var (
	ErrRegenerationCooldown = NewDomainError(ErrCodeInvalidOperation, "cluster enhancement regenerated within cooldown")
)

// Upstream errors
var (
	ErrNoEmbedding         = NewDomainError(ErrCodeUpstream, "embedding unavailable")
	ErrMalformedLLMOutput  = NewDomainError(ErrCodeUpstream, "malformed language model output")
	ErrUpstreamUnavailable = NewDomainError(ErrCodeUpstream, "upstream service unavailable")
)

// ErrorCode returns the code of the first DomainError in err's chain, or
// ErrCodeInternalError when there is none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternalError
}
