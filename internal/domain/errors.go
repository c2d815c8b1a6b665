package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeExternalStore    = "EXTERNAL_STORE_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidAssetStatus      = NewDomainError(ErrCodeValidation, "invalid asset status")
	ErrInvalidTraceability     = NewDomainError(ErrCodeValidation, "invalid asset traceability")
	ErrInvalidChunkType        = NewDomainError(ErrCodeValidation, "invalid chunk type")
	ErrInvalidRelationshipType = NewDomainError(ErrCodeValidation, "invalid relationship type")
	ErrInvalidConfidence       = NewDomainError(ErrCodeValidation, "relationship confidence must be in [0,1]")
	ErrInvalidJobType          = NewDomainError(ErrCodeValidation, "invalid job type")
	ErrInvalidJobStatus        = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrInvalidProgress         = NewDomainError(ErrCodeValidation, "job progress must be in [0,100]")
	ErrMissingRequiredField    = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrAssetNotFound        = NewDomainError(ErrCodeNotFound, "knowledge asset not found")
	ErrChunkNotFound        = NewDomainError(ErrCodeNotFound, "knowledge chunk not found")
	ErrRelationshipNotFound = NewDomainError(ErrCodeNotFound, "knowledge relationship not found")
	ErrJobNotFound          = NewDomainError(ErrCodeNotFound, "processing job not found")
	ErrReviewNotFound       = NewDomainError(ErrCodeNotFound, "review instance not found")
)

// Conflict errors
var (
	ErrDuplicateJob          = NewDomainError(ErrCodeConflict, "a non-terminal job of this type already exists for the asset")
	ErrDuplicateSequence     = NewDomainError(ErrCodeConflict, "duplicate chunk sequence number for asset")
	ErrDuplicateRelationship = NewDomainError(ErrCodeConflict, "relationship already exists for (source, target, type)")
)

// Operation errors
var (
	ErrInvalidStatusTransition       = NewDomainError(ErrCodeInvalidOperation, "invalid asset status transition")
	ErrInvalidTraceabilityTransition = NewDomainError(ErrCodeInvalidOperation, "invalid traceability transition")
	ErrInvalidJobTransition          = NewDomainError(ErrCodeInvalidOperation, "invalid job status transition")
	ErrInvalidReviewDecision         = NewDomainError(ErrCodeInvalidOperation, "decision not allowed in current review state")
	ErrAssetNotReviewable            = NewDomainError(ErrCodeInvalidOperation, "asset has no review instance awaiting a decision")
)

// External store errors
var (
	ErrVectorStoreUnavailable = NewDomainError(ErrCodeExternalStore, "vector store operation failed")
	ErrGraphStoreUnavailable  = NewDomainError(ErrCodeExternalStore, "graph store operation failed")
)
