package domain

import (
	"errors"
	"fmt"
)

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

// Is reports whether target is a DomainError with the same code, so a wrapped
// error still matches its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
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

// Wrap attaches cause to a copy of the sentinel so errors.Is still matches it.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// CodeOf returns the code of the first DomainError in err's chain.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeEmptyInput           = "EMPTY_INPUT"
	ErrCodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	ErrCodeSynthesisUnavailable = "SYNTHESIS_UNAVAILABLE"
	ErrCodeIndexNotBuilt        = "INDEX_NOT_BUILT"
	ErrCodeCorruptIndex         = "CORRUPT_INDEX"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
)

// Validation errors
var (
	ErrInvalidChunkConfig       = NewDomainError(ErrCodeConfiguration, "chunk overlap must be smaller than chunk size")
	ErrEmptyDocument            = NewDomainError(ErrCodeEmptyInput, "document produced no chunks")
	ErrEmptyQuery               = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrMissingRequiredField     = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnsupportedContentType   = NewDomainError(ErrCodeValidation, "unsupported content type")
	ErrInvalidSnapshotJobStatus = NewDomainError(ErrCodeValidation, "invalid snapshot job status")
	ErrInvalidSnapshotOp        = NewDomainError(ErrCodeValidation, "invalid snapshot job operation")
	ErrPayloadTooLarge          = NewDomainError(ErrCodePayloadTooLarge, "request body too large")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "artifact not found")
)

// Provider errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding provider unavailable")
	ErrSynthesisUnavailable = NewDomainError(ErrCodeSynthesisUnavailable, "synthesis provider unavailable")
)

// Index errors
var (
	ErrIndexNotBuilt = NewDomainError(ErrCodeIndexNotBuilt, "index has not been built")
	ErrCorruptIndex  = NewDomainError(ErrCodeCorruptIndex, "index artifacts are missing or corrupt")
)

var ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
