package domain

import (
	"errors"
	"fmt"
)

// Error codes for different failure scenarios
const (
	ErrCodeTransport       = "TRANSPORT_ERROR"
	ErrCodeEmptyInput      = "EMPTY_INPUT"
	ErrCodeMissingGroup    = "MISSING_MUTATION_GROUP"
	ErrCodeMisalignedRows  = "MISALIGNED_ROWS"
	ErrCodeOutputWrite     = "OUTPUT_WRITE_ERROR"
	ErrCodeServiceResponse = "SERVICE_RESPONSE_ERROR"
)

// ErrEmptyInput matches any EmptyInputError via errors.Is
var ErrEmptyInput = errors.New("empty input")

// TransportError is a retryable failure talking to the genotyping service
type TransportError struct {
	Attempt    int
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: attempt %d: HTTP %d: %v", ErrCodeTransport, e.Attempt, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: attempt %d: %v", ErrCodeTransport, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport failure worth retrying
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// EmptyInputError means there was nothing to analyze or the service returned no
// per-sequence analysis
type EmptyInputError struct {
	Reason string
}

// Error implements the error interface
func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeEmptyInput, e.Reason)
}

// Is matches ErrEmptyInput
func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

// NewEmptyInputError creates a new EmptyInputError
func NewEmptyInputError(reason string) *EmptyInputError {
	return &EmptyInputError{Reason: reason}
}

// MissingMutationGroupError is raised when comment reconciliation needs the
// gene's "Other" mutation group and the service did not send one
type MissingMutationGroupError struct {
	Gene      string
	DrugClass string
	Group     string
}

// Error implements the error interface
func (e *MissingMutationGroupError) Error() string {
	return fmt.Sprintf("%s: gene %s (drug class %q) has comments but no %q mutation group",
		ErrCodeMissingGroup, e.Gene, e.DrugClass, e.Group)
}

// MisalignedRowsError is raised when label and value columns disagree in shape
type MisalignedRowsError struct {
	Gene        string
	DrugClass   string
	Row         int
	FirstCount  int
	SecondCount int
}

// Error implements the error interface
func (e *MisalignedRowsError) Error() string {
	return fmt.Sprintf("%s: row %d (gene %s, drug class %q): %d labels vs %d values",
		ErrCodeMisalignedRows, e.Row, e.Gene, e.DrugClass, e.FirstCount, e.SecondCount)
}

// ServiceResponseError is a non-retryable error reported by the service itself
type ServiceResponseError struct {
	Messages []string
}

// Error implements the error interface
func (e *ServiceResponseError) Error() string {
	if len(e.Messages) == 0 {
		return ErrCodeServiceResponse
	}
	return fmt.Sprintf("%s: %s", ErrCodeServiceResponse, e.Messages[0])
}

// OutputWriteError means the report could not be written. The normalized rows
// are not lost: RunID points at the archived copy when archiving is enabled.
type OutputWriteError struct {
	Path  string
	RunID string
	Err   error
}

// Error implements the error interface
func (e *OutputWriteError) Error() string {
	msg := fmt.Sprintf("%s: cannot write %s: %v", ErrCodeOutputWrite, e.Path, e.Err)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (report archived as run %s)", e.RunID)
	}
	return msg
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// ValidationError represents configuration or input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
