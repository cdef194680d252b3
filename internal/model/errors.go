package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	// ErrConnectivityTimeout indicates a poll or submission exceeded its deadline
	ErrConnectivityTimeout = errors.New("connectivity timeout")

	// ErrConnectivity indicates a transport failure or a malformed response
	ErrConnectivity = errors.New("connectivity error")

	// ErrDispatch indicates a submission to the verification backend failed
	ErrDispatch = errors.New("dispatch failed")

	// ErrNotFound indicates the claim, block or sent record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates the claim is not in the partition the
	// transition starts from
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDispatchInFlight indicates a dispatch is already running
	ErrDispatchInFlight = errors.New("dispatch already in flight")

	// ErrAlreadyExists indicates an open resend already exists for a sent record
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a malformed request
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionClosed indicates the session has been torn down
	ErrSessionClosed = errors.New("session closed")
)

// Feed names used in connectivity errors and signals
const (
	FeedDiscovery = "discovery"
	FeedResults   = "results"
	FeedDispatch  = "dispatch"
)

// ConnectivityError wraps a failed poll or transport call
type ConnectivityError struct {
	Feed       string
	Endpoint   string
	StatusCode int
	Timeout    bool
	Err        error
}

// Error implements the error interface
func (e *ConnectivityError) Error() string {
	kind := "connectivity error"
	if e.Timeout {
		kind = "connectivity timeout"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s on %s feed (%s, status %d): %v", kind, e.Feed, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s on %s feed (%s): %v", kind, e.Feed, e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConnectivityError) Is(target error) bool {
	if e.Timeout {
		return target == ErrConnectivityTimeout
	}
	return target == ErrConnectivity
}

// DispatchFailure says how much of a dispatch failed
type DispatchFailure string

const (
	FailurePartial DispatchFailure = "partial" // One resend item
	FailureTotal   DispatchFailure = "total"   // A whole fresh sub-batch
)

// DispatchError reports claims that could not be submitted
type DispatchError struct {
	Failure  DispatchFailure
	BatchID  string
	ClaimIDs []ClaimID
	Err      error
}

// Error implements the error interface
func (e *DispatchError) Error() string {
	ids := make([]string, len(e.ClaimIDs))
	for i, id := range e.ClaimIDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s dispatch failure for [%s]: %v", e.Failure, strings.Join(ids, ", "), e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}

// TransitionError reports a transition attempted from the wrong partition
type TransitionError struct {
	ID     ClaimID
	Action string
	State  Partition
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("cannot %s %s: claim is in no partition", e.Action, e.ID)
	}
	return fmt.Sprintf("cannot %s %s: claim is %s", e.Action, e.ID, e.State)
}

// Is implements errors.Is support
func (e *TransitionError) Is(target error) bool {
	if e.State == "" {
		return target == ErrNotFound || target == ErrInvalidTransition
	}
	return target == ErrInvalidTransition
}

// ValidationError represents a malformed request value
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Partition names an editorial partition
type Partition string

const (
	PartitionPending   Partition = "pending"
	PartitionStaged    Partition = "staged"
	PartitionDiscarded Partition = "discarded"
	PartitionSent      Partition = "sent"
)
