// Package errors provides custom error types for the labelview system.
// These errors encode the failure taxonomy of the lookup pipeline: fatal
// resolution and transport failures, soft per-frame and per-record failures
// that are counted rather than raised, and persistence failures that are
// fatal only when persistence was requested.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// As is an alias for the standard library errors.As.
var As = errors.As

// Is is an alias for the standard library errors.Is.
var Is = errors.Is

// Common sentinel errors for the labelview system
var (
	// ErrInvalidIdentifier indicates an identifier that is neither a
	// syntactically valid DID nor a plausible handle
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrHandleUnresolved indicates that every handle resolution strategy
	// was attempted and none produced a DID
	ErrHandleUnresolved = errors.New("handle unresolved")

	// ErrUnsupportedDIDMethod indicates a DID whose method the resolver
	// does not know how to dereference
	ErrUnsupportedDIDMethod = errors.New("unsupported DID method")

	// ErrServiceNotDeclared indicates a DID document that does not declare
	// a required service endpoint
	ErrServiceNotDeclared = errors.New("service not declared")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")
)

// ResolutionError represents a failure while turning a handle-or-DID into
// an identity with service endpoints. Resolution errors are always fatal.
type ResolutionError struct {
	Identifier string
	Step       string // "syntax", "handle", "document", "service"
	Message    string
	Err        error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("resolving %s (%s): %s", e.Identifier, e.Step, e.Message)
	}
	return fmt.Sprintf("resolving %s: %s", e.Identifier, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError creates a new ResolutionError
func NewResolutionError(identifier, step, message string, err error) *ResolutionError {
	return &ResolutionError{
		Identifier: identifier,
		Step:       step,
		Message:    message,
		Err:        err,
	}
}

// TransportError represents a failure of the streaming connection: the dial
// failed, or the connection dropped without a clean close. Whether it is
// fatal depends on whether any record was obtained first.
type TransportError struct {
	Endpoint string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("transport error for %s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError
func NewTransportError(endpoint, message string, err error) *TransportError {
	return &TransportError{Endpoint: endpoint, Message: message, Err: err}
}

// StreamError represents a terminal error frame received from the remote
// side of a subscription. The sequence ends after surfacing it.
type StreamError struct {
	Kind    string // remote error code, e.g. "FutureCursor"
	Message string
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("error from label stream: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("error from label stream: %s", e.Kind)
}

// FrameDecodeError represents a single inbound frame whose header or body
// failed to decode. It is soft: the consumer counts it and keeps reading.
type FrameDecodeError struct {
	Kind    string // frame kind if the header decoded, otherwise ""
	Message string
	Err     error
}

// Error implements the error interface
func (e *FrameDecodeError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("undecodable %s frame: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("undecodable frame: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}

// NewFrameDecodeError creates a new FrameDecodeError
func NewFrameDecodeError(kind, message string, err error) *FrameDecodeError {
	return &FrameDecodeError{Kind: kind, Message: message, Err: err}
}

// MalformedRecordError represents a decoded label entry that is missing a
// required field or carries an unparseable value. It is soft: the record is
// dropped, counted, and the stream continues.
type MalformedRecordError struct {
	Field   string
	Seq     int64
	Message string
}

// Error implements the error interface
func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed label record at seq %d: field %s: %s", e.Seq, e.Field, e.Message)
	}
	return fmt.Sprintf("malformed label record at seq %d: %s", e.Seq, e.Message)
}

// NewMalformedRecordError creates a new MalformedRecordError
func NewMalformedRecordError(field string, seq int64, message string) *MalformedRecordError {
	return &MalformedRecordError{Field: field, Seq: seq, Message: message}
}

// PersistenceError represents a failure of the append-only store. It is
// fatal only when persistence was explicitly requested.
type PersistenceError struct {
	Operation string // "open", "insert", "query", "init"
	Message   string
	Err       error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("persistence error during %s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("persistence error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(operation, message string, err error) *PersistenceError {
	return &PersistenceError{Operation: operation, Message: message, Err: err}
}

// Helper functions for error checking

// IsResolution checks if an error is a resolution error
func IsResolution(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsFrameDecode checks if an error is a per-frame decode error
func IsFrameDecode(err error) bool {
	var fe *FrameDecodeError
	return errors.As(err, &fe)
}

// IsMalformedRecord checks if an error is a per-record normalization error
func IsMalformedRecord(err error) bool {
	var me *MalformedRecordError
	return errors.As(err, &me)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Helper wrapping functions for common patterns

// WrapResolution wraps an error as a ResolutionError
func WrapResolution(identifier, step string, err error) error {
	if err == nil {
		return nil
	}
	return NewResolutionError(identifier, step, err.Error(), err)
}

// WrapTransport wraps an error as a TransportError
func WrapTransport(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return NewTransportError(endpoint, err.Error(), err)
}

// WrapPersistence wraps an error as a PersistenceError
func WrapPersistence(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewPersistenceError(operation, err.Error(), err)
}
