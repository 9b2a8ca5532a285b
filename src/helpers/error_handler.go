package helpers

import (
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type StreamerError struct {
	Message string
	Cause   error
}

func (e *StreamerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamerError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds, matched with errors.As
type ConfigurationError struct{ StreamerError }

// DataUnavailableError: upstream history empty or unreachable.
type DataUnavailableError struct{ StreamerError }

// EntitlementError: the live feed refused access for licensing reasons.
type EntitlementError struct{ StreamerError }

// MalformedRecordError: a record is missing a required field.
type MalformedRecordError struct {
	StreamerError
	Field string
}

// TransportError: the live connection failed for any other reason.
type TransportError struct{ StreamerError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewConfigurationError(msg string) error {
	return &ConfigurationError{StreamerError{Message: msg}}
}

func NewDataUnavailableError(msg string, cause error) error {
	return &DataUnavailableError{StreamerError{Message: msg, Cause: cause}}
}

func NewEntitlementError(msg string, cause error) error {
	return &EntitlementError{StreamerError{Message: msg, Cause: cause}}
}

func NewMalformedRecordError(field string) error {
	return &MalformedRecordError{
		StreamerError: StreamerError{Message: fmt.Sprintf("record missing field %q", field)},
		Field:         field,
	}
}

func NewTransportError(msg string, cause error) error {
	return &TransportError{StreamerError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

var entitlementMarkers = []string{"license", "licence", "entitlement", "not authorized for dataset", "subscription required"}

// IsEntitlementMessage reports whether an upstream error text describes an
// access/licensing refusal.
func IsEntitlementMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range entitlementMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// ClassifyUpstreamError wraps an upstream failure as EntitlementError or
// TransportError depending on its text.
func ClassifyUpstreamError(msg string, cause error) error {
	text := msg
	if cause != nil {
		text = msg + ": " + cause.Error()
	}
	if IsEntitlementMessage(text) {
		return NewEntitlementError(msg, cause)
	}
	return NewTransportError(msg, cause)
}

// -----------------------------------------------------------------------------

func IsEntitlement(err error) bool {
	var target *EntitlementError
	return errors.As(err, &target)
}

// -----------------------------------------------------------------------------

func IsMalformed(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}
