// Package dserr defines the tagged error vocabulary shared across every
// consent, query-plan, VM, capsule, deletion, and audit component.
//
// Every rejection in the core fails closed: callers receive a Kind, a
// small reason-code vector bound to an immutable policy version, and a
// plain-language description — never a bare error string.
//
// Errors carry a closed Kind taxonomy and are wrapped
// with github.com/pkg/errors so that Cause() recovers the original
// sentinel through any number of layers.
package dserr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed taxonomy of error kinds.
type Kind string

const (
	KindInvalidArgument   Kind = "InvalidArgument"
	KindIllegalState      Kind = "IllegalState"
	KindConsentDenied     Kind = "ConsentDenied"
	KindPlanRejected      Kind = "PlanRejected"
	KindPRBExhausted      Kind = "PRBExhausted"
	KindReplayDetected    Kind = "ReplayDetected"
	KindExpired           Kind = "Expired"
	KindKeyDestroyed      Kind = "KeyDestroyed"
	KindSignatureInvalid  Kind = "SignatureInvalid"
	KindResourceExceeded  Kind = "ResourceExceeded"
	KindNetworkBlocked    Kind = "NetworkBlocked"
	KindIntegrityFailed   Kind = "IntegrityFailed"
)

// PolicyVersion is the immutable version stamp attached to every
// reason-code vector this package produces. Bump it only when the
// reason-code table itself changes meaning.
const PolicyVersion = "dscore-policy-v1"

// Error is the tagged error type returned by every core component.
type Error struct {
	Kind        Kind
	ReasonCodes []string
	Message     string
	// Required holds the amount required for a PRBExhausted error.
	Required string
	// Remaining holds the amount remaining for a PRBExhausted error.
	Remaining string
	// Dimension holds the tripped resource dimension for ResourceExceeded.
	Dimension string
	// Destination holds the blocked egress target for NetworkBlocked.
	Destination string
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause exposes the wrapped cause for github.com/pkg/errors.Cause.
func (e *Error) Cause() error {
	return e.cause
}

// Describe renders the plain-language description table entry for
// every reason code attached to this error, in the order they were
// attached.
func (e *Error) Describe() []string {
	out := make([]string, 0, len(e.ReasonCodes))
	for _, code := range e.ReasonCodes {
		out = append(out, ReasonTable.Describe(code))
	}
	return out
}

// New builds an Error of the given kind with a message and reason codes.
func New(kind Kind, message string, reasonCodes ...string) *Error {
	return &Error{Kind: kind, Message: message, ReasonCodes: reasonCodes}
}

// Wrap attaches cause as the Unwrap() target of a new Error, preserving
// the original fault for errors.Is/As while surfacing a stable Kind to
// callers at the component boundary.
func Wrap(kind Kind, cause error, message string, reasonCodes ...string) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		ReasonCodes: reasonCodes,
		cause:       errors.Wrap(cause, message),
	}
}

// PRBExhausted builds the PRBExhausted{required, remaining} error.
func PRBExhausted(required, remaining string) *Error {
	return &Error{
		Kind:        KindPRBExhausted,
		Message:     fmt.Sprintf("privacy risk budget exhausted: need %s, have %s", required, remaining),
		Required:    required,
		Remaining:   remaining,
		ReasonCodes: []string{"PRB_EXHAUSTED"},
	}
}

// ResourceExceeded builds the ResourceExceeded{dimension} error.
func ResourceExceeded(dimension string) *Error {
	return &Error{
		Kind:        KindResourceExceeded,
		Message:     fmt.Sprintf("resource limit exceeded: %s", dimension),
		Dimension:   dimension,
		ReasonCodes: []string{"RESOURCE_EXCEEDED_" + dimension},
	}
}

// NetworkBlocked builds the NetworkBlocked{destination} error.
func NetworkBlocked(destination string) *Error {
	return &Error{
		Kind:        KindNetworkBlocked,
		Message:     fmt.Sprintf("egress attempted while network gate engaged: %s", destination),
		Destination: destination,
		ReasonCodes: []string{"NETWORK_EGRESS_BLOCKED"},
	}
}

// ConsentDenied builds the ConsentDenied{reason_codes} error.
func ConsentDenied(reasonCodes ...string) *Error {
	return &Error{
		Kind:        KindConsentDenied,
		Message:     "consent check denied",
		ReasonCodes: reasonCodes,
	}
}

// PlanRejected builds the PlanRejected{errors[]} error from an
// aggregated validation failure.
func PlanRejected(reasonCodes ...string) *Error {
	return &Error{
		Kind:        KindPlanRejected,
		Message:     "query plan rejected by validator",
		ReasonCodes: reasonCodes,
	}
}

// As reports whether err is (or wraps) a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
