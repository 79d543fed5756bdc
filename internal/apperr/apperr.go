// Package apperr defines the structured failures returned by the core operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render it without parsing messages.
type Kind string

const (
	NotFound            Kind = "not_found"
	Forbidden           Kind = "forbidden"
	InvalidInput        Kind = "invalid_input"
	EmptyMachineSet     Kind = "empty_machine_set"
	InvalidQuantity     Kind = "invalid_quantity"
	MachineNotOwned     Kind = "machine_not_owned"
	QuotaExceeded       Kind = "quota_exceeded"
	DuplicateSerial     Kind = "duplicate_serial"
	MachineBusy         Kind = "machine_busy"
	InvalidTransition   Kind = "invalid_transition"
	AlreadyTerminal     Kind = "already_terminal"
	ParentTerminal      Kind = "parent_terminal"
	MachinesStillActive Kind = "machines_still_active"
)

// Error is a recoverable domain failure.
type Error struct {
	Kind    Kind
	Message string
	// Limit is the quota that was hit, for QuotaExceeded.
	Limit int
	// Status is the offending entity status, for state-machine guards.
	Status string
	// MachineIDs lists the machines that caused the rejection, when relevant.
	MachineIDs []int64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match an *Error against a bare Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// Error makes Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithStatus records the offending status on e.
func (e *Error) WithStatus(status string) *Error {
	e.Status = status
	return e
}

// WithLimit records the quota limit on e.
func (e *Error) WithLimit(limit int) *Error {
	e.Limit = limit
	return e
}

// WithMachines records the offending machine ids on e.
func (e *Error) WithMachines(ids []int64) *Error {
	e.MachineIDs = ids
	return e
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
