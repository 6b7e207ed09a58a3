package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrKind identifies where in the call pipeline a failure happened.
type ErrKind string

const (
	ErrNotFound      ErrKind = "NOT_FOUND"      // name absent from catalog; never recorded in health
	ErrValidation    ErrKind = "VALIDATION"     // arguments fail schema checks; never recorded in health
	ErrDuplicateName ErrKind = "DUPLICATE_NAME" // catalog merge collision; configuration error
	ErrDependency    ErrKind = "DEPENDENCY"     // type cannot be resolved; recorded as unavailable
	ErrConstruction  ErrKind = "CONSTRUCTION"   // factory ran but failed; recorded as unavailable
	ErrExecution     ErrKind = "EXECUTION"      // the instance ran but the operation failed
	ErrInternal      ErrKind = "INTERNAL"
)

// ExecClass subdivides execution failures. Only ClassPermanent flips a
// tool's health record to unavailable.
type ExecClass string

const (
	ClassTimeout   ExecClass = "timeout"
	ClassTransient ExecClass = "transient"
	ClassPermanent ExecClass = "permanent"
)

// Violation is one validation failure against a parameter schema.
type Violation struct {
	Param  string `json:"param"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Param, v.Reason)
}

// Error is the structured error every engine operation returns. A single
// tool's worst failure mode must be one of these, never a crash.
type Error struct {
	Kind       ErrKind     `json:"kind"`
	Class      ExecClass   `json:"class,omitempty"`
	Op         string      `json:"op,omitempty"`
	Message    string      `json:"message,omitempty"`
	Hint       string      `json:"hint,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
	Cause      error       `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" && len(e.Violations) > 0 {
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			parts = append(parts, v.String())
		}
		msg = strings.Join(parts, "; ")
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Kind)
		}
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// E builds a structured error.
func E(kind ErrKind, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// WithHint attaches actionable next steps ("set environment variable X").
func (e *Error) WithHint(hint string) *Error {
	if e == nil {
		return nil
	}
	e.Hint = hint
	return e
}

// Wrap classifies err under kind unless it is already a structured error.
func Wrap(kind ErrKind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		clone := *existing
		clone.Op = op
		return &clone
	}
	return E(kind, op, "", err)
}

// KindFrom extracts the structured kind, if any.
func KindFrom(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind, true
	}
	return "", false
}

// Transient marks an execution error as a one-off condition.
func Transient(op string, err error) *Error {
	e := Wrap(ErrExecution, op, err)
	if e != nil {
		e.Class = ClassTransient
	}
	return e
}

// Permanent marks an execution error as a structural tool fault.
func Permanent(op string, err error) *Error {
	e := Wrap(ErrExecution, op, err)
	if e != nil {
		e.Class = ClassPermanent
	}
	return e
}

// ClassifyExecution maps an execution failure onto the engine-wide policy:
// deadline and cancellation become timeout class, network-shaped conditions
// become transient, everything else is treated as permanent so operators see
// structurally broken tools in health. Tools that know better can pre-mark
// errors with Transient or Permanent. The result is always a fresh Error:
// tools hand in shared sentinels, and classification must not write through
// them.
func ClassifyExecution(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		clone := *existing
		if clone.Op == "" {
			clone.Op = op
		}
		if clone.Kind == ErrExecution && clone.Class != "" {
			return &clone
		}
		clone.Kind = ErrExecution
		clone.Class = classifyCause(err)
		return &clone
	}

	e := E(ErrExecution, op, "", err)
	e.Class = classifyCause(err)
	return e
}

func classifyCause(err error) ExecClass {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassTimeout
	case isTransientNetwork(err):
		return ClassTransient
	default:
		return ClassPermanent
	}
}

func isTransientNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}
