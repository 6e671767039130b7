// Package apperrors defines the closed error-kind taxonomy shared by every
// agent, the store adapter, and the object store adapter.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the transport-agnostic error category used across the pipeline.
type Kind string

// Recognized error kinds. Workflows switch on these to decide retry, fail,
// or integrity handling — never on error string contents.
const (
	KindTransient        Kind = "transient"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInputInvalid     Kind = "input_invalid"
	KindPlanInvalid      Kind = "plan_invalid"
	KindInputEmpty       Kind = "input_empty"
	KindBadDatasetLayout Kind = "bad_dataset_layout"
	KindNoCandidate      Kind = "no_candidate"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout          Kind = "timeout"
	KindDependency       Kind = "dependency"
	KindIntegrity        Kind = "integrity"
	KindPermanent        Kind = "permanent"
)

// Error is a kind-tagged error that carries an optional step label for
// AgentLog / metadata.error reporting.
type Error struct {
	Kind   Kind
	Step   string
	detail string
	err    error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.detail, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.detail)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a Kind-tagged error with a human detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, detail: detail}
}

// Wrap tags an underlying error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, detail: detail, err: err}
}

// WithStep attaches the workflow step name the error occurred in.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// Detail returns the human-readable detail message.
func (e *Error) Detail() string { return e.detail }

// As extracts a *Error from any error chain, the way callers classify
// failures without string matching.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindDependency — any unclassified external failure is treated as a
// persistently-failing dependency, never silently ignored.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindDependency
}

// IsRetryable reports whether the error kind is eligible for the bounded
// retry budgets described in /4.2/4.4.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
