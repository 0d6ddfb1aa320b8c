// Package services contains the shared error taxonomy for meetingnotesd.
//
// Errors are classified with sentinel markers so callers can branch on the
// kind of failure without string matching: input problems map to 4xx webhook
// responses, transient problems are retried, and everything else fails the job.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for error classification.
var (
	// ErrInput marks failures caused by the submitted payload: malformed JSON,
	// missing fields, oversized transcripts.
	ErrInput = errors.New("invalid input")

	// ErrWrite marks failures persisting a transcript or note to the data repo.
	ErrWrite = errors.New("write failed")

	// ErrSync marks git synchronization failures (clone, pull, push).
	ErrSync = errors.New("sync failed")

	// ErrDispatch marks failures handing a transcript to the processing
	// strategy, local or relay.
	ErrDispatch = errors.New("dispatch failed")

	// ErrExternalTool marks failures of external commands (git, hooks,
	// standalone processors).
	ErrExternalTool = errors.New("external tool failed")

	// ErrTimeout marks operations that exceeded their deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransient marks temporary failures that may succeed on retry, such as
	// rate limits or network errors from the LLM or notification services.
	ErrTransient = errors.New("transient failure")
)

// ServiceError carries the failing stage and operation alongside the
// classification marker.
type ServiceError struct {
	marker error
	Stage  string
	Op     string
	Msg    string
	Err    error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(e.Stage)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.marker != nil {
		b.WriteString(e.marker.Error())
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the wrapped cause chain. The marker participates in
// errors.Is matching through Is below.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches the classification marker.
func (e *ServiceError) Is(target error) bool {
	return e.marker != nil && errors.Is(e.marker, target)
}

// Wrap builds a classified error. marker should be one of the sentinel errors
// above; stage names the pipeline stage (ingest, split, match, summarize,
// sync, dispatch) and op the specific operation within it.
func Wrap(marker error, stage, op, msg string, err error) error {
	return &ServiceError{marker: marker, Stage: stage, Op: op, Msg: msg, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(marker error, stage, op string, err error, format string, args ...any) error {
	return &ServiceError{marker: marker, Stage: stage, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsInput reports whether err was caused by the submitted payload.
func IsInput(err error) bool {
	return errors.Is(err, ErrInput)
}

// ErrorHint returns a short operator-facing hint for a classified error,
// suitable for notifications and job records.
func ErrorHint(err error) string {
	switch {
	case errors.Is(err, ErrInput):
		return "check the webhook payload"
	case errors.Is(err, ErrSync):
		return "check git remote access and branch state"
	case errors.Is(err, ErrWrite):
		return "check data repo permissions and disk space"
	case errors.Is(err, ErrExternalTool):
		return "check the external command and its logs"
	case errors.Is(err, ErrTimeout):
		return "operation exceeded its deadline"
	case errors.Is(err, ErrTransient):
		return "temporary failure, will be retried"
	case errors.Is(err, ErrDispatch):
		return "check dispatch configuration"
	default:
		return ""
	}
}
