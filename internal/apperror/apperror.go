// Package apperror defines the typed domain errors shared across the store,
// merger and executor. Each kind is a distinct struct so callers can recover
// it with errors.As; construction goes through wrap so every error carries an
// eris stack trace without that trace becoming part of the error's identity.
package apperror

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// NotFoundError reports a missing dataset, user, chat, message or store handle.
type NotFoundError struct {
	Kind string // "dataset", "user", "chat", "message", "handle"
	Key  string
	err  error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.Key) }
func (e *NotFoundError) Unwrap() error { return e.err }

// NotFound builds a NotFoundError with an attached stack trace.
func NotFound(kind, key string) error {
	e := &NotFoundError{Kind: kind, Key: key}
	e.err = eris.New(e.Error())
	return e
}

// InvariantViolatedError reports a broken data-model invariant (e.g. not
// exactly one myself user, a message referencing another dataset's chat).
type InvariantViolatedError struct {
	Invariant string
	err       error
}

func (e *InvariantViolatedError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Invariant)
}
func (e *InvariantViolatedError) Unwrap() error { return e.err }

// InvariantViolated builds an InvariantViolatedError with an attached stack trace.
func InvariantViolated(format string, args ...interface{}) error {
	e := &InvariantViolatedError{Invariant: fmt.Sprintf(format, args...)}
	e.err = eris.New(e.Error())
	return e
}

// FormatError is produced only by loaders when a source record cannot be
// decoded at all.
type FormatError struct {
	Source string
	Offset int64 // byte offset or record id, -1 if unknown
	Reason string
	err    error
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("format error in %s at offset %d: %s", e.Source, e.Offset, e.Reason)
	}
	return fmt.Sprintf("format error in %s: %s", e.Source, e.Reason)
}
func (e *FormatError) Unwrap() error { return e.err }

// Format builds a FormatError with an attached stack trace.
func Format(source string, offset int64, reason string) error {
	e := &FormatError{Source: source, Offset: offset, Reason: reason}
	e.err = eris.New(e.Error())
	return e
}

// MediaIOError reports a file copy or read failure during a Store write.
type MediaIOError struct {
	Path string
	err  error
}

func (e *MediaIOError) Error() string { return fmt.Sprintf("media io error for %q: %v", e.Path, e.err) }
func (e *MediaIOError) Unwrap() error { return e.err }

// MediaIO builds a MediaIOError wrapping the underlying os/io error.
func MediaIO(path string, cause error) error {
	return &MediaIOError{Path: path, err: eris.Wrap(cause, "media io")}
}

// TimeShiftDetectedError is raised by the Merger when aligning two streams'
// timestamps would make a conflicting pair equivalent.
type TimeShiftDetectedError struct {
	OffsetSeconds int64
	err           error
}

func (e *TimeShiftDetectedError) Error() string {
	return fmt.Sprintf("time shift detected between datasets by %d seconds", e.OffsetSeconds)
}
func (e *TimeShiftDetectedError) Unwrap() error { return e.err }

// TimeShiftDetected builds a TimeShiftDetectedError with an attached stack trace.
func TimeShiftDetected(offsetSeconds int64) error {
	e := &TimeShiftDetectedError{OffsetSeconds: offsetSeconds}
	e.err = eris.New(e.Error())
	return e
}

// UnorderableError is raised by the Merger when two messages cannot be compared.
type UnorderableError struct {
	MasterID int64
	SlaveID  int64
	err      error
}

func (e *UnorderableError) Error() string {
	return fmt.Sprintf("cannot order master message %d against slave message %d", e.MasterID, e.SlaveID)
}
func (e *UnorderableError) Unwrap() error { return e.err }

// Unorderable builds an UnorderableError with an attached stack trace.
func Unorderable(masterID, slaveID int64) error {
	e := &UnorderableError{MasterID: masterID, SlaveID: slaveID}
	e.err = eris.New(e.Error())
	return e
}

// CancelledError signals cooperative cancellation of a long-running operation.
type CancelledError struct {
	Operation string
	err       error
}

func (e *CancelledError) Error() string { return fmt.Sprintf("%s cancelled", e.Operation) }
func (e *CancelledError) Unwrap() error { return e.err }

// Cancelled builds a CancelledError.
func Cancelled(operation string) error {
	e := &CancelledError{Operation: operation}
	e.err = eris.New(e.Error())
	return e
}

// ConflictError reports a unique-constraint violation on a duplicate source id.
type ConflictError struct {
	ChatID   int64
	SourceID int64
	err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting source_id %d in chat %d", e.SourceID, e.ChatID)
}
func (e *ConflictError) Unwrap() error { return e.err }

// Conflict builds a ConflictError with an attached stack trace.
func Conflict(chatID, sourceID int64) error {
	e := &ConflictError{ChatID: chatID, SourceID: sourceID}
	e.err = eris.New(e.Error())
	return e
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvariantViolated reports whether err is (or wraps) an InvariantViolatedError.
func IsInvariantViolated(err error) bool {
	var e *InvariantViolatedError
	return errors.As(err, &e)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsTimeShiftDetected reports whether err is (or wraps) a TimeShiftDetectedError.
func IsTimeShiftDetected(err error) bool {
	var e *TimeShiftDetectedError
	return errors.As(err, &e)
}

// IsCancelled reports whether err is (or wraps) a CancelledError.
func IsCancelled(err error) bool {
	var e *CancelledError
	return errors.As(err, &e)
}
