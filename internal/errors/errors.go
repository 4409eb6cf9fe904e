// Package errors provides the error taxonomy shared across the job engine.
// Following Go idioms, errors are values that carry context about what went
// wrong and how a caller should react to it.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the processor framework should react to
// it, independent of the Go type that carries it.
type Kind string

const (
	// KindRetryableTransient covers network timeouts, 5xx responses, DB
	// contention and broker stalls. The broker retries with backoff.
	KindRetryableTransient Kind = "retryable_transient"

	// KindRetryableImport covers organize-time file-not-found/permission
	// errors and "zero audio files found". Consumes an importAttempts
	// counter instead of a broker retry.
	KindRetryableImport Kind = "retryable_import"

	// KindTerminalConfig covers missing prerequisites (unset library id,
	// unconfigured indexer). Recorded on the Job row; never fails a Request.
	KindTerminalConfig Kind = "terminal_config"

	// KindTerminalRequest covers unrecoverable per-request failures: all
	// mirrors failed, the download client reported failure, cancellation.
	KindTerminalRequest Kind = "terminal_request"

	// KindDegradedSuccess covers below-threshold library matches and
	// trigger-scan refusals: logged, never failed.
	KindDegradedSuccess Kind = "degraded_success"
)

// Standard sentinel errors. Check with errors.Is() for specific handling.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrAlreadyExists       = errors.New("resource already exists")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrDependencyMissing   = errors.New("required dependency not installed")
	ErrDownloadFailed      = errors.New("download failed")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrTimeout             = errors.New("operation timed out")
	ErrCancelled           = errors.New("operation cancelled")
	ErrRateLimited         = errors.New("rate limited")
	ErrNoCandidates        = errors.New("no candidates found")
	ErrDeleted             = errors.New("request is soft-deleted")
	ErrStateMismatch       = errors.New("request is not in the expected state")
)

// AppError is a structured error that carries an operation, a kind, and an
// optional user-facing message on top of the underlying error.
type AppError struct {
	Op      string // operation that failed, e.g. "organize_files.moveFiles"
	Kind    Kind   // how the framework should react
	Err     error  // underlying error
	Message string // human-readable message (notifications, Job.errorMessage)
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to see through AppError.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError of the given kind.
func New(op string, kind Kind, err error) *AppError {
	return &AppError{Op: op, Kind: kind, Err: err}
}

// NewWithMessage creates an AppError of the given kind with a message.
func NewWithMessage(op string, kind Kind, err error, message string) *AppError {
	return &AppError{Op: op, Kind: kind, Err: err, Message: message}
}

// Wrap wraps err as a retryable-transient AppError, the default kind for
// anything bubbling up from an external call site that hasn't classified
// itself yet.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}
	return &AppError{Op: op, Kind: KindRetryableTransient, Err: err}
}

// WrapAs wraps err as an AppError of the given kind.
func WrapAs(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindRetryableTransient when
// err does not carry one — the safest default, since re-trying a job that
// truly can't succeed just burns an attempt rather than corrupting state.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindRetryableTransient
}

// IsRetryable reports whether the broker should reschedule the job rather
// than mark it failed outright.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRetryableTransient, KindRetryableImport:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether err should move the owning Request to a
// terminal status (failed) rather than merely fail the job.
func IsTerminal(err error) bool {
	return KindOf(err) == KindTerminalRequest
}

// IsNotFound checks if an error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCancelled checks if an error is a cancellation error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
