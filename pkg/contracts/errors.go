package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the kernel.
var (
	// ErrMandateNotFound means no mandate matched the lookup.
	ErrMandateNotFound = errors.New("mandate not found")

	// ErrNoActiveMandate means the owner has no active mandate. Enforcement
	// treats this as fail-closed, never as "no rules".
	ErrNoActiveMandate = errors.New("no active mandate")

	// ErrActiveMandateExists is returned by Create when the owner already
	// has an active mandate and replacement was not requested.
	ErrActiveMandateExists = errors.New("active mandate exists; replacement not requested")

	// ErrEventNotFound means no ledger event matched the lookup.
	ErrEventNotFound = errors.New("event not found")

	// ErrAlreadyCommitted guards proof attachment idempotence. Retrying
	// callers must treat it as a no-op success.
	ErrAlreadyCommitted = errors.New("proof already attached")

	// ErrNotConfigured means no signing identity or network client is
	// available; the commit queue simply does not drain.
	ErrNotConfigured = errors.New("chain commitment not configured")
)

// ValidationError rejects structurally invalid mandate rules before any
// write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid mandate rules: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a backing-store failure. It is always propagated, never
// swallowed; the enforcement path reacts by failing closed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for operation op. Returns nil when err
// is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// SubmissionError is an external-ledger rejection or network failure during
// commitment. It is recorded per event in batch results, never thrown out of
// a batch.
type SubmissionError struct {
	Stage string // e.g. "sign", "transport", "chain", "confirm"
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("chain submission (%s): %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
