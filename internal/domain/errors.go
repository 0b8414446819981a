package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGateBusy is returned when ingestion or analysis is already running.
	ErrGateBusy = errors.New("another ingestion or analysis run is in progress")
	// ErrExtraction marks a wholesale failure of the extraction collaborator.
	ErrExtraction = errors.New("extraction failed")
	// ErrStoreUnavailable marks record-store failures that make continuing unsafe.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrReconciliationConflict means the store rejected a write on key uniqueness,
	// which points at a key-derivation bug rather than bad input.
	ErrReconciliationConflict = errors.New("reconciliation conflict")
)

// RejectedError reports a scraped entry dropped by cleaning.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("entry rejected: %s", e.Reason)
}

// Reject builds a RejectedError with a formatted reason.
func Reject(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
