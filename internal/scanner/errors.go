// internal/scanner/errors.go
// Dispatcher error definitions

package scanner

import "errors"

// ErrInterrupted is returned when the parent context ends before every probe
// has been admitted and completed
var ErrInterrupted = errors.New("probe run interrupted")

// ErrInvalidConfig is returned for a concurrency ceiling below one
var ErrInvalidConfig = errors.New("invalid dispatcher config")

// ScannerError represents a fatal dispatch failure
type ScannerError struct {
	Message string
	Cause   error
}

func (e *ScannerError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ScannerError) Unwrap() error {
	return e.Cause
}
