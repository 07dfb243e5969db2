package ftplib

import (
	"errors"
	"fmt"
)

// TransportError is a structured error from the FTP transport adapter.
// Use errors.As to extract and inspect it.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "login", "retr").
	Op string
	// Cause is the underlying error.
	Cause error
	// transient indicates whether the error may be retried by reallocating the segment.
	transient bool
}

// Error implements the error interface. Format: "ftp op: cause".
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ftp %s: %s", e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("ftp %s", e.Op)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if the segment owning this error should simply be
// reallocated on the supervisor's next tick rather than treated as fatal.
func (e *TransportError) IsTransient() bool {
	return e.transient
}

// NewTransientError creates a TransportError that the supervisor may recover
// from by reallocating the affected blocks.
func NewTransientError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause, transient: true}
}

// NewPermanentError creates a TransportError that should bubble up and stop
// the download (auth failures, TLS negotiation failures).
func NewPermanentError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause, transient: false}
}

// BlockmapError reports an invariant violation raised by blockmap
// operations: a malformed sidecar file, a non-positive blocksize, a
// misaligned offset, a status character outside the alphabet, or a block
// range out of bounds. The walker also uses it for a local path that
// cannot be created as a directory.
type BlockmapError struct {
	Op     string
	Reason string
}

func (e *BlockmapError) Error() string {
	return fmt.Sprintf("blockmap %s: %s", e.Op, e.Reason)
}

var (
	// ErrNotADirectory is returned by the transport's List when the target
	// path is a plain file, not a directory. Expected by the walker.
	ErrNotADirectory = errors.New("not a directory")

	// ErrTLSNotSupported is surfaced when the server rejects AUTH TLS.
	ErrTLSNotSupported = errors.New("server does not support TLS")
)
