package domain

import "errors"

// Domain errors.
var (
	// ErrMissingURL is returned when a request omits the target URL.
	ErrMissingURL = errors.New("missing video URL")

	// ErrInvalidURL is returned when the target URL cannot be parsed
	// or uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid video URL")

	// ErrResolveFailed is returned when the external extraction tool
	// fails to produce a manifest for the URL.
	ErrResolveFailed = errors.New("metadata resolution failed")

	// ErrNoDownloadableFormat is returned when no format in the
	// resolved manifest has a usable source URL.
	ErrNoDownloadableFormat = errors.New("no downloadable format")

	// ErrUpstreamStatus is returned when the upstream server answers
	// with a client or server error status.
	ErrUpstreamStatus = errors.New("upstream returned error status")

	// ErrSessionNotFound is returned when a session cannot be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when attempting to cancel a
	// session that already reached a terminal state.
	ErrSessionTerminal = errors.New("session already finished")

	// ErrStalled is returned when an upstream transfer produces no
	// data within the configured read timeout.
	ErrStalled = errors.New("transfer stalled")
)

// TransferError wraps an error with session context.
type TransferError struct {
	SessionID SessionID
	Op        string
	Err       error
}

func (e *TransferError) Error() string {
	if e.SessionID != "" {
		return e.Op + " [" + e.SessionID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new TransferError.
func NewTransferError(sessionID SessionID, op string, err error) *TransferError {
	return &TransferError{
		SessionID: sessionID,
		Op:        op,
		Err:       err,
	}
}
