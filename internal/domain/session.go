package domain

import (
	"sync"
	"time"
)

// SessionID is a unique identifier for a download session.
type SessionID string

// String returns the string representation of the SessionID.
func (id SessionID) String() string {
	return string(id)
}

// SessionStatus represents the current state of a download session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionComplete  SessionStatus = "complete"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionComplete || s == SessionFailed || s == SessionCancelled
}

// Session tracks a single proxied transfer. Its lifetime is bounded by
// one HTTP request/response cycle; it is never durable state. Exactly
// one terminal transition is permitted per session.
type Session struct {
	ID        SessionID
	TargetURL string
	FormatID  string
	Filename  string

	mu          sync.Mutex
	status      SessionStatus
	bytes       int64
	total       int64 // 0 when upstream length is unknown
	startedAt   time.Time
	endedAt     time.Time
	lastFailure string
}

// NewSession creates a pending session for a transfer about to begin.
func NewSession(id SessionID, targetURL, formatID, filename string, total int64) *Session {
	return &Session{
		ID:        id,
		TargetURL: targetURL,
		FormatID:  formatID,
		Filename:  filename,
		status:    SessionPending,
		total:     total,
		startedAt: time.Now(),
	}
}

// Status returns the current session status.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Activate moves the session from pending to active. It is a no-op once
// the session is active or terminal.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionPending {
		s.status = SessionActive
	}
}

// AddBytes accumulates transferred bytes.
func (s *Session) AddBytes(n int64) {
	s.mu.Lock()
	s.bytes += n
	s.mu.Unlock()
}

// Progress returns bytes transferred, total size (0 when unknown), and
// elapsed time since the transfer began.
func (s *Session) Progress() (bytes, total int64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return s.bytes, s.total, end.Sub(s.startedAt)
}

// Throughput returns the mean transfer rate in bytes per second.
func (s *Session) Throughput() float64 {
	bytes, _, elapsed := s.Progress()
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns when the session reached a terminal state, or the
// zero time while it is still in flight.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Failure returns the recorded failure message, if any.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// Complete marks the transfer finished. Returns false if a terminal
// transition already happened.
func (s *Session) Complete() bool {
	return s.finish(SessionComplete, "")
}

// Fail marks the transfer failed with the given reason. Returns false
// if a terminal transition already happened.
func (s *Session) Fail(reason string) bool {
	return s.finish(SessionFailed, reason)
}

// Cancel marks the transfer cancelled. Returns false if a terminal
// transition already happened.
func (s *Session) Cancel() bool {
	return s.finish(SessionCancelled, "")
}

func (s *Session) finish(status SessionStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.lastFailure = reason
	s.endedAt = time.Now()
	return true
}
