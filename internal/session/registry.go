package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hexfold/streamrelay/internal/domain"
)

// Recorder receives sessions that reached a terminal state, e.g. for a
// transfer audit log. Implementations must not block.
type Recorder interface {
	Record(ctx context.Context, s *domain.Session)
}

// Registry tracks in-flight download sessions. Each entry carries the
// cancel func for its transfer context so a disconnect or an explicit
// cancel request tears down the upstream fetch promptly. Terminal
// entries stay visible for a grace window and are then swept.
type Registry struct {
	mu       sync.RWMutex
	entries  map[domain.SessionID]*entry
	grace    time.Duration
	recorder Recorder
	logger   *slog.Logger
}

type entry struct {
	session *domain.Session
	cancel  context.CancelFunc
}

// NewRegistry creates a session registry. recorder may be nil.
func NewRegistry(grace time.Duration, recorder Recorder, logger *slog.Logger) *Registry {
	return &Registry{
		entries:  make(map[domain.SessionID]*entry),
		grace:    grace,
		recorder: recorder,
		logger:   logger,
	}
}

// Create registers a pending session. cancel must tear down the
// transfer context the upstream fetch runs under; the registry invokes
// it on any terminal transition, so an explicit cancel through the API
// aborts a blocked upstream read, not just the relay loop.
func (r *Registry) Create(cancel context.CancelFunc, targetURL, formatID, filename string, total int64) *domain.Session {
	id := domain.SessionID("dl_" + uuid.New().String()[:8])
	if total < 0 {
		// Fetchers report an unknown length as -1; sessions use 0.
		total = 0
	}
	s := domain.NewSession(id, targetURL, formatID, filename, total)

	r.mu.Lock()
	r.entries[id] = &entry{session: s, cancel: cancel}
	r.mu.Unlock()

	return s
}

// Get retrieves a session by ID.
func (r *Registry) Get(id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e.session, nil
}

// List returns all tracked sessions, in-flight and recently finished.
func (r *Registry) List() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Session, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.session)
	}
	return result
}

// Active returns the number of sessions that have not finished.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if !e.session.Status().Terminal() {
			n++
		}
	}
	return n
}

// Complete marks a session finished and tears down its context.
func (r *Registry) Complete(id domain.SessionID) {
	r.finish(id, func(s *domain.Session) bool { return s.Complete() })
}

// Fail marks a session failed and tears down its context.
func (r *Registry) Fail(id domain.SessionID, reason string) {
	r.finish(id, func(s *domain.Session) bool { return s.Fail(reason) })
}

// Cancel cancels an in-flight session. Returns ErrSessionNotFound for
// unknown IDs and ErrSessionTerminal when the transfer already ended.
func (r *Registry) Cancel(id domain.SessionID) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	if e.session.Status().Terminal() {
		return domain.ErrSessionTerminal
	}

	r.finish(id, func(s *domain.Session) bool { return s.Cancel() })
	return nil
}

func (r *Registry) finish(id domain.SessionID, transition func(*domain.Session) bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return
	}

	// Only the first terminal transition tears down and records.
	if !transition(e.session) {
		return
	}
	e.cancel()

	if r.recorder != nil {
		go r.recorder.Record(context.Background(), e.session)
	}

	bytes, total, elapsed := e.session.Progress()
	r.logger.Info("session finished",
		"session_id", id,
		"status", e.session.Status(),
		"bytes", bytes,
		"total", total,
		"elapsed", elapsed,
	)
}

// Remove drops a session regardless of state, cancelling its context.
func (r *Registry) Remove(id domain.SessionID) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
}

// Sweep removes terminal sessions whose grace window has elapsed and
// returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		ended := e.session.EndedAt()
		if e.session.Status().Terminal() && !ended.IsZero() && now.Sub(ended) >= r.grace {
			e.cancel()
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}
