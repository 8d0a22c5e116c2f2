// Package preload speculatively fills the question cache for a game session
// so the next request is served without waiting on a model.
package preload

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrThrottled rejects a scheduling request that arrives too soon after the
// previous one for the same session.
var ErrThrottled = errors.New("preload throttled")

// State is a session's position in scheduled → running → done.
type State string

const (
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateDone      State = "done"
)

// Outcome reports what Schedule did with a request.
type Outcome string

const (
	OutcomeScheduled  Outcome = "scheduled"
	OutcomeInProgress Outcome = "already_in_progress"
	OutcomeSuperseded Outcome = "superseded"
)

// Session is the awaitable, cancellable handle of one preload run.
type Session struct {
	ID          string
	Fingerprint string

	mu          sync.Mutex
	state       State
	scheduledAt time.Time
	finishedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches StateDone.
func (s *Session) Done() <-chan struct{} { return s.done }

// Context is canceled when the session is superseded or the registry shuts down.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateScheduled {
		s.state = StateRunning
	}
}

// finish moves the session to done and fires the completion signal. Only
// the first call has any effect.
func (s *Session) finish(now time.Time) {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = StateDone
		s.finishedAt = now
		s.mu.Unlock()
		s.cancel()
		close(s.done)
	})
}

func (s *Session) active() bool {
	st := s.State()
	return st == StateScheduled || st == StateRunning
}

// Registry maps session ids to their latest preload handle.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	minInterval time.Duration
	retention   time.Duration
	now         func() time.Time

	base   context.Context
	cancel context.CancelFunc
}

// NewRegistry builds a registry. Sessions finished longer than retention
// ago are forgotten on the next Begin.
func NewRegistry(minInterval, retention time.Duration) *Registry {
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions:    make(map[string]*Session),
		minInterval: minInterval,
		retention:   retention,
		now:         time.Now,
		base:        base,
		cancel:      cancel,
	}
}

// Begin creates or reuses the handle for id. A matching fingerprint on an
// active session is reported as in progress. Any other request inside
// minInterval of the last scheduling is throttled. Otherwise a new session
// replaces the old one, which is canceled and marked done.
func (r *Registry) Begin(id, fingerprint string) (*Session, Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)

	prev, ok := r.sessions[id]
	outcome := OutcomeScheduled
	if ok {
		if prev.active() && prev.Fingerprint == fingerprint {
			return prev, OutcomeInProgress, nil
		}
		if now.Sub(prev.scheduledAt) < r.minInterval {
			return nil, "", ErrThrottled
		}
		if prev.active() {
			outcome = OutcomeSuperseded
			prev.finish(now)
		}
	}

	ctx, cancel := context.WithCancel(r.base)
	s := &Session{
		ID:          id,
		Fingerprint: fingerprint,
		state:       StateScheduled,
		scheduledAt: now,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.sessions[id] = s
	return s, outcome, nil
}

// Lookup returns the current handle for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Wait blocks until the session's preload completes, the timeout elapses or
// ctx ends. It returns true only when the completion signal fired in time,
// and returns false at once when nothing is scheduled or running.
func (r *Registry) Wait(ctx context.Context, id string, timeout time.Duration) bool {
	s, ok := r.Lookup(id)
	if !ok || !s.active() {
		return false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.Done():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close cancels every session. Their runs still fire done as they unwind.
func (r *Registry) Close() {
	r.cancel()
}

func (r *Registry) pruneLocked(now time.Time) {
	if r.retention <= 0 {
		return
	}
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := s.state == StateDone && now.Sub(s.finishedAt) > r.retention
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
		}
	}
}
