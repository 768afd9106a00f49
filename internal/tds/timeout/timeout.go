// Package timeout implements the per-session timeout and attention
// cancellation supervisor (C5): a single-shot timer that, on expiry,
// drives the out-of-band attention sequence and a bounded grace period
// waiting for the server's acknowledgement.
package timeout

import (
	"sync"
	"time"

	"github.com/gotds/tds/internal/tds/diagnostics"
)

// State is the supervisor's lifecycle state.
type State int

const (
	Stopped State = iota
	Running
	ExpiredSync
	ExpiredAsync
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case ExpiredSync:
		return "expired_sync"
	case ExpiredAsync:
		return "expired_async"
	default:
		return "unknown"
	}
}

// UnassociatedOperation is the reserved operation identity that a cancel
// request can never match (spec.md §4.5).
const UnassociatedOperation int64 = -1

// graceDuration is a var rather than a const so tests in this package
// can shrink it instead of sleeping for the real 5 seconds.
var graceDuration = 5 * time.Second

// Hooks lets the supervisor reach into the session, writer, and
// transport without owning them directly.
type Hooks struct {
	// LoggedIn reports whether the session has completed login. An
	// expiry before login never triggers attention.
	LoggedIn func() bool

	// InPool reports whether the connection is currently a pooled,
	// idle member. Attention must never be sent in that state.
	InPool func() bool

	// SendAttention transmits the out-of-band attention packet.
	SendAttention func() error

	// EnqueueError records the TIMEOUT_EXPIRED error on the session.
	EnqueueError func(msg string)

	// MarkBroken marks the session unusable; it will not be returned
	// to the pool.
	MarkBroken func()
}

// Supervisor owns the single-shot timer and the cancel/attention
// interlock for one session.
type Supervisor struct {
	mu sync.Mutex

	hooks Hooks

	state      State
	timeoutMs  int
	identity   int64
	nextIdent  int64
	activeOpID int64

	attentionSent   bool
	attentionAcked  bool
	cancelled       bool
	attentionSentAt time.Time

	timer      *time.Timer
	graceTimer *time.Timer

	sessionID string
	sink      diagnostics.Sink
}

// New creates a supervisor. hooks must be fully populated.
func New(hooks Hooks) *Supervisor {
	return &Supervisor{
		hooks:      hooks,
		state:      Stopped,
		activeOpID: UnassociatedOperation,
		sink:       diagnostics.NoopSink{},
	}
}

// SetDiagnostics attaches a diagnostics sink and the session identity
// TimeoutExpired/AttentionSent/AttentionAcked events should be reported
// under (spec.md §6).
func (s *Supervisor) SetDiagnostics(sessionID string, sink diagnostics.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	if sink != nil {
		s.sink = sink
	}
}

// SetTimeout sets the command timeout in milliseconds. ms <= 0 means
// infinite (no timer is ever armed).
func (s *Supervisor) SetTimeout(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutMs = ms
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginOperation transitions Stopped -> Running, allocates a fresh
// timeout identity, and arms the single-shot timer if a finite timeout
// is configured. opID identifies the operation for later cancellation
// (UnassociatedOperation if the caller has none yet).
func (s *Supervisor) BeginOperation(opID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextIdent++
	ident := s.nextIdent

	s.state = Running
	s.identity = ident
	s.activeOpID = opID
	s.attentionSent = false
	s.attentionAcked = false
	s.cancelled = false

	s.stopTimerLocked()
	if s.timeoutMs > 0 {
		d := time.Duration(s.timeoutMs) * time.Millisecond
		s.timer = time.AfterFunc(d, func() { s.onTimerFire(ident) })
	}
	return ident
}

// Complete transitions Running -> Stopped on success, provided ident
// still matches the currently active operation (a stale completion
// from an operation that already expired is ignored).
func (s *Supervisor) Complete(ident int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ident != s.identity {
		return
	}
	s.stopTimerLocked()
	s.stopGraceTimerLocked()
	s.state = Stopped
	s.activeOpID = UnassociatedOperation
}

// ExpireSync reports expiry observed on the synchronous wait path
// (a blocking read that woke up past its deadline rather than via the
// timer firing). ident must match the currently active operation.
func (s *Supervisor) ExpireSync(ident int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ident != s.identity || s.state != Running {
		return
	}
	s.expireLocked(ExpiredSync)
}

func (s *Supervisor) onTimerFire(ident int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ident != s.identity || s.state != Running {
		return
	}
	s.expireLocked(ExpiredAsync)
}

// expireLocked runs the attention sequence from spec.md §4.5. Caller
// holds s.mu.
func (s *Supervisor) expireLocked(next State) {
	s.state = next
	s.sink.TimeoutExpired(s.sessionID)

	if s.attentionSent || !s.hooks.LoggedIn() {
		return
	}

	if s.hooks.InPool() {
		s.hooks.MarkBroken()
		return
	}

	s.hooks.EnqueueError("TIMEOUT_EXPIRED")

	if err := s.hooks.SendAttention(); err != nil {
		s.hooks.MarkBroken()
		return
	}
	s.attentionSent = true
	s.attentionSentAt = time.Now()
	s.sink.AttentionSent(s.sessionID)

	s.graceTimer = time.AfterFunc(graceDuration, func() { s.onGraceExpired() })
}

func (s *Supervisor) onGraceExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attentionAcked {
		return
	}
	s.hooks.MarkBroken()
}

// AttentionAcked is called once the read pipeline observes the DONE
// token with the attention bit set, completing the attention
// round-trip. It disarms the grace timer and returns the session to a
// clean, idle state.
func (s *Supervisor) AttentionAcked() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attentionAcked = true
	if !s.attentionSentAt.IsZero() {
		s.sink.AttentionAcked(s.sessionID, time.Since(s.attentionSentAt))
		s.attentionSentAt = time.Time{}
	}
	s.stopGraceTimerLocked()
	s.attentionSent = false
	if s.state == ExpiredSync || s.state == ExpiredAsync {
		s.state = Stopped
	}
	s.activeOpID = UnassociatedOperation
}

// Cancel requests cancellation of opID. It is idempotent: a second
// cancel for the same or a stale operation is a no-op. The session
// lock is acquired with a bounded busy-poll per spec.md §4.5 rather
// than blocking indefinitely, since a cancel can race the operation's
// own completion.
func (s *Supervisor) Cancel(opID int64) bool {
	if opID == UnassociatedOperation {
		return false
	}
	if !s.tryLockBounded(50*time.Millisecond, 200*time.Microsecond) {
		return false
	}
	defer s.mu.Unlock()

	if s.activeOpID != opID {
		return false
	}
	if s.cancelled {
		return true
	}
	s.cancelled = true

	if s.state == Running && !s.attentionSent {
		if err := s.hooks.SendAttention(); err == nil {
			s.attentionSent = true
			s.attentionSentAt = time.Now()
			s.sink.AttentionSent(s.sessionID)
			s.graceTimer = time.AfterFunc(graceDuration, func() { s.onGraceExpired() })
		} else {
			s.hooks.MarkBroken()
		}
	}
	return true
}

// Cancelled reports whether the active operation has been cancelled.
func (s *Supervisor) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Supervisor) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Supervisor) stopGraceTimerLocked() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

// tryLockBounded spins on TryLock until it succeeds or maxWait elapses.
func (s *Supervisor) tryLockBounded(maxWait, interval time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if s.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
