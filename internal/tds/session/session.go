// Package session implements the session object (C7): the aggregation
// point for a session's error/warning collections, its broken/sync-mode
// flags, and orphan detection for pooled MARS sessions.
package session

import (
	"sync"
	"weak"

	"github.com/gotds/tds/internal/tds/diagnostics"
)

// Info is one recorded error or warning (spec.md §4.7).
type Info struct {
	Number   int32
	State    byte
	Class    byte
	Message  string
	ServerName string
	ProcName string
	LineNo   int32
}

// Owner is an opaque handle representing whoever currently holds a
// pooled session checked out (spec.md §4.7's "weak owner reference").
// Callers allocate one per checkout and let it go out of scope when
// done; the session never dereferences it, only tests liveness. The
// pointer field gives Owner a non-zero size outside the tiny allocator,
// so each checkout gets its own heap object that the collector can free.
type Owner struct{ _ *byte }

// Session aggregates the error/warning collections, broken/sync-mode
// state, and activation bookkeeping shared by every collaborator above
// C1-C6. All mutation goes through a single lock, matching spec.md
// §4.7's "single lock" requirement.
type Session struct {
	mu sync.Mutex

	SPID uint16

	errors   []Info
	warnings []Info
	broken   bool
	syncMode bool

	// stashed holds the errors/warnings collections set aside by
	// StoreForAttention, restored by RestoreAfterAttention.
	stashedErrors   []Info
	stashedWarnings []Info
	attentionActive bool

	activationCount int
	owner           weak.Pointer[Owner]

	// untrackedResults counts result sets that were still open when their
	// owning transaction zombied, transferred here for later cleanup by
	// whatever drains the read pipeline next (spec.md §4.8).
	untrackedResults int

	sessionID string
	sink      diagnostics.Sink
}

// New creates a session bound to the given SPID.
func New(spid uint16) *Session {
	return &Session{SPID: spid, sink: diagnostics.NoopSink{}}
}

// SetDiagnostics attaches a diagnostics sink and the session identity
// SessionBroken events should be reported under (spec.md §6).
func (s *Session) SetDiagnostics(sessionID string, sink diagnostics.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	if sink != nil {
		s.sink = sink
	}
}

func (s *Session) diagnosticsSink() diagnostics.Sink {
	if s.sink == nil {
		return diagnostics.NoopSink{}
	}
	return s.sink
}

// Diagnostics returns the session identity and sink set by
// SetDiagnostics, for collaborators (e.g. the transaction registry) that
// need to emit their own events under the same session identity.
func (s *Session) Diagnostics() (string, diagnostics.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.diagnosticsSink()
}

// AddError records a server error. Adding an error flips the session to
// synchronous mode for the remainder of the current operation (spec.md
// §4.7): once a warning or error has been seen, subsequent reads on this
// operation must go through the blocking sync-over-async path rather
// than true async completions.
func (s *Session) AddError(info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, info)
	s.syncMode = true
}

// AddWarning records a server informational message. Like AddError,
// it forces synchronous mode.
func (s *Session) AddWarning(info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, info)
	s.syncMode = true
}

// SyncMode reports whether a warning or error has forced this operation
// onto the synchronous read path.
func (s *Session) SyncMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncMode
}

// ResetSyncMode clears sync mode at the start of a new operation.
func (s *Session) ResetSyncMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncMode = false
}

// MarkBroken marks the session unusable. It will never be returned to
// a connection pool.
func (s *Session) MarkBroken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	s.broken = true
	s.diagnosticsSink().SessionBroken(s.sessionID)
}

// Broken reports whether the session has been marked unusable.
func (s *Session) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// AddUntrackedResults folds n result sets that were still counted open
// on a transaction at the moment it zombied into the session-wide
// non-transacted counter, so they are still drained rather than leaked
// (spec.md §4.8: "any counted-but-not-closed results are transferred to
// the session-wide non-transacted counter for later cleanup").
func (s *Session) AddUntrackedResults(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.untrackedResults += n
}

// UntrackedResults returns the count of result sets transferred by
// AddUntrackedResults and resets it to zero.
func (s *Session) UntrackedResults() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.untrackedResults
	s.untrackedResults = 0
	return n
}

// GetFullAndClear returns every error recorded so far along with the
// broken bit, then clears the error collection (warnings are left for a
// separate query since most callers only care about errors on the hot
// path).
func (s *Session) GetFullAndClear() ([]Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := s.errors
	s.errors = nil
	return errs, s.broken
}

// Warnings returns every warning recorded so far and clears the
// collection.
func (s *Session) Warnings() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.warnings
	s.warnings = nil
	return w
}

// StoreForAttention moves the current error/warning collections aside
// while an attention round-trip is outstanding, so that any error
// raised by the attention exchange itself (e.g. a benign "operation
// cancelled" the server reports) does not mask the original failure
// that triggered the timeout (spec.md §4.7).
func (s *Session) StoreForAttention() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attentionActive {
		return
	}
	s.stashedErrors = s.errors
	s.stashedWarnings = s.warnings
	s.errors = nil
	s.warnings = nil
	s.attentionActive = true
}

// RestoreAfterAttention re-merges the stashed collections in front of
// whatever the attention exchange itself produced, preserving original
// failure order.
func (s *Session) RestoreAfterAttention() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attentionActive {
		return
	}
	s.errors = append(s.stashedErrors, s.errors...)
	s.warnings = append(s.stashedWarnings, s.warnings...)
	s.stashedErrors = nil
	s.stashedWarnings = nil
	s.attentionActive = false
}

// Activate records that owner has checked this pooled session out.
// Each Activate must be paired with exactly one Deactivate.
func (s *Session) Activate(owner *Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activationCount++
	s.owner = weak.Make(owner)
}

// Deactivate records that the session has been returned to the pool
// cleanly through the normal path (not reclaimed as an orphan).
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activationCount > 0 {
		s.activationCount--
	}
}

// Orphaned reports whether this session is checked out (activationCount
// > 0) but its owner has been garbage collected without returning it —
// the condition spec.md §4.7 defines as `activation_count > 0 ∧
// weak_owner.dead`.
func (s *Session) Orphaned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activationCount <= 0 {
		return false
	}
	return s.owner.Value() == nil
}

// Reclaim is called by the pool's reclamation pass once Orphaned
// reports true: it resets activation bookkeeping so the session can be
// handed to a new owner. The caller is responsible for draining any
// pending data on the read pipeline first.
func (s *Session) Reclaim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activationCount = 0
	s.owner = weak.Pointer[Owner]{}
}
