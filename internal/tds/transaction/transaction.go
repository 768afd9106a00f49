// Package transaction implements the transaction handle and internal
// transaction state machine (C8): the API surface callers use to
// commit/rollback/save, and the internal object that tracks server
// acknowledgement via env-change tokens.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"weak"

	"github.com/gotds/tds/internal/tds/session"
	"github.com/gotds/tds/internal/tds/transport"
)

var (
	// ErrTransactionZombied is returned by any operation on a handle
	// whose internal transaction has already terminated.
	ErrTransactionZombied = errors.New("tds: transaction zombied")
	// ErrNullEmptyTransactionName guards rollback(name)/save(name).
	ErrNullEmptyTransactionName = errors.New("tds: transaction name must not be empty")
	// ErrOpenResultCountExceeded is raised when the open-result counter
	// would go negative (spec.md §4.8).
	ErrOpenResultCountExceeded = errors.New("tds: open result count exceeded")
)

// State is the internal transaction's lifecycle state.
type State int

const (
	Pending State = iota
	Active
	Committed
	Aborted
	Unknown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// SNIWaitTimeout is the inner native error code spec.md §4.8 requires a
// commit wait-timeout to be wrapped in.
const SNIWaitTimeout = 0x102

// Emitter sends the wire requests a transaction operation produces. A
// real session wires this to its write pipeline, framing a
// TRANSACTION_MANAGER RPC of the given subtype (MS-TDS 2.2.7.17).
type Emitter interface {
	BeginTran(ctx context.Context) error
	CommitTran(ctx context.Context) error
	IfRollback(ctx context.Context) error
	Rollback(ctx context.Context, name string) error
	Save(ctx context.Context, name string) error
}

// Internal is the internal transaction object: the thing the session's
// transaction registry actually owns. The API Handle holds a strong
// reference to it; it holds only a weak reference back to the Handle
// (spec.md §4.8/§8 "weak back-references"), so the Handle can be
// garbage collected without the internal transaction's lifetime being
// tied to it.
type Internal struct {
	mu sync.Mutex

	state   State
	isYukon bool // Yukon (SQL Server 2005) or later: commit awaits env-change

	sess    *session.Session
	detach  func() // notifies the session's transaction registry to forget this transaction

	handle weak.Pointer[Handle]

	partialZombie bool
	openResults   int

	pendingCommit chan struct{} // closed once the awaited env-change arrives
}

// NewInternal creates an internal transaction bound to sess. isYukon
// selects whether commit must await the server's env-change
// acknowledgement (Yukon+) or zombies immediately (pre-Yukon, spec.md
// §4.8). detach is called once the transaction is fully terminated so
// the session can forget it.
func NewInternal(sess *session.Session, isYukon bool, detach func()) *Internal {
	return &Internal{
		state:   Pending,
		isYukon: isYukon,
		sess:    sess,
		detach:  detach,
	}
}

// Activate transitions Pending -> Active once the BEGIN TRAN request has
// been sent.
func (it *Internal) Activate() {
	it.mu.Lock()
	if it.state != Pending {
		it.mu.Unlock()
		return
	}
	it.state = Active
	sess := it.sess
	it.mu.Unlock()

	if sess != nil {
		sessionID, sink := sess.Diagnostics()
		sink.TransactionOpened(sessionID)
	}
}

// State returns the current state.
func (it *Internal) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// IncrementOpenResults records that a result set was opened under this
// transaction.
func (it *Internal) IncrementOpenResults() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.openResults++
}

// DecrementOpenResults records that a result set was closed. Going
// negative is a protocol violation.
func (it *Internal) DecrementOpenResults() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.openResults--
	if it.openResults < 0 {
		it.openResults = 0
		return ErrOpenResultCountExceeded
	}
	return nil
}

// TransferOpenResults returns the count of results still open right
// now and resets it to zero. finishZombieLocked performs the
// equivalent transfer itself (it already holds it.mu, which this
// method also locks); this is the standalone accessor for callers
// outside the zombie path.
func (it *Internal) TransferOpenResults() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := it.openResults
	it.openResults = 0
	return n
}

// beginCommitWaitLocked begins the partial-zombie window: the Handle
// already reports is_zombied=true to outer callers, but the internal
// transaction retains its session reference until the server's
// env-change token finalizes it.
func (it *Internal) beginCommitWaitLocked() {
	it.partialZombie = true
	it.pendingCommit = make(chan struct{})
}

// HandleEnvChange is called by the token-parser collaborator once it
// observes a transaction-related env-change token on the wire. envType
// is one of packet.EnvTypCommitTran / EnvTypRollbackTran / EnvTypBeginTran.
func (it *Internal) HandleEnvChange(envType byte, commitEnv, rollbackEnv byte) {
	it.mu.Lock()
	defer it.mu.Unlock()

	switch envType {
	case commitEnv:
		it.state = Committed
	case rollbackEnv:
		it.state = Aborted
	default:
		return
	}

	it.finishZombieLocked()
	if it.pendingCommit != nil {
		close(it.pendingCommit)
		it.pendingCommit = nil
	}
}

// WaitForCommitEnvChange blocks until the server's commit/rollback
// env-change arrives or ctx is done. On timeout, markAborted is invoked
// and the returned error wraps transport.ErrWaitTimeout with
// SNIWaitTimeout (spec.md §4.8: the connection must not be returned to
// the pool after this).
func (it *Internal) WaitForCommitEnvChange(ctx context.Context, markAborted func()) error {
	it.mu.Lock()
	ch := it.pendingCommit
	it.mu.Unlock()
	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		markAborted()
		return fmt.Errorf("tds: commit wait timed out (native code 0x%X): %w", SNIWaitTimeout, transport.ErrWaitTimeout)
	}
}

// AwaitCommit blocks on WaitForCommitEnvChange for the partial-zombie
// window Commit opened on a Yukon+ server. On timeout it marks the
// owning session broken so the connection is never returned to a pool
// (spec.md §4.8).
func (it *Internal) AwaitCommit(ctx context.Context) error {
	it.mu.Lock()
	sess := it.sess
	it.mu.Unlock()
	return it.WaitForCommitEnvChange(ctx, func() {
		if sess != nil {
			sess.MarkBroken()
		}
	})
}

// finishZombieLocked severs the handle's link and detaches from the
// session's transaction registry (spec.md §4.8 "zombie" procedure).
// Caller holds it.mu.
func (it *Internal) finishZombieLocked() {
	if h := it.handle.Value(); h != nil {
		h.mu.Lock()
		h.zombied = true
		h.internal = nil
		h.mu.Unlock()
	}
	if it.sess != nil {
		it.sess.AddUntrackedResults(it.openResults)
		sessionID, sink := it.sess.Diagnostics()
		sink.TransactionClosed(sessionID)
	}
	it.openResults = 0
	it.sess = nil
	if it.detach != nil {
		it.detach()
		it.detach = nil
	}
	it.partialZombie = false
}

// Handle is the API surface exposed to callers: commit, rollback,
// rollback(name), save(name), dispose.
type Handle struct {
	mu       sync.Mutex
	internal *Internal
	zombied  bool
	emitter  Emitter
}

// NewHandle creates an API handle wrapping internal, and wires the
// internal transaction's weak back-reference to it.
func NewHandle(internal *Internal, emitter Emitter) *Handle {
	h := &Handle{internal: internal, emitter: emitter}
	internal.mu.Lock()
	internal.handle = weak.Make(h)
	internal.mu.Unlock()
	return h
}

// IsZombied reports whether this handle can no longer be used. During
// the partial-zombie commit window this is already true even though
// the internal transaction has not yet fully terminated.
func (h *Handle) IsZombied() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zombied
}

// Commit emits COMMIT TRAN. On a pre-Yukon server (isYukon false) the
// handle and the internal transaction zombie immediately; otherwise it
// enters the partial-zombie window and the caller must separately call
// AwaitCommit to wait for the server's env-change acknowledgement. The
// isYukon flag is the only thing that selects the immediate path.
func (h *Handle) Commit(ctx context.Context) error {
	h.mu.Lock()
	if h.zombied {
		h.mu.Unlock()
		return ErrTransactionZombied
	}
	it := h.internal
	h.mu.Unlock()

	if err := h.emitter.CommitTran(ctx); err != nil {
		return err
	}

	it.mu.Lock()
	yukon := it.isYukon
	if yukon {
		it.beginCommitWaitLocked()
	}
	it.mu.Unlock()

	h.mu.Lock()
	h.zombied = true
	h.mu.Unlock()

	if !yukon {
		it.mu.Lock()
		it.state = Committed
		it.finishZombieLocked()
		it.mu.Unlock()
	}
	return nil
}

// AwaitCommit waits for the server's commit env-change after a Yukon+
// Commit, marking the session broken if the wait times out. It is a
// no-op if the handle never entered the partial-zombie commit window.
func (h *Handle) AwaitCommit(ctx context.Context) error {
	h.mu.Lock()
	it := h.internal
	h.mu.Unlock()
	if it == nil {
		return nil
	}
	return it.AwaitCommit(ctx)
}

// Rollback emits IF ROLLBACK TRAN and zombies. Per spec.md §4.8 it is
// the only operation permitted during the partial-zombie commit window
// (RollbackNamed and Save return ErrTransactionZombied there): observing
// partial_zombie silently clears the reference instead of raising
// ErrTransactionZombied.
func (h *Handle) Rollback(ctx context.Context) error {
	h.mu.Lock()
	it := h.internal
	alreadyZombied := h.zombied
	h.mu.Unlock()

	if alreadyZombied {
		if it != nil {
			it.mu.Lock()
			partial := it.partialZombie
			if partial {
				it.state = Aborted
				it.finishZombieLocked()
			}
			it.mu.Unlock()
			if partial {
				return nil
			}
		}
		return ErrTransactionZombied
	}

	if err := h.emitter.IfRollback(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.zombied = true
	h.mu.Unlock()

	it.mu.Lock()
	it.state = Aborted
	it.finishZombieLocked()
	it.mu.Unlock()
	return nil
}

// RollbackNamed emits ROLLBACK TRAN <name> (a savepoint rollback).
func (h *Handle) RollbackNamed(ctx context.Context, name string) error {
	if name == "" {
		return ErrNullEmptyTransactionName
	}
	h.mu.Lock()
	if h.zombied {
		h.mu.Unlock()
		return ErrTransactionZombied
	}
	h.mu.Unlock()

	return h.emitter.Rollback(ctx, name)
}

// Save emits SAVE TRAN <name>.
func (h *Handle) Save(ctx context.Context, name string) error {
	if name == "" {
		return ErrNullEmptyTransactionName
	}
	h.mu.Lock()
	if h.zombied {
		h.mu.Unlock()
		return ErrTransactionZombied
	}
	h.mu.Unlock()

	return h.emitter.Save(ctx, name)
}

// Dispose implicitly rolls back if the transaction is still active,
// swallowing any error the rollback attempt raises (spec.md §4.8).
func (h *Handle) Dispose(ctx context.Context) {
	h.mu.Lock()
	zombied := h.zombied
	h.mu.Unlock()
	if zombied {
		return
	}
	_ = h.Rollback(ctx)
}
