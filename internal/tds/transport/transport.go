// Package transport implements the framed transport adapter (C1): the
// only component that talks to the operating system's networking
// primitives. Everything above it — packet buffers, the read pipeline,
// the write pipeline — is pure state manipulation over the packets this
// package hands back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotds/tds/internal/logger"
	"github.com/gotds/tds/internal/tds/diagnostics"
	"github.com/gotds/tds/internal/tds/packet"
)

var (
	// ErrTransportClosed is returned by any operation attempted after
	// Close has been called.
	ErrTransportClosed = errors.New("tds: transport closed")
	// ErrWaitTimeout classifies an I/O error as the SNI-style
	// wait-timeout condition spec.md §4.8/§7 treats as recoverable via
	// the attention dance rather than immediately fatal.
	ErrWaitTimeout = errors.New("tds: wait timeout")
)

// Packet is a fully decoded wire packet: header plus its payload bytes.
// The transport owns the payload's backing array; callers must copy out
// anything they need to retain past the next read (spec.md §4.1 "the
// adapter OWNS the packet buffer it delivers").
type Packet struct {
	Header  packet.Header
	Payload []byte
}

// CompletionFunc receives the result of an asynchronous read. key
// identifies which outstanding read this completion belongs to — spec.md
// §4.1 requires async completions be delivered "via a single callback
// that carries (key, packet, error_code)".
type CompletionFunc func(key int64, pkt Packet, err error)

// Transport owns a single byte-stream connection to a TDS server and
// exposes sync-read, async-read, write, and cancellation. It never
// interprets packet contents beyond the 8-byte header.
type Transport struct {
	conn net.Conn

	writeMu sync.Mutex // serializes writes for the duration of one message

	closed atomic.Bool
	alive  atomic.Bool

	asyncOnce sync.Once
	async     *asyncReader

	nextKey atomic.Int64

	sessionID string
	sink      diagnostics.Sink
}

// SetDiagnostics attaches a diagnostics sink and the session identity
// PacketSent/PacketReceived events should be reported under (spec.md
// §6: "the core calls into the sink"). A Transport with no sink set
// reports to diagnostics.NoopSink.
func (t *Transport) SetDiagnostics(sessionID string, sink diagnostics.Sink) {
	t.sessionID = sessionID
	t.sink = sink
}

func (t *Transport) diagnosticsSink() diagnostics.Sink {
	if t.sink == nil {
		return diagnostics.NoopSink{}
	}
	return t.sink
}

// Open dials a TDS server address over TCP. It takes no SPN: resolving
// and embedding an SPN into a Kerberos login blob is the auth
// collaborator's job (internal/tds/auth/kerberos), not the transport's.
func Open(ctx context.Context, addr string, dialTimeout time.Duration) (*Transport, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tds: dial %s: %w", addr, err)
	}
	t := &Transport{conn: conn}
	t.alive.Store(true)
	return t, nil
}

// NewFromConn wraps an already-established connection (used by tests and
// by collaborators that perform their own TLS handshake before handing
// the transport off).
func NewFromConn(conn net.Conn) *Transport {
	t := &Transport{conn: conn}
	t.alive.Store(true)
	return t
}

// ReadSync blocks until a full packet (header + payload) has been read,
// the deadline elapses, or the context is cancelled. timeoutMs <= 0
// means infinite, matching C5's `set_timeout` semantics.
func (t *Transport) ReadSync(ctx context.Context, timeoutMs int) (Packet, error) {
	if t.closed.Load() {
		return Packet{}, ErrTransportClosed
	}

	deadline, hasDeadline := ctx.Deadline()
	if timeoutMs > 0 {
		d := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
		if !hasDeadline || d.Before(deadline) {
			deadline = d
			hasDeadline = true
		}
	}
	if hasDeadline {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return Packet{}, err
		}
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	var hdrBuf [packet.HeaderSize]byte
	if _, err := io.ReadFull(t.conn, hdrBuf[:]); err != nil {
		return Packet{}, t.classify(err)
	}

	h, err := packet.ParseHeader(hdrBuf[:])
	if err != nil {
		t.markBroken()
		return Packet{}, err
	}

	payloadLen, err := h.PayloadLen()
	if err != nil {
		t.markBroken()
		return Packet{}, err
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(t.conn, payload); err != nil {
			return Packet{}, t.classify(err)
		}
	}

	t.diagnosticsSink().PacketReceived(t.sessionID, packet.HeaderSize+int(payloadLen))
	return Packet{Header: h, Payload: payload}, nil
}

// classify maps a net.Conn error into the wait-timeout vs. fatal
// distinction spec.md §7 requires of the I/O error kind.
func (t *Transport) classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrWaitTimeout, err)
	}
	t.markBroken()
	return err
}

func (t *Transport) markBroken() {
	t.alive.Store(false)
}

// WriteMode selects the flush behavior C6 requests (spec.md §4.6).
type WriteMode int

const (
	// WriteSync blocks until the write completes.
	WriteSync WriteMode = iota
	// WriteAsync returns WritePending immediately and writes on a
	// separate goroutine; the transport reports no completion to the
	// caller (a failed write marks the transport broken and is logged).
	WriteAsync
)

// WriteStatus is the three-way result C6 expects from a write attempt.
type WriteStatus int

const (
	WriteOK WriteStatus = iota
	WritePending
	WriteFailed
)

// Write sends a fully framed packet (header already stamped by the
// caller via packet.OutputBuffer.StampHeader). The writer lock must be
// held by the caller for the duration of a multi-packet message
// (spec.md §5); Write itself only serializes individual calls.
func (t *Transport) Write(ctx context.Context, wire []byte, mode WriteMode) (WriteStatus, error) {
	if t.closed.Load() {
		return WriteFailed, ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}

	if mode == WriteAsync {
		go func() {
			if _, err := t.conn.Write(wire); err != nil {
				t.markBroken()
				logger.WarnCtx(ctx, "async write failed", logger.Err(err))
				return
			}
			t.diagnosticsSink().PacketSent(t.sessionID, len(wire))
		}()
		return WritePending, nil
	}

	if _, err := t.conn.Write(wire); err != nil {
		t.markBroken()
		return WriteFailed, err
	}
	t.diagnosticsSink().PacketSent(t.sessionID, len(wire))
	return WriteOK, nil
}

// CancelOutstanding aborts any blocking read in progress by forcing the
// connection's read deadline into the past. It is idempotent and safe
// to call from a different goroutine than the one blocked in ReadSync,
// matching spec.md §4.5's cancellation-from-a-user-thread contract.
func (t *Transport) CancelOutstanding() {
	if t.closed.Load() {
		return
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(-time.Second))
}

// CheckAlive reports whether the transport believes the underlying
// connection is still usable. It does not perform a network probe —
// only surfaces whether a prior read/write already observed a fatal
// error.
func (t *Transport) CheckAlive() bool {
	return t.alive.Load() && !t.closed.Load()
}

// Close releases the underlying connection. Safe to call multiple
// times.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.alive.Store(false)
	if t.async != nil {
		t.async.stop()
	}
	return t.conn.Close()
}

// Async lazily starts the background read pump and returns a handle for
// issuing async reads. Kept separate from ReadSync because most of a
// session's reads are sync-over-async in practice (spec.md §4.3); the
// pump is only paid for by sessions that actually use it.
func (t *Transport) Async() *asyncReader {
	t.asyncOnce.Do(func() {
		t.async = newAsyncReader(t)
	})
	return t.async
}
