// Package write implements the write pipeline (C6): packet staging,
// soft/hard flush, cancellation-aware message abort, outstanding-async-write
// accounting, and secure-secret materialization into the pinned outbound
// buffer.
package write

import (
	"context"
	"errors"
	"sync"

	"github.com/gotds/tds/internal/tds/packet"
	"github.com/gotds/tds/internal/tds/transport"
)

var (
	// ErrOperationCancelled is raised when a message is discarded because
	// it was cancelled before any packet had been sent for it.
	ErrOperationCancelled = errors.New("tds: operation cancelled")
	// ErrTooManySecrets is raised by StageSecret once two secrets are
	// already pinned for the current message (spec.md §4.6: login
	// password + change-password is the only legitimate case of two).
	ErrTooManySecrets = errors.New("tds: too many secrets in flight")
)

// Mode selects flush behavior.
type Mode int

const (
	// Soft flushes with status=BATCH and bumps the packet number: more
	// packets are coming for this logical message.
	Soft Mode = iota
	// Hard flushes with status=EOM and resets the packet number to 1:
	// this is the last packet of the message.
	Hard
)

// AttentionSender lets the writer emit the out-of-band attention packet
// without owning the timeout supervisor directly.
type AttentionSender func(ctx context.Context) error

// secret is a pinned plaintext materializer staged for the current
// message: its bytes are copied into the output buffer's backing array
// immediately before the packet is handed to the transport, never held
// in an intermediate moveable allocation.
type secret struct {
	offset     int
	materialize func(dst []byte)
}

// Writer is the per-session write pipeline. It is not safe for
// concurrent use by more than one message at a time; spec.md §5's writer
// lock is the caller's responsibility to hold for the duration of one
// logical message.
type Writer struct {
	buf *packet.OutputBuffer
	t   *transport.Transport

	msgType     byte
	channel     uint16
	packetNo    uint8
	firstSent   bool
	cancelled   bool
	sendAttn    AttentionSender

	secrets []secret

	mu           sync.Mutex
	cond         *sync.Cond
	outstanding  int64
	stashedErr   error
}

// New creates a writer over buf, writing message type msgType on
// channel (the MARS/SPID channel id). sendAttn is invoked if a
// cancellation arrives after the first packet of a message has already
// gone out.
func New(buf *packet.OutputBuffer, t *transport.Transport, msgType byte, channel uint16, sendAttn AttentionSender) *Writer {
	w := &Writer{
		buf:      buf,
		t:        t,
		msgType:  msgType,
		channel:  channel,
		packetNo: 1,
		sendAttn: sendAttn,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// BeginMessage resets per-message state (packet number back to 1, no
// packets sent yet, no secrets staged). Call once before writing a new
// logical message.
func (w *Writer) BeginMessage() {
	w.packetNo = 1
	w.firstSent = false
	w.cancelled = false
	w.secrets = w.secrets[:0]
	w.buf.Reset()
}

// WriteByte stages a single byte, flushing soft automatically if the
// current packet is full.
func (w *Writer) WriteByte(ctx context.Context, b byte) error {
	return w.WriteBytes(ctx, []byte{b})
}

// WriteBytes stages src, splitting across as many soft-flushed packets
// as needed when it doesn't fit in the remaining capacity of the
// current packet.
func (w *Writer) WriteBytes(ctx context.Context, src []byte) error {
	for len(src) > 0 {
		n := w.buf.Write(src)
		src = src[n:]
		if len(src) > 0 {
			if _, err := w.Flush(ctx, Soft); err != nil {
				return err
			}
		}
	}
	return nil
}

// StageSecret records a secure secret to be materialized at offset just
// before the packet containing it is flushed. At most two may be
// staged per message.
func (w *Writer) StageSecret(offset int, materialize func(dst []byte)) error {
	if len(w.secrets) >= 2 {
		return ErrTooManySecrets
	}
	w.secrets = append(w.secrets, secret{offset: offset, materialize: materialize})
	return nil
}

// Flush stamps the header over the staged payload and hands the packet
// to the transport. mode selects soft (BATCH, bump packet number) or
// hard (EOM, reset packet number to 1, spec.md §4.6).
func (w *Writer) Flush(ctx context.Context, mode Mode) (transport.WriteStatus, error) {
	if w.cancelled && !w.firstSent {
		w.buf.Reset()
		return transport.WriteFailed, ErrOperationCancelled
	}

	status := byte(0)
	switch mode {
	case Soft:
		status = packet.StatusBatch
	case Hard:
		status = packet.StatusEOM
	}
	if w.cancelled && w.firstSent {
		status = packet.StatusEOM | packet.StatusIgnore
	}

	w.materializeSecrets()

	h := packet.Header{
		Type:         w.msgType,
		Status:       status,
		Length:       uint16(packet.HeaderSize + w.buf.BytesUsed()),
		Channel:      w.channel,
		PacketNumber: w.packetNo,
	}
	wire := w.buf.StampHeader(h)

	writeMode := transport.WriteSync
	st, err := w.t.Write(ctx, wire, writeMode)
	w.firstSent = true
	w.buf.Reset()
	w.secrets = w.secrets[:0]

	if mode == Hard {
		w.packetNo = 1
	} else {
		w.packetNo = packet.NextPacketNumber(w.packetNo)
	}

	if w.cancelled && status&packet.StatusIgnore != 0 {
		if w.sendAttn != nil {
			_ = w.sendAttn(ctx)
		}
		if err == nil {
			err = ErrOperationCancelled
		}
	}

	return st, err
}

func (w *Writer) materializeSecrets() {
	for _, s := range w.secrets {
		s.materialize(w.buf.PayloadBytesAt(s.offset))
	}
}

// Cancel marks the current message cancelled. If no packet has been
// sent yet, the next Flush discards the buffer and returns
// ErrOperationCancelled. If a packet has already gone out, the next
// Flush instead emits a final EOM|IGNORE packet and sends attention.
func (w *Writer) Cancel() {
	w.cancelled = true
}

// WriteAsync issues an asynchronous write and increments the
// outstanding-write counter. Unless the transport returns WritePending,
// the counter is decremented at once via CompleteAsync; for a pending
// write the transport reports no completion, so the counter stays
// raised until the caller itself calls CompleteAsync.
func (w *Writer) WriteAsync(ctx context.Context, wire []byte) (transport.WriteStatus, error) {
	w.mu.Lock()
	w.outstanding++
	w.mu.Unlock()

	st, err := w.t.Write(ctx, wire, transport.WriteAsync)
	if st != transport.WritePending {
		w.CompleteAsync(err)
	}
	return st, err
}

// CompleteAsync is the completion callback for one outstanding async
// write. If an error arrives and no waiter is registered yet, it is
// stashed and surfaced to the next WaitForAccumulatedWrites call or
// synchronous write (spec.md §4.6).
func (w *Writer) CompleteAsync(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outstanding--
	if err != nil && w.stashedErr == nil {
		w.stashedErr = err
	}
	if w.outstanding <= 0 {
		w.cond.Broadcast()
	}
}

// WaitForAccumulatedWrites blocks until the outstanding-write counter
// reaches zero or ctx is done, returning any stashed error recorded by a
// completion that arrived before a waiter was registered.
func (w *Writer) WaitForAccumulatedWrites(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.mu.Lock()
		for w.outstanding > 0 {
			w.cond.Wait()
		}
		w.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		w.mu.Lock()
		err := w.stashedErr
		w.stashedErr = nil
		w.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeStashedError returns and clears any stashed async-write error
// without waiting, for a synchronous write that wants to surface it
// immediately (spec.md §4.6).
func (w *Writer) TakeStashedError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.stashedErr
	w.stashedErr = nil
	return err
}
