package read

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gotds/tds/internal/tds/packet"
	"github.com/gotds/tds/internal/tds/snapshot"
)

// ErrCorruptedTdsStream is this package's own corrupted-stream sentinel.
// It is a separate value from packet.ErrCorruptedTdsStream (errors.Is
// does not match one against the other), so a read-pipeline-specific
// failure (e.g. a PLP chunk exceeding its declared total) can be
// distinguished upstream.
var ErrCorruptedTdsStream = errors.New("tds: corrupted stream")

// Reader produces primitive values from a session's input buffer. It is
// single-threaded by construction (spec.md §5: "at most one consumer
// parses response bytes at any time").
type Reader struct {
	buf       *packet.InputBuffer
	snap      *snapshot.Snapshot
	replaying bool

	// in-progress straddling read, re-entered on resume
	pendingActive  bool
	pendingScratch []byte
	pendingWant    int

	plp plpState
}

// NewReader constructs a Reader over buf. buf is owned by the session;
// the Reader never allocates or releases it.
func NewReader(buf *packet.InputBuffer) *Reader {
	return &Reader{buf: buf}
}

// BeginSnapshot opens a new replay window, capturing the current parser
// position. Every packet fed to the reader from this point on is also
// recorded for replay (spec.md §4.4).
func (r *Reader) BeginSnapshot() *snapshot.Snapshot {
	f := snapshot.Fields{
		BytesUsed:     r.buf.BytesUsed(),
		BytesInPacket: r.buf.BytesInPacket(),
		LongLen:       r.plp.longLen,
		LongLenLeft:   r.plp.longLenLeft,
		PLPUnknown:    r.plp.unknown,
		PLPActive:     r.plp.active,
	}
	r.snap = snapshot.New(f)
	return r.snap
}

// DiscardSnapshot ends the replay window without restoring anything;
// used once the high-level operation commits its progress.
func (r *Reader) DiscardSnapshot() {
	r.snap = nil
	r.replaying = false
}

// BeginReplay restores the parser fields captured at snapshot time and
// switches the reader into buffered-replay mode (full restart, per
// spec.md §4.4). Subsequent reads are satisfied from already-captured
// packets before the live buffer is touched again.
func (r *Reader) BeginReplay() {
	if r.snap == nil {
		return
	}
	f := r.snap.Restore()
	r.buf.SetBytesInPacket(f.BytesInPacket)
	r.plp.longLen = f.LongLen
	r.plp.longLenLeft = f.LongLenLeft
	r.plp.unknown = f.PLPUnknown
	r.plp.active = f.PLPActive
	r.replaying = r.snap.HasBuffered()
}

// FeedPacket supplies a freshly received, transport-validated packet
// payload into the live buffer. Must only be called for genuinely new
// data (never during replay — replay pulls from the snapshot instead).
func (r *Reader) FeedPacket(payload []byte, bytesInPacket int) {
	r.buf.Fill(payload)
	r.buf.SetBytesInPacket(bytesInPacket)
	if r.snap != nil {
		r.snap.RecordPacket(payload)
	}
}

// fillFromReplay attempts to pull the next buffered packet out of the
// active snapshot. Returns false when the caller must supply live data
// instead (replay exhausted or no snapshot active).
func (r *Reader) fillFromReplay() bool {
	if !r.replaying || r.snap == nil {
		return false
	}
	pkt, ok := r.snap.ReplayNext()
	if !ok {
		r.replaying = false
		return false
	}
	r.buf.Fill(pkt)
	return true
}

// readExact assembles exactly n bytes, straddling packet and suspension
// boundaries transparently via a scratch buffer (spec.md §4.3).
func (r *Reader) readExact(n int) Result[[]byte] {
	if !r.pendingActive {
		if r.buf.Remaining() >= n {
			out := append([]byte(nil), r.buf.Peek()[:n]...)
			r.buf.Consume(n)
			return Done(out)
		}
		avail := r.buf.Remaining()
		r.pendingScratch = append([]byte(nil), r.buf.Peek()[:avail]...)
		r.buf.Consume(avail)
		r.pendingWant = n - avail
		r.pendingActive = true
	}
	return r.continueExact()
}

func (r *Reader) continueExact() Result[[]byte] {
	for r.pendingWant > 0 {
		if r.buf.Remaining() == 0 {
			if !r.fillFromReplay() {
				return Suspend[[]byte]()
			}
			continue
		}
		take := r.pendingWant
		if avail := r.buf.Remaining(); avail < take {
			take = avail
		}
		r.pendingScratch = append(r.pendingScratch, r.buf.Peek()[:take]...)
		r.buf.Consume(take)
		r.pendingWant -= take
	}
	out := r.pendingScratch
	r.pendingScratch = nil
	r.pendingActive = false
	return Done(out)
}

// TryReadByte reads a single byte.
func (r *Reader) TryReadByte() Result[byte] {
	res := r.readExact(1)
	switch res.Outcome {
	case Completed:
		return Done(res.Value[0])
	case Suspended:
		return Suspend[byte]()
	default:
		return Fail[byte](res.Err)
	}
}

// TryReadBytes copies exactly len(dest) bytes into dest. dest == nil
// means "skip": the bytes are consumed but not retained, matching
// spec.md §4.3's skip contract for columns the caller doesn't need.
func (r *Reader) TryReadBytes(dest []byte, n int) Result[int] {
	res := r.readExact(n)
	switch res.Outcome {
	case Completed:
		if dest != nil {
			copy(dest, res.Value)
		}
		return Done(n)
	case Suspended:
		return Suspend[int]()
	default:
		return Fail[int](res.Err)
	}
}

func readFixed[T any](r *Reader, width int, decode func([]byte) T) Result[T] {
	res := r.readExact(width)
	switch res.Outcome {
	case Completed:
		return Done(decode(res.Value))
	case Suspended:
		return Suspend[T]()
	default:
		return Fail[T](res.Err)
	}
}

// TryReadU16 reads a little-endian uint16.
func (r *Reader) TryReadU16() Result[uint16] {
	return readFixed(r, 2, binary.LittleEndian.Uint16)
}

// TryReadI16 reads a little-endian int16.
func (r *Reader) TryReadI16() Result[int16] {
	return readFixed(r, 2, func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) })
}

// TryReadU32 reads a little-endian uint32.
func (r *Reader) TryReadU32() Result[uint32] {
	return readFixed(r, 4, binary.LittleEndian.Uint32)
}

// TryReadI32 reads a little-endian int32.
func (r *Reader) TryReadI32() Result[int32] {
	return readFixed(r, 4, func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) })
}

// TryReadU64 reads a little-endian uint64.
func (r *Reader) TryReadU64() Result[uint64] {
	return readFixed(r, 8, binary.LittleEndian.Uint64)
}

// TryReadI64 reads a little-endian int64.
func (r *Reader) TryReadI64() Result[int64] {
	return readFixed(r, 8, func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) })
}

// TryReadF32 reads a little-endian IEEE-754 float32.
func (r *Reader) TryReadF32() Result[float32] {
	return readFixed(r, 4, func(b []byte) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	})
}

// TryReadF64 reads a little-endian IEEE-754 float64.
func (r *Reader) TryReadF64() Result[float64] {
	return readFixed(r, 8, func(b []byte) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	})
}
