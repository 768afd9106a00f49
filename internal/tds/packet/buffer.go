package packet

import (
	"errors"

	"github.com/gotds/tds/internal/tds/bufpool"
)

// ErrBufferBusy is returned by Resize when bytes are still outstanding;
// per spec.md §5, buffers may only be resized when both input and output
// are empty.
var ErrBufferBusy = errors.New("tds: buffer resize requires empty buffer")

// InputBuffer is the session's paired read-side buffer. It tracks three
// cursors into the same backing array: bytes consumed by the parser
// (bytesUsed), bytes filled from the transport (bytesRead), and the
// number of payload bytes remaining in the TDS packet currently being
// decoded (bytesInPacket).
type InputBuffer struct {
	data          []byte
	size          int
	bytesUsed     int
	bytesRead     int
	bytesInPacket int
}

// NewInputBuffer allocates an input buffer of the given size from the
// shared buffer pool.
func NewInputBuffer(size int) *InputBuffer {
	return &InputBuffer{data: bufpool.Get(size), size: size}
}

// Release returns the backing array to the buffer pool. Only safe to
// call once both bytesUsed == bytesRead (nothing pending).
func (b *InputBuffer) Release() {
	if b.data == nil {
		return
	}
	bufpool.Put(b.data)
	b.data = nil
}

// Size returns the configured buffer size.
func (b *InputBuffer) Size() int { return b.size }

// BytesUsed returns the parser's consumption cursor.
func (b *InputBuffer) BytesUsed() int { return b.bytesUsed }

// BytesRead returns how many bytes have been filled from the transport.
func (b *InputBuffer) BytesRead() int { return b.bytesRead }

// BytesInPacket returns the remaining payload bytes in the current
// packet (set by the header codec after each header decode).
func (b *InputBuffer) BytesInPacket() int { return b.bytesInPacket }

// SetBytesInPacket records the payload length of a freshly decoded
// header. Must satisfy bytesInPacket >= 0 (spec.md §4.2).
func (b *InputBuffer) SetBytesInPacket(n int) {
	b.bytesInPacket = n
}

// Remaining returns unconsumed bytes available to the parser.
func (b *InputBuffer) Remaining() int { return b.bytesRead - b.bytesUsed }

// IsEmpty reports whether the buffer has no pending bytes for either the
// transport-fill side or the parse side. Used to gate resize/release.
func (b *InputBuffer) IsEmpty() bool { return b.bytesUsed == b.bytesRead }

// Fill appends freshly received transport bytes. When bytesUsed equals
// bytesRead (everything already consumed) the cursors are rewound to
// the front of the buffer first so long-running sessions don't grow
// their used range unboundedly.
func (b *InputBuffer) Fill(src []byte) int {
	if b.bytesUsed == b.bytesRead {
		b.bytesUsed = 0
		b.bytesRead = 0
	}
	n := copy(b.data[b.bytesRead:], src)
	b.bytesRead += n
	return n
}

// Peek returns the unconsumed slice without advancing bytesUsed.
func (b *InputBuffer) Peek() []byte {
	return b.data[b.bytesUsed:b.bytesRead]
}

// Consume advances bytesUsed by n. Panics if it would exceed bytesRead,
// since that would violate the bytes_used <= bytes_read invariant
// (spec.md §8 invariant 1) and indicates a parser bug, not a wire error.
func (b *InputBuffer) Consume(n int) {
	if b.bytesUsed+n > b.bytesRead {
		panic("tds: input buffer consume exceeds bytes_read")
	}
	b.bytesUsed += n
	if n <= b.bytesInPacket {
		b.bytesInPacket -= n
	} else {
		b.bytesInPacket = 0
	}
}

// Resize replaces the backing array with one of the new size. Only
// permitted while the buffer is empty.
func (b *InputBuffer) Resize(newSize int) error {
	if !b.IsEmpty() {
		return ErrBufferBusy
	}
	b.Release()
	b.data = bufpool.Get(newSize)
	b.size = newSize
	b.bytesUsed, b.bytesRead, b.bytesInPacket = 0, 0, 0
	return nil
}

// OutputBuffer is the session's paired write-side buffer. The first
// HeaderSize bytes of the backing array are reserved as header prefix
// so the 8-byte TDS header can be stamped in place at flush time
// without a secondary allocation or memmove.
type OutputBuffer struct {
	data      []byte
	size      int
	bytesUsed int // payload bytes written after the header prefix
}

// NewOutputBuffer allocates an output buffer of the given size,
// pre-reserving HeaderSize bytes of prefix.
func NewOutputBuffer(size int) *OutputBuffer {
	return &OutputBuffer{data: bufpool.Get(size), size: size}
}

// Release returns the backing array to the buffer pool.
func (b *OutputBuffer) Release() {
	if b.data == nil {
		return
	}
	bufpool.Put(b.data)
	b.data = nil
}

// Size returns the configured buffer size.
func (b *OutputBuffer) Size() int { return b.size }

// BytesUsed returns the number of payload bytes staged since the last
// flush.
func (b *OutputBuffer) BytesUsed() int { return b.bytesUsed }

// IsEmpty reports whether the output buffer has no staged payload.
func (b *OutputBuffer) IsEmpty() bool { return b.bytesUsed == 0 }

// PayloadCapacity returns the maximum payload bytes this buffer can
// stage in a single packet (size minus the header prefix).
func (b *OutputBuffer) PayloadCapacity() int { return b.size - HeaderSize }

// Remaining returns unused payload capacity in the current packet.
func (b *OutputBuffer) Remaining() int { return b.PayloadCapacity() - b.bytesUsed }

// Write appends bytes into the payload region, returning how many were
// written before the buffer filled (the caller must flush and retry
// with the remainder).
func (b *OutputBuffer) Write(src []byte) int {
	n := copy(b.data[HeaderSize+b.bytesUsed:], src)
	b.bytesUsed += n
	return n
}

// PayloadBytesAt returns a slice of the payload region starting at
// offset bytes into the staged payload, extending to the buffer's
// capacity. It is used to materialize a secure secret's plaintext
// directly into the pinned outbound buffer (spec.md §4.6) rather than
// through an intermediate moveable allocation.
func (b *OutputBuffer) PayloadBytesAt(offset int) []byte {
	return b.data[HeaderSize+offset:]
}

// StampHeader writes the header in-place over the reserved prefix and
// returns the full wire-ready packet (header + payload).
func (b *OutputBuffer) StampHeader(h Header) []byte {
	hdr := h.Encode()
	copy(b.data[:HeaderSize], hdr[:])
	return b.data[:HeaderSize+b.bytesUsed]
}

// Reset clears the staged payload after a successful flush.
func (b *OutputBuffer) Reset() {
	b.bytesUsed = 0
}

// Resize replaces the backing array with one of the new size. Only
// permitted while the buffer is empty.
func (b *OutputBuffer) Resize(newSize int) error {
	if !b.IsEmpty() {
		return ErrBufferBusy
	}
	b.Release()
	b.data = bufpool.Get(newSize)
	b.size = newSize
	b.bytesUsed = 0
	return nil
}
