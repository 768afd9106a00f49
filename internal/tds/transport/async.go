package transport

import (
	"context"
	"sync"

	"github.com/gotds/tds/internal/tds/packet"
)

// asyncReader issues non-blocking-looking reads against a Transport: the
// actual socket read still blocks a goroutine (Go has no portable
// overlapped I/O), but the caller's thread is never blocked — it
// receives the result later via CompletionFunc, which is the contract
// spec.md §4.1 asks for. Raw chunks are fed through packet.HeaderCodec
// so header decoding tolerates arbitrary fragmentation exactly as the
// sync path's io.ReadFull does, without relying on that helper.
type asyncReader struct {
	t *Transport

	mu      sync.Mutex
	stopped bool
}

func newAsyncReader(t *Transport) *asyncReader {
	return &asyncReader{t: t}
}

// Read starts one asynchronous read. It allocates a fresh key, spawns
// the pump goroutine, and returns the key immediately so the caller can
// correlate it against a later Cancel or against the delivered
// completion.
func (a *asyncReader) Read(ctx context.Context, cb CompletionFunc) int64 {
	key := a.t.nextKey.Add(1)
	go a.pump(ctx, key, cb)
	return key
}

func (a *asyncReader) pump(ctx context.Context, key int64, cb CompletionFunc) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		cb(key, Packet{}, ErrTransportClosed)
		return
	}

	pkt, err := a.readOne(ctx)
	cb(key, pkt, err)
}

// readOne reads exactly one framed packet via raw chunked reads fed
// through a HeaderCodec, then a length-bounded payload read.
func (a *asyncReader) readOne(ctx context.Context) (Packet, error) {
	var codec packet.HeaderCodec
	chunk := make([]byte, 4096)

	var h packet.Header
	for {
		n, err := a.t.conn.Read(chunk)
		if n > 0 {
			decoded, consumed, ok, decErr := codec.Feed(chunk[:n])
			if decErr != nil {
				a.t.markBroken()
				return Packet{}, decErr
			}
			if ok {
				h = decoded
				// Any bytes read past the header belong to the payload;
				// stash them as a synthetic prefix read below.
				leftover := chunk[consumed:n]
				return a.readPayload(ctx, h, leftover)
			}
		}
		if err != nil {
			return Packet{}, a.t.classify(err)
		}
	}
}

func (a *asyncReader) readPayload(ctx context.Context, h packet.Header, prefix []byte) (Packet, error) {
	payloadLen, err := h.PayloadLen()
	if err != nil {
		a.t.markBroken()
		return Packet{}, err
	}

	payload := make([]byte, payloadLen)
	n := copy(payload, prefix)
	for n < payloadLen {
		read, err := a.t.conn.Read(payload[n:])
		n += read
		if err != nil && n < payloadLen {
			return Packet{}, a.t.classify(err)
		}
	}

	return Packet{Header: h, Payload: payload}, nil
}

func (a *asyncReader) stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}
