// Package snapshot implements record/replay of network packets consumed
// since a snapshot point (C4), so a retryable read can be resumed from
// buffered packets before the transport is touched again.
package snapshot

// Fields is the tuple of parser-position state captured at snapshot
// time and restored on full replay restart (spec.md §3 Read Snapshot).
type Fields struct {
	BytesUsed              int
	BytesInPacket          int
	PendingData            bool
	ErrorTokenReceived     bool
	MessageStatus          byte
	LongLen                uint64
	LongLenLeft            uint32
	PLPUnknown             bool
	PLPActive              bool
	OpenResult             bool
	ColumnMetadataReceived bool
	AttentionReceived      bool

	// NullBitmap and Cleanup are reference-shared with the live parser
	// state at snapshot time; they are only copied (copy-on-write) the
	// first time either side mutates them after the snapshot is taken.
	NullBitmap []byte
	Cleanup    map[string]any
}

// Clone returns a field tuple safe to hand back to the live parser: the
// scalar fields are copied outright; NullBitmap and Cleanup remain
// reference-shared until the first mutation (see Snapshot.MutateNullBitmap
// / Snapshot.MutateCleanup).
func (f Fields) Clone() Fields {
	clone := f
	return clone
}

// Snapshot is an ordered sequence of captured packet payloads plus the
// parser field tuple in effect when it was taken.
type Snapshot struct {
	fields Fields

	packets   [][]byte
	replayIdx int

	nullBitmapOwned bool
	cleanupOwned    bool
}

// New creates a snapshot capturing fields as they stand right now.
func New(fields Fields) *Snapshot {
	return &Snapshot{fields: fields}
}

// RecordPacket appends a freshly received packet payload to the
// snapshot. The payload is copied; the caller's buffer is free to be
// reused or recycled immediately after this call returns.
func (s *Snapshot) RecordPacket(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.packets = append(s.packets, buf)
}

// HasBuffered reports whether any packets remain to be replayed.
func (s *Snapshot) HasBuffered() bool {
	return s.replayIdx < len(s.packets)
}

// ReplayNext returns the next buffered packet payload in order, or
// ok=false once exhausted. A replayed packet is never re-requested from
// the transport (spec.md §4.4 property).
func (s *Snapshot) ReplayNext() ([]byte, bool) {
	if s.replayIdx >= len(s.packets) {
		return nil, false
	}
	p := s.packets[s.replayIdx]
	s.replayIdx++
	return p, true
}

// Restore returns the field tuple to apply before replay begins (the
// "full restart" half of spec.md §4.4's two-mode replay).
func (s *Snapshot) Restore() Fields {
	return s.fields.Clone()
}

// MutateNullBitmap returns a mutable null-bitmap cache, cloning the
// snapshot's copy on first write (copy-on-write, spec.md §4.4).
func (s *Snapshot) MutateNullBitmap() []byte {
	if !s.nullBitmapOwned {
		cp := make([]byte, len(s.fields.NullBitmap))
		copy(cp, s.fields.NullBitmap)
		s.fields.NullBitmap = cp
		s.nullBitmapOwned = true
	}
	return s.fields.NullBitmap
}

// MutateCleanup returns a mutable cleanup metadata set, cloning the
// snapshot's copy on first write.
func (s *Snapshot) MutateCleanup() map[string]any {
	if !s.cleanupOwned {
		cp := make(map[string]any, len(s.fields.Cleanup))
		for k, v := range s.fields.Cleanup {
			cp[k] = v
		}
		s.fields.Cleanup = cp
		s.cleanupOwned = true
	}
	return s.fields.Cleanup
}
