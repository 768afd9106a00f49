package packet

// HeaderCodec decodes headers from a stream that may deliver fewer than
// HeaderSize bytes at a time. A partial header is buffered across calls
// and decoding resumes without replaying already-consumed bytes.
type HeaderCodec struct {
	partial [HeaderSize]byte
	have    int
}

// Feed appends transport bytes to the codec. It returns the decoded
// header and the number of bytes of data consumed from data once a full
// header is available, or ok=false if more bytes are still needed.
func (c *HeaderCodec) Feed(data []byte) (h Header, consumed int, ok bool, err error) {
	need := HeaderSize - c.have
	if need > len(data) {
		copy(c.partial[c.have:], data)
		c.have += len(data)
		return Header{}, len(data), false, nil
	}

	copy(c.partial[c.have:], data[:need])
	c.have = HeaderSize

	h, err = ParseHeader(c.partial[:])
	c.have = 0
	if err != nil {
		return Header{}, need, false, err
	}
	return h, need, true, nil
}

// Reset discards any partially accumulated header bytes. Used when the
// session is marked broken and any in-flight decode must be abandoned.
func (c *HeaderCodec) Reset() {
	c.have = 0
}

// Pending reports how many header bytes have been buffered so far.
func (c *HeaderCodec) Pending() int {
	return c.have
}
