package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		_, err := ParseHeader(make([]byte, HeaderSize-1))
		assert.ErrorIs(t, err, ErrCorruptedTdsStream)
	})

	t.Run("NegativePayloadLength", func(t *testing.T) {
		data := make([]byte, HeaderSize)
		data[0] = TypeLogin7
		data[2] = 0
		data[3] = 4 // length=4, shorter than the header itself
		_, err := ParseHeader(data)
		assert.ErrorIs(t, err, ErrCorruptedTdsStream)
	})

	t.Run("ValidLoginHeader", func(t *testing.T) {
		data := make([]byte, HeaderSize)
		data[0] = TypeLogin7
		data[1] = StatusEOM
		data[2], data[3] = 0x01, 0x00 // length = 256
		data[4], data[5] = 0x00, 0x00 // channel 0
		data[6] = 1                  // packet number
		data[7] = 0

		h, err := ParseHeader(data)
		require.NoError(t, err)
		assert.Equal(t, TypeLogin7, h.Type)
		assert.True(t, h.IsEOM())
		assert.False(t, h.IsIgnore())
		assert.Equal(t, uint16(256), h.Length)

		payload, err := h.PayloadLen()
		require.NoError(t, err)
		assert.Equal(t, 248, payload)
	})
}

func TestHeaderEncodeRoundTrip(t *testing.T) {
	h := Header{
		Type:         TypeSQLBatch,
		Status:       StatusEOM,
		Length:       123,
		Channel:      7,
		PacketNumber: 3,
		Window:       0,
	}
	encoded := h.Encode()
	decoded, err := ParseHeader(encoded[:])
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestNextPacketNumberWraps(t *testing.T) {
	assert.Equal(t, uint8(2), NextPacketNumber(1))
	assert.Equal(t, uint8(1), NextPacketNumber(255))
}

func TestHeaderCodecFeedAcrossFragments(t *testing.T) {
	h := Header{Type: TypeSQLBatch, Status: StatusEOM, Length: 16, Channel: 0, PacketNumber: 1}
	full := h.Encode()

	// Split the header itself across 1,2,5-byte chunks, grounded in
	// spec.md §8 invariant 6 (exact decoding across arbitrary fragmentation).
	sizes := []int{1, 2, 5}
	var codec HeaderCodec
	var got Header
	pos := 0
	for _, n := range sizes {
		chunk := full[pos : pos+n]
		pos += n
		decoded, consumed, ok, err := codec.Feed(chunk)
		require.NoError(t, err)
		assert.Equal(t, n, consumed)
		if ok {
			got = decoded
		}
	}
	assert.Equal(t, h, got)
}

func TestHeaderCodecSingleShot(t *testing.T) {
	h := Header{Type: TypeAttention, Status: StatusEOM, Length: HeaderSize, Channel: 0, PacketNumber: 1}
	full := h.Encode()

	var codec HeaderCodec
	decoded, consumed, ok, err := codec.Feed(full[:])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, HeaderSize, consumed)
	assert.Equal(t, h, decoded)
}
