// Package packet implements the TDS wire packet: the 8-byte header codec
// (C2) and the paired input/output buffers that back the read and write
// pipelines.
//
// # Header Structure (8 bytes)
//
//	┌────────┬──────┬─────────────┬──────────────────────────────────┐
//	│ Offset │ Size │ Field       │ Description                      │
//	├────────┼──────┼─────────────┼──────────────────────────────────┤
//	│   0    │  1   │ Type        │ TDS message type                  │
//	│   1    │  1   │ Status      │ EOM / IGNORE / RESET_CONN / BATCH │
//	│   2    │  2   │ Length      │ total length incl. header, BE     │
//	│   4    │  2   │ Channel     │ MARS channel/SPID, BE             │
//	│   6    │  1   │ PacketNo    │ 1-based, wraps 256→1              │
//	│   7    │  1   │ Window      │ reserved, always 0 in practice    │
//	└────────┴──────┴─────────────┴──────────────────────────────────┘
package packet

import "errors"

// HeaderSize is the fixed size of a TDS packet header (8 bytes).
const HeaderSize = 8

// MaxPacketLen is the largest negotiable packet length.
const MaxPacketLen = 32767

// Message types (MS-TDS 2.2.3.1.1).
const (
	TypeSQLBatch     byte = 0x01
	TypeRPC          byte = 0x03
	TypeReply        byte = 0x04
	TypeAttention    byte = 0x06
	TypeBulkLoad     byte = 0x07
	TypeFedAuthToken byte = 0x08
	TypeTransaction  byte = 0x0E
	TypeLogin7       byte = 0x10
	TypeSSPI         byte = 0x11
	TypePrelogin     byte = 0x12
)

// Status bits (MS-TDS 2.2.3.1.2).
const (
	StatusEOM             byte = 0x01
	StatusIgnore          byte = 0x02
	StatusResetConnection byte = 0x04
	StatusBatch           byte = 0x08
)

var (
	// ErrCorruptedTdsStream is raised when header fields cannot describe
	// a valid packet (e.g. total length shorter than the header itself).
	ErrCorruptedTdsStream = errors.New("tds: corrupted stream")
	// ErrInvalidHeaderLength indicates a header claims a total length
	// exceeding the negotiated or protocol maximum.
	ErrInvalidHeaderLength = errors.New("tds: invalid header length")
)

// Header represents a decoded TDS packet header.
type Header struct {
	Type         byte
	Status       byte
	Length       uint16 // total length including the 8-byte header
	Channel      uint16
	PacketNumber uint8
	Window       uint8
}

// IsEOM reports whether this packet is the last of a logical message.
func (h Header) IsEOM() bool { return h.Status&StatusEOM != 0 }

// IsIgnore reports whether this packet has been cancelled by the server
// or client (the IGNORE bit).
func (h Header) IsIgnore() bool { return h.Status&StatusIgnore != 0 }

// IsResetConnection reports whether RESET_CONNECTION is requested.
func (h Header) IsResetConnection() bool { return h.Status&StatusResetConnection != 0 }

// PayloadLen returns the number of payload bytes following the header,
// i.e. bytes_in_packet from spec.md §4.2.
func (h Header) PayloadLen() (int, error) {
	n := int(h.Length) - HeaderSize
	if n < 0 {
		return 0, ErrCorruptedTdsStream
	}
	return n, nil
}

// Encode serializes the header to wire format (big-endian length/channel).
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = h.Type
	buf[1] = h.Status
	buf[2] = byte(h.Length >> 8)
	buf[3] = byte(h.Length)
	buf[4] = byte(h.Channel >> 8)
	buf[5] = byte(h.Channel)
	buf[6] = h.PacketNumber
	buf[7] = h.Window
	return buf
}

// ParseHeader decodes a complete 8-byte header. Callers with fewer than
// HeaderSize bytes available must accumulate via HeaderCodec instead.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrCorruptedTdsStream
	}
	h := Header{
		Type:         data[0],
		Status:       data[1],
		Length:       uint16(data[2])<<8 | uint16(data[3]),
		Channel:      uint16(data[4])<<8 | uint16(data[5]),
		PacketNumber: data[6],
		Window:       data[7],
	}
	if h.Length < HeaderSize {
		return Header{}, ErrCorruptedTdsStream
	}
	if h.Length > MaxPacketLen {
		return Header{}, ErrInvalidHeaderLength
	}
	return h, nil
}

// NextPacketNumber returns the packet number following n, wrapping 256 to 1.
func NextPacketNumber(n uint8) uint8 {
	if n == 0 {
		return 1
	}
	next := n + 1
	if next == 0 {
		return 1
	}
	return next
}
