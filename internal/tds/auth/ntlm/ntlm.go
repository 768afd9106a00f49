// Package ntlm implements the NTLM LoginBlobProvider: the client side
// of the Type1/Type2/Type3 handshake used when Kerberos negotiation
// fails or no SPN/KDC is reachable (spec.md §4.10's SSPI fallback
// path). Message layout constants mirror [MS-NLMP] the same way the
// teacher's server-side acceptor does, but this package builds
// NEGOTIATE and AUTHENTICATE messages and consumes a server CHALLENGE
// rather than the reverse.
package ntlm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // HMAC-MD5 is mandated by NTLMv2, not used standalone
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4" //nolint:staticcheck // MD4 is required for NTLM protocol compatibility
)

// ErrMalformedChallenge is returned when the server's Type 2 message
// cannot be parsed.
var ErrMalformedChallenge = errors.New("tds/auth/ntlm: malformed challenge message")

var signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

const (
	messageTypeOffset = 8

	challengeFlagsOffset         = 20
	challengeServerChalOffset    = 24
	challengeTargetInfoLenOffset = 40
	challengeTargetInfoOffOffset = 44
	challengeBaseSize            = 56

	flagUnicode  uint32 = 0x00000001
	flagNTLM     uint32 = 0x00000200
	flagAlways   uint32 = 0x00008000 // NTLMSSP_NEGOTIATE_ALWAYS_SIGN, set for parity with common clients
	flagNTLM2Key uint32 = 0x00080000
	flagTarget   uint32 = 0x00000004
)

// Provider is a LoginBlobProvider implementing NTLM. Username, Domain
// and Password identify the SQL login; Workstation is sent in the
// AUTHENTICATE message for diagnostics only (the NEGOTIATE message
// carries empty domain and workstation fields).
type Provider struct {
	Username    string
	Domain      string
	Password    string
	Workstation string

	clientChallenge [8]byte
}

// NewProvider creates an NTLM provider for the given credentials.
func NewProvider(username, domain, password, workstation string) *Provider {
	return &Provider{Username: username, Domain: domain, Password: password, Workstation: workstation}
}

// InitialBlob returns the NEGOTIATE (Type 1) message. NTLM always
// requires a second round trip to consume the server's CHALLENGE.
func (p *Provider) InitialBlob(ctx context.Context, spn string) ([]byte, bool, error) {
	flags := flagUnicode | flagNTLM | flagNTLM2Key | flagTarget | flagAlways

	var buf bytes.Buffer
	buf.Write(signature)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, flags)
	// Domain/workstation security buffers, empty (offsets point past the
	// fixed header, lengths zero).
	writeEmptySecurityBuffer(&buf, 32)
	writeEmptySecurityBuffer(&buf, 32)
	return buf.Bytes(), true, nil
}

// Continue parses the server's CHALLENGE and returns the AUTHENTICATE
// (Type 3) message computed via NTLMv2.
func (p *Provider) Continue(ctx context.Context, serverBlob []byte) ([]byte, bool, error) {
	if len(serverBlob) < challengeBaseSize || !bytes.Equal(serverBlob[:8], signature) {
		return nil, false, ErrMalformedChallenge
	}
	if _, err := rand.Read(p.clientChallenge[:]); err != nil {
		return nil, false, fmt.Errorf("tds/auth/ntlm: client challenge: %w", err)
	}

	serverChallenge := serverBlob[challengeServerChalOffset : challengeServerChalOffset+8]
	targetInfo, err := readSecurityBuffer(serverBlob, challengeTargetInfoLenOffset, challengeTargetInfoOffOffset)
	if err != nil {
		return nil, false, err
	}

	ntHash := computeNTHash(p.Password)
	ntlmv2Hash := computeNTLMv2Hash(ntHash, p.Username, p.Domain)

	temp := buildTemp(targetInfo, p.clientChallenge[:])
	ntResponse := computeNTLMv2Response(ntlmv2Hash, serverChallenge, temp)

	domainUTF16 := utf16LE(p.Domain)
	userUTF16 := utf16LE(p.Username)
	workstationUTF16 := utf16LE(p.Workstation)

	header := make([]byte, 64)
	copy(header[:8], signature)
	binary.LittleEndian.PutUint32(header[8:], 3)

	var payload bytes.Buffer
	offset := uint32(64)

	// LM response: empty for NTLMv2-only auth.
	putSecurityBuffer(header, 12, 0, offset)

	putSecurityBuffer(header, 20, uint16(len(ntResponse)), offset)
	payload.Write(ntResponse)
	offset += uint32(len(ntResponse))

	putSecurityBuffer(header, 28, uint16(len(domainUTF16)), offset)
	payload.Write(domainUTF16)
	offset += uint32(len(domainUTF16))

	putSecurityBuffer(header, 36, uint16(len(userUTF16)), offset)
	payload.Write(userUTF16)
	offset += uint32(len(userUTF16))

	putSecurityBuffer(header, 44, uint16(len(workstationUTF16)), offset)
	payload.Write(workstationUTF16)
	offset += uint32(len(workstationUTF16))

	putSecurityBuffer(header, 52, 0, offset)

	binary.LittleEndian.PutUint32(header[60:], flagUnicode|flagNTLM|flagNTLM2Key|flagTarget)

	blob := append(header, payload.Bytes()...)
	return blob, true, nil
}

func writeEmptySecurityBuffer(buf *bytes.Buffer, offset uint32) {
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, offset)
}

func putSecurityBuffer(header []byte, fieldOffset int, length uint16, bufOffset uint32) {
	binary.LittleEndian.PutUint16(header[fieldOffset:], length)
	binary.LittleEndian.PutUint16(header[fieldOffset+2:], length)
	binary.LittleEndian.PutUint32(header[fieldOffset+4:], bufOffset)
}

func readSecurityBuffer(msg []byte, lenOffset, bufOffsetOffset int) ([]byte, error) {
	l := binary.LittleEndian.Uint16(msg[lenOffset:])
	off := binary.LittleEndian.Uint32(msg[bufOffsetOffset:])
	if int(off)+int(l) > len(msg) {
		return nil, ErrMalformedChallenge
	}
	return msg[off : off+uint32(l)], nil
}

// buildTemp constructs the NTLMv2 "temp" blob: a fixed header, the
// current timestamp, the client challenge, a reserved field, the
// server's target info, and a trailing terminator (MS-NLMP 2.2.2.7/2.2.2.8).
func buildTemp(targetInfo, clientChallenge []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x01, 0x00, 0x00}) // RespType, HiRespType, Reserved1
	buf.Write(make([]byte, 4))                // Reserved2
	buf.Write(ntTimestamp())
	buf.Write(clientChallenge)
	buf.Write(make([]byte, 4)) // Reserved3
	buf.Write(targetInfo)
	buf.Write(make([]byte, 4)) // Reserved4 / terminator
	return buf.Bytes()
}

func computeNTLMv2Response(ntlmv2Hash [16]byte, serverChallenge, temp []byte) []byte {
	h := hmac.New(md5.New, ntlmv2Hash[:])
	h.Write(serverChallenge)
	h.Write(temp)
	hmacResult := h.Sum(nil)
	return append(hmacResult, temp...)
}

func computeNTHash(password string) [16]byte {
	h := md4.New()
	h.Write(utf16LE(password))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

func computeNTLMv2Hash(ntHash [16]byte, username, domain string) [16]byte {
	h := hmac.New(md5.New, ntHash[:])
	h.Write(utf16LE(strings.ToUpper(username) + domain))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

func utf16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// ntTimestamp returns the current time as an NT filetime (100ns ticks
// since 1601-01-01), the format MS-NLMP requires in the temp blob.
func ntTimestamp() []byte {
	const epochDiff = 11644473600 // seconds between 1601 and 1970
	ticks := uint64(time.Now().UnixNano()/100) + epochDiff*10000000
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, ticks)
	return out
}
