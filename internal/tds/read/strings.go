package read

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// TryReadStringUTF16 reads charCount UTF-16LE code units and decodes
// them into a Go string. This is the encoding every TDS token header,
// identifier, and NVARCHAR column uses.
func (r *Reader) TryReadStringUTF16(charCount int) Result[string] {
	res := r.readExact(charCount * 2)
	switch res.Outcome {
	case Suspended:
		return Suspend[string]()
	case Failed:
		return Fail[string](res.Err)
	}

	s, err := utf16LE.NewDecoder().String(string(res.Value))
	if err != nil {
		return Fail[string](err)
	}
	return Done(s)
}

// TryReadString reads a collation-encoded string. When isPLP is true,
// length is ignored and the value is assembled via the PLP chunk
// protocol (VARCHAR(MAX)/NVARCHAR(MAX) columns); otherwise exactly
// length bytes are read. enc is supplied by the token-parser
// collaborator (above C3) based on the column's negotiated collation —
// this package only knows how to drive it.
func (r *Reader) TryReadString(enc encoding.Encoding, length int, isPLP bool) Result[string] {
	if isPLP {
		res := r.TryReadPLPBytes()
		switch res.Outcome {
		case Suspended:
			return Suspend[string]()
		case Failed:
			return Fail[string](res.Err)
		}
		return decodeString(enc, res.Value)
	}

	res := r.readExact(length)
	switch res.Outcome {
	case Suspended:
		return Suspend[string]()
	case Failed:
		return Fail[string](res.Err)
	}
	return decodeString(enc, res.Value)
}

func decodeString(enc encoding.Encoding, raw []byte) Result[string] {
	if enc == nil {
		enc = utf16LE
	}
	s, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return Fail[string](err)
	}
	return Done(string(s))
}
