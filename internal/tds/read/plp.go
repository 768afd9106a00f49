package read

import "encoding/binary"

// PLP sentinels (MS-TDS 2.2.5.2.3), grounded on the retrieved go-mssqldb
// token.go reference.
const (
	plpNull        uint64 = 0xFFFFFFFFFFFFFFFF
	plpUnknownLen  uint64 = 0xFFFFFFFFFFFFFFFE
	plpTerminator  uint32 = 0
)

type plpPhase int

const (
	plpPhaseIdle plpPhase = iota
	plpPhaseChunkLen
	plpPhaseChunkData
)

// plpState tracks the partially length-prefixed chunked-value decode
// across suspensions. longLen is the declared total (or the unknown
// sentinel); longLenLeft is remaining bytes in the chunk currently being
// consumed (spec.md §4.3's "keep long_len and long_len_left consistent
// across suspensions").
type plpState struct {
	active      bool
	unknown     bool
	longLen     uint64
	longLenLeft uint32

	phase plpPhase
	acc   []byte
}

// PLPLength is the result of TryReadPLPLength.
type PLPLength struct {
	IsNull  bool
	Unknown bool
	Total   uint64
}

// TryReadPLPLength reads the 8-byte PLP length prefix (total length,
// SQL_PLP_NULL, or UNKNOWN_LEN).
func (r *Reader) TryReadPLPLength() Result[PLPLength] {
	res := r.readExact(8)
	switch res.Outcome {
	case Suspended:
		return Suspend[PLPLength]()
	case Failed:
		return Fail[PLPLength](res.Err)
	}

	v := binary.LittleEndian.Uint64(res.Value)
	switch v {
	case plpNull:
		r.plp = plpState{}
		return Done(PLPLength{IsNull: true})
	case plpUnknownLen:
		r.plp = plpState{active: true, unknown: true, longLen: v}
		return Done(PLPLength{Unknown: true})
	default:
		r.plp = plpState{active: true, longLen: v}
		return Done(PLPLength{Total: v})
	}
}

// TryReadPLPBytes assembles the entire chunked value and returns it as
// one contiguous slice. A chunk length of zero terminates the stream
// (spec.md §4.3). Must be called after a completed TryReadPLPLength
// whose result was neither IsNull nor immediately exhausted.
func (r *Reader) TryReadPLPBytes() Result[[]byte] {
	if !r.plp.active {
		return Done([]byte{})
	}

	for {
		switch r.plp.phase {
		case plpPhaseIdle:
			r.plp.phase = plpPhaseChunkLen
			fallthrough

		case plpPhaseChunkLen:
			res := r.readExact(4)
			switch res.Outcome {
			case Suspended:
				return Suspend[[]byte]()
			case Failed:
				return Fail[[]byte](res.Err)
			}
			chunkLen := binary.LittleEndian.Uint32(res.Value)
			if chunkLen == plpTerminator {
				out := r.plp.acc
				if out == nil {
					out = []byte{}
				}
				r.plp = plpState{}
				return Done(out)
			}
			r.plp.longLenLeft = chunkLen
			r.plp.phase = plpPhaseChunkData

		case plpPhaseChunkData:
			res := r.readExact(int(r.plp.longLenLeft))
			switch res.Outcome {
			case Suspended:
				return Suspend[[]byte]()
			case Failed:
				return Fail[[]byte](res.Err)
			}
			if !r.plp.unknown && uint64(len(r.plp.acc)+len(res.Value)) > r.plp.longLen {
				r.plp = plpState{}
				return Fail[[]byte](ErrCorruptedTdsStream)
			}
			r.plp.acc = append(r.plp.acc, res.Value...)
			r.plp.longLenLeft = 0
			r.plp.phase = plpPhaseChunkLen
		}
	}
}
