package wire

import (
	"math"

	"github.com/fcom-rt/fcom/internal/ferr"
)

// Payload is the typed element array carried after a BlobHeader. Exactly
// one of the slices is populated, selected by Type. Keeping typed Go
// slices (rather than a raw byte buffer interpreted via unsafe) is the
// idiomatic tradeoff here: the wire format's bit-for-bit layout only has
// to be dealt with at the encode/decode boundary in this file.
type Payload struct {
	Type ElementType
	F32  []float32
	F64  []float64
	U32  []uint32
	I32  []int32
	I8   []int8
}

// Count returns the element count for whichever slice is populated.
func (p *Payload) Count() int {
	switch p.Type {
	case Float32:
		return len(p.F32)
	case Float64:
		return len(p.F64)
	case UInt32:
		return len(p.U32)
	case Int32:
		return len(p.I32)
	case Int8:
		return len(p.I8)
	default:
		return 0
	}
}

// Words returns how many 32-bit wire words the payload occupies,
// matching BlobHeader.PayloadWords for the same type/count.
func (p *Payload) Words() (int, error) {
	elemSize, err := p.Type.ElemSize()
	if err != nil {
		return 0, err
	}
	return (p.Count()*elemSize + 3) / 4, nil
}

// encodeInto writes the payload's wire words (big-endian) into dst,
// which must be at least Words()*4 bytes long; it returns words written.
func (p *Payload) encodeInto(dst []byte) (int, error) {
	words, err := p.Words()
	if err != nil {
		return 0, err
	}
	if len(dst) < words*4 {
		return 0, ferr.New(ferr.NoSpace, "payload encode: output buffer too small")
	}

	switch p.Type {
	case Float32:
		for i, v := range p.F32 {
			putWord(dst[i*4:], math.Float32bits(v))
		}
	case UInt32:
		for i, v := range p.U32 {
			putWord(dst[i*4:], v)
		}
	case Int32:
		for i, v := range p.I32 {
			putWord(dst[i*4:], uint32(v))
		}
	case Float64:
		for i, v := range p.F64 {
			bits := math.Float64bits(v)
			putWord(dst[i*8:], uint32(bits>>32))
			putWord(dst[i*8+4:], uint32(bits))
		}
	case Int8:
		// four signed bytes packed per word, zero-padded to a word boundary.
		for i, v := range p.I8 {
			dst[i] = byte(v)
		}
		for i := len(p.I8); i < words*4; i++ {
			dst[i] = 0
		}
	case None:
		// nothing to write
	default:
		return 0, ferr.Newf(ferr.InvalidType, "unknown element type %d", byte(p.Type))
	}
	return words, nil
}

// decodePayload reads `count` elements of the given type from src
// (big-endian wire words) into a freshly allocated Payload.
func decodePayload(t ElementType, count uint16, src []byte) (Payload, int, error) {
	elemSize, err := t.ElemSize()
	if err != nil {
		return Payload{}, 0, err
	}
	n := int(count)
	words := (n*elemSize + 3) / 4
	if len(src) < words*4 {
		return Payload{}, 0, ferr.New(ferr.NoSpace, "payload decode: input too short")
	}

	p := Payload{Type: t}
	switch t {
	case Float32:
		p.F32 = make([]float32, n)
		for i := range p.F32 {
			p.F32[i] = math.Float32frombits(getWord(src[i*4:]))
		}
	case UInt32:
		p.U32 = make([]uint32, n)
		for i := range p.U32 {
			p.U32[i] = getWord(src[i*4:])
		}
	case Int32:
		p.I32 = make([]int32, n)
		for i := range p.I32 {
			p.I32[i] = int32(getWord(src[i*4:]))
		}
	case Float64:
		p.F64 = make([]float64, n)
		for i := range p.F64 {
			hi := uint64(getWord(src[i*8:]))
			lo := uint64(getWord(src[i*8+4:]))
			p.F64[i] = math.Float64frombits(hi<<32 | lo)
		}
	case Int8:
		p.I8 = make([]int8, n)
		for i := range p.I8 {
			p.I8[i] = int8(src[i])
		}
	case None:
		// nothing to read
	}
	return p, words, nil
}
