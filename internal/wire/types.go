package wire

import "github.com/fcom-rt/fcom/internal/ferr"

// ElementType tags the payload's numeric representation. None is a
// sentinel used for placeholder buffers created by subscribe before any
// data has ever arrived for that id (spec.md "NoData" distinction).
type ElementType byte

const (
	None ElementType = iota
	Float32
	Float64
	UInt32
	Int32
	Int8
)

// ElemSize returns the per-element size in bytes, or an InvalidType error
// for an unrecognised tag.
func (t ElementType) ElemSize() (int, error) {
	switch t {
	case Float32, UInt32, Int32:
		return 4, nil
	case Float64:
		return 8, nil
	case Int8:
		return 1, nil
	case None:
		return 0, nil
	default:
		return 0, ferr.Newf(ferr.InvalidType, "unknown element type %d", byte(t))
	}
}

func (t ElementType) String() string {
	switch t {
	case None:
		return "none"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case UInt32:
		return "uint32"
	case Int32:
		return "int32"
	case Int8:
		return "int8"
	default:
		return "invalid"
	}
}

// HeaderWords is the fixed word count of a BlobHeader on the wire: one
// packed word (version|type|count), id, reserved, tsHi, tsLo, status.
// This is the "small-version" 24-byte layout; see DESIGN.md for why it
// was chosen over the 32-byte one-field-per-word layout also observed in
// the original sources.
const HeaderWords = 6
const HeaderBytes = HeaderWords * 4

// BlobHeader is the fixed 24-byte wire header preceding every blob's
// payload.
type BlobHeader struct {
	Version     byte
	Type        ElementType
	Count       uint16 // number of elements, <= 65535
	Id          BlobId
	Reserved    uint32
	TimestampHi uint32
	TimestampLo uint32
	Status      uint32
}

// PayloadBytes returns the byte length of the header's payload as encoded
// on the wire (not necessarily the in-memory buffer size, which may be
// larger due to size-class rounding).
func (h *BlobHeader) PayloadBytes() (int, error) {
	elemSize, err := h.Type.ElemSize()
	if err != nil {
		return 0, err
	}
	return int(h.Count) * elemSize, nil
}

// PayloadWords returns ceil(PayloadBytes/4), i.e. how many 32-bit words
// the encoded payload occupies on the wire.
func (h *BlobHeader) PayloadWords() (int, error) {
	n, err := h.PayloadBytes()
	if err != nil {
		return 0, err
	}
	return (n + 3) / 4, nil
}
