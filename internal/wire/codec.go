package wire

import "github.com/fcom-rt/fcom/internal/ferr"

// Blob is the full user-visible unit: header plus typed payload.
type Blob struct {
	Header  BlobHeader
	Payload Payload
}

// PeekSizeID extracts version/id/type/count from a blob without fully
// decoding it, and computes the payload's byte size. It is used by the
// receiver to decide, under the cache lock, whether a buffer is needed
// before paying for a full decode.
func PeekSizeID(data []byte) (payloadBytes int, id BlobId, wordsConsumed int, err error) {
	if len(data) < HeaderBytes {
		return 0, 0, 0, ferr.New(ferr.NoSpace, "peek: truncated header")
	}
	w0 := getWord(data)
	version := byte(w0 >> 24)
	etype := ElementType(byte(w0 >> 16))
	count := uint16(w0)

	if version>>4 != ProtoMajor {
		return 0, 0, 0, ferr.Newf(ferr.BadVersion, "blob header version %#x, want major %d", version, ProtoMajor)
	}

	elemSize, err := etype.ElemSize()
	if err != nil {
		return 0, 0, 0, err
	}

	idWord := getWord(data[4:])
	id = BlobId(idWord)

	payloadBytes = int(count) * elemSize
	payloadWords := (payloadBytes + 3) / 4
	wordsConsumed = HeaderWords + payloadWords
	return payloadBytes, id, wordsConsumed, nil
}

// DecodeBlob fully decodes one blob (header + payload) from data. The
// payload is returned in freshly allocated typed slices. available is
// the payload capacity in bytes of the caller's destination buffer; if
// the wire payload would not fit, NoSpace is returned and nothing is
// decoded.
func DecodeBlob(data []byte, available int) (Blob, int, error) {
	if len(data) < HeaderBytes {
		return Blob{}, 0, ferr.New(ferr.NoSpace, "decode: truncated header")
	}

	w0 := getWord(data)
	h := BlobHeader{
		Version: byte(w0 >> 24),
		Type:    ElementType(byte(w0 >> 16)),
		Count:   uint16(w0),
	}
	if h.Version>>4 != ProtoMajor {
		return Blob{}, 0, ferr.Newf(ferr.BadVersion, "blob header version %#x, want major %d", h.Version, ProtoMajor)
	}

	h.Id = BlobId(getWord(data[4:]))
	h.Reserved = getWord(data[8:])
	h.TimestampHi = getWord(data[12:])
	h.TimestampLo = getWord(data[16:])
	h.Status = getWord(data[20:])

	payloadBytes, err := h.PayloadBytes()
	if err != nil {
		return Blob{}, 0, err
	}
	if payloadBytes > available {
		return Blob{}, 0, ferr.Newf(ferr.NoSpace, "decode: payload %d bytes exceeds available %d", payloadBytes, available)
	}

	payload, payloadWords, err := decodePayload(h.Type, h.Count, data[HeaderBytes:])
	if err != nil {
		return Blob{}, 0, err
	}

	return Blob{Header: h, Payload: payload}, HeaderWords + payloadWords, nil
}

// EncodeBlob writes one blob's header and payload into dst, returning the
// number of 32-bit words written. Fails InvalidId if the blob's id
// carries a GID outside the valid range, NoSpace if dst is too small.
func EncodeBlob(dst []byte, b *Blob) (int, error) {
	if err := validateEncodeID(b.Header.Id); err != nil {
		return 0, err
	}

	count := b.Payload.Count()
	if count > 0xFFFF {
		return 0, ferr.New(ferr.InvalidCount, "encode: element count exceeds 65535")
	}
	b.Header.Count = uint16(count)
	b.Header.Type = b.Payload.Type

	payloadWords, err := b.Payload.Words()
	if err != nil {
		return 0, err
	}
	totalWords := HeaderWords + payloadWords
	if len(dst) < totalWords*4 {
		return 0, ferr.New(ferr.NoSpace, "encode: output buffer too small")
	}

	w0 := uint32(b.Header.Version)<<24 | uint32(byte(b.Header.Type))<<16 | uint32(b.Header.Count)
	putWord(dst, w0)
	putWord(dst[4:], uint32(b.Header.Id))
	putWord(dst[8:], b.Header.Reserved)
	putWord(dst[12:], b.Header.TimestampHi)
	putWord(dst[16:], b.Header.TimestampLo)
	putWord(dst[20:], b.Header.Status)

	if _, err := b.Payload.encodeInto(dst[HeaderBytes:]); err != nil {
		return 0, err
	}

	return totalWords, nil
}

func validateEncodeID(id BlobId) error {
	gid := id.GID()
	if gid < GIDMin || gid > GIDMaxUsable {
		return ferr.Newf(ferr.InvalidId, "gid %d out of range [%d,%d]", gid, GIDMin, GIDMaxUsable)
	}
	return nil
}

// MsgHeaderWords is the fixed word count of a message (group) header:
// [version][blob-count].
const MsgHeaderWords = 2
const MsgHeaderBytes = MsgHeaderWords * 4

// DecodeMsgHeader reads the message-level header, returning the number
// of blobs that follow and the words consumed.
func DecodeMsgHeader(data []byte) (blobCount int, wordsConsumed int, err error) {
	if len(data) < MsgHeaderBytes {
		return 0, 0, ferr.New(ferr.NoSpace, "decode: truncated message header")
	}
	version := getWord(data)
	if byte(version)>>4 != ProtoMajor {
		return 0, 0, ferr.Newf(ferr.BadVersion, "message version %#x, want major %d", version, ProtoMajor)
	}
	blobCount = int(getWord(data[4:]))
	return blobCount, MsgHeaderWords, nil
}

// EncodeMsgHeader writes the message-level header.
func EncodeMsgHeader(dst []byte, blobCount int) (int, error) {
	if len(dst) < MsgHeaderBytes {
		return 0, ferr.New(ferr.NoSpace, "encode: output buffer too small for message header")
	}
	putWord(dst, uint32(ProtoVersion))
	putWord(dst[4:], uint32(blobCount))
	return MsgHeaderWords, nil
}
