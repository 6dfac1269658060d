package wire

import (
	"testing"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBlobRoundTrip(t *testing.T) {
	cases := []Blob{
		{
			Header: BlobHeader{Version: ProtoVersion, Id: MakeID(8, 8), TimestampHi: 1, TimestampLo: 2, Status: 0},
			Payload: Payload{Type: UInt32, U32: []uint32{0xdeadbeef}},
		},
		{
			Header:  BlobHeader{Version: ProtoVersion, Id: MakeID(8, 9)},
			Payload: Payload{Type: Float64, F64: []float64{3.14159265, -1.0, 0.0}},
		},
		{
			Header:  BlobHeader{Version: ProtoVersion, Id: MakeID(8, 10)},
			Payload: Payload{Type: Int8, I8: []int8{-1, 2, -3, 4, 5}},
		},
		{
			Header:  BlobHeader{Version: ProtoVersion, Id: MakeID(8, 11)},
			Payload: Payload{Type: Float32, F32: []float32{1.5, -2.25}},
		},
	}

	for _, b := range cases {
		buf := make([]byte, 4096)
		n, err := EncodeBlob(buf, &b)
		require.NoError(t, err)

		payloadBytes, id, peekWords, err := PeekSizeID(buf)
		require.NoError(t, err)
		require.Equal(t, b.Header.Id, id)
		require.Equal(t, n, peekWords)

		got, decWords, err := DecodeBlob(buf, payloadBytes+64)
		require.NoError(t, err)
		require.Equal(t, n, decWords)
		require.Equal(t, b.Header.Id, got.Header.Id)
		require.Equal(t, b.Payload, got.Payload)
	}
}

func TestDecodeBadVersion(t *testing.T) {
	b := Blob{
		Header:  BlobHeader{Version: ProtoVersion, Id: MakeID(8, 8)},
		Payload: Payload{Type: UInt32, U32: []uint32{1}},
	}
	buf := make([]byte, 64)
	_, err := EncodeBlob(buf, &b)
	require.NoError(t, err)

	// corrupt the major version nibble
	buf[0] = 0x21

	_, _, _, err = PeekSizeID(buf)
	require.Error(t, err)
	require.Equal(t, ferr.BadVersion, ferr.KindOf(err))
}

func TestEncodeInvalidGID(t *testing.T) {
	b := Blob{
		Header:  BlobHeader{Version: ProtoVersion, Id: MakeIDVersioned(ProtoMajor, 3000, 8)},
		Payload: Payload{Type: UInt32, U32: []uint32{1}},
	}
	buf := make([]byte, 64)
	_, err := EncodeBlob(buf, &b)
	require.Error(t, err)
	require.Equal(t, ferr.InvalidId, ferr.KindOf(err))
}

func TestDecodeNoSpace(t *testing.T) {
	b := Blob{
		Header:  BlobHeader{Version: ProtoVersion, Id: MakeID(8, 8)},
		Payload: Payload{Type: UInt32, U32: make([]uint32, 1024)},
	}
	buf := make([]byte, 8192)
	n, err := EncodeBlob(buf, &b)
	require.NoError(t, err)

	_, _, err = DecodeBlob(buf[:n*4], 16)
	require.Error(t, err)
	require.Equal(t, ferr.NoSpace, ferr.KindOf(err))
}

func TestMsgHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	n, err := EncodeMsgHeader(buf, 3)
	require.NoError(t, err)
	require.Equal(t, MsgHeaderWords, n)

	count, words, err := DecodeMsgHeader(buf)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, MsgHeaderWords, words)
}
