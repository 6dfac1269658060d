package store

import (
	"net"
	"testing"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/stretchr/testify/require"
)

type capturingSocket struct {
	*fakeSocket
	lastAddr *net.UDPAddr
	lastData []byte
}

func newCapturingSocket() *capturingSocket {
	return &capturingSocket{fakeSocket: newFakeSocket()}
}

func (s *capturingSocket) Send(addr *net.UDPAddr, data []byte) error {
	s.lastAddr = addr
	s.lastData = append([]byte(nil), data...)
	return nil
}

func (s *capturingSocket) ReceiveTimeout(buf []byte, timeout time.Duration) (int, *net.UDPAddr, error) {
	return 0, nil, nil
}

func TestSenderSendBlobRoundTrip(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	sock := newCapturingSocket()
	st := newStats()
	snd := newSender(sock, prefix, st)

	id := wire.MakeID(8, 1)
	require.NoError(t, snd.SendBlob(id, wire.Payload{Type: wire.UInt32, U32: []uint32{99}}))

	require.NotNil(t, sock.lastAddr)
	require.Equal(t, "239.0.0.8", sock.lastAddr.IP.String())

	count, consumed, err := wire.DecodeMsgHeader(sock.lastData)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	blob, _, err := wire.DecodeBlob(sock.lastData[consumed*4:], 4096)
	require.NoError(t, err)
	require.Equal(t, id, blob.Header.Id)
	require.Equal(t, []uint32{99}, blob.Payload.U32)

	require.Equal(t, uint64(1), st.snapshot(newBufferPool(testClasses(), 1)).SendCalls)
}

func TestSenderRejectsMixedGids(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	sock := newCapturingSocket()
	snd := newSender(sock, prefix, newStats())

	blobs := []wire.Blob{
		{Header: wire.BlobHeader{Id: wire.MakeID(8, 1)}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{1}}},
		{Header: wire.BlobHeader{Id: wire.MakeID(9, 1)}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{2}}},
	}
	err = snd.SendBlobs(blobs)
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))
}

func TestGroupAllocAddPutRoundTrip(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	sock := newCapturingSocket()
	st := newStats()
	snd := newSender(sock, prefix, st)

	id1 := wire.MakeID(8, 1)
	id2 := wire.MakeID(8, 2)

	g, err := snd.AllocGroup(id1)
	require.NoError(t, err)
	require.NoError(t, g.AddBlob(wire.Blob{Header: wire.BlobHeader{Version: wire.ProtoVersion, Id: id1}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{1}}}))
	require.NoError(t, g.AddBlob(wire.Blob{Header: wire.BlobHeader{Version: wire.ProtoVersion, Id: id2}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{2}}}))
	require.NoError(t, g.PutGroup())

	require.NotNil(t, sock.lastAddr)
	require.Equal(t, "239.0.0.8", sock.lastAddr.IP.String())

	count, consumed, err := wire.DecodeMsgHeader(sock.lastData)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	b1, n, err := wire.DecodeBlob(sock.lastData[consumed*4:], 4096)
	require.NoError(t, err)
	require.Equal(t, id1, b1.Header.Id)

	b2, _, err := wire.DecodeBlob(sock.lastData[consumed*4+n*4:], 4096)
	require.NoError(t, err)
	require.Equal(t, id2, b2.Header.Id)

	require.Equal(t, uint64(1), st.snapshot(newBufferPool(testClasses(), 1)).SendCalls)
}

func TestGroupAllocWildcardFixesGidFromFirstBlob(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	sock := newCapturingSocket()
	snd := newSender(sock, prefix, newStats())

	g, err := snd.AllocGroup(wire.MakeID(0, 0))
	require.NoError(t, err)
	require.NoError(t, g.AddBlob(wire.Blob{Header: wire.BlobHeader{Id: wire.MakeID(8, 1)}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{1}}}))

	err = g.AddBlob(wire.Blob{Header: wire.BlobHeader{Id: wire.MakeID(9, 1)}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{2}}})
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))

	require.NoError(t, g.PutGroup())
	require.Equal(t, "239.0.0.8", sock.lastAddr.IP.String())
}

func TestGroupPutGroupRejectsEmpty(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	snd := newSender(newCapturingSocket(), prefix, newStats())

	g, err := snd.AllocGroup(wire.MakeID(8, 1))
	require.NoError(t, err)
	err = g.PutGroup()
	require.Error(t, err)
	require.Equal(t, ferr.InvalidCount, ferr.KindOf(err))
}

func TestGroupPutGroupTwiceIsUnsupp(t *testing.T) {
	prefix, err := ParsePrefix("239.0.0.0:4586")
	require.NoError(t, err)
	snd := newSender(newCapturingSocket(), prefix, newStats())

	g, err := snd.AllocGroup(wire.MakeID(8, 1))
	require.NoError(t, err)
	require.NoError(t, g.AddBlob(wire.Blob{Header: wire.BlobHeader{Id: wire.MakeID(8, 1)}, Payload: wire.Payload{Type: wire.UInt32, U32: []uint32{1}}}))
	require.NoError(t, g.PutGroup())

	err = g.PutGroup()
	require.Error(t, err)
	require.Equal(t, ferr.Unsupp, ferr.KindOf(err))
}
