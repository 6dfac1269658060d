package store

import (
	"net"
	"testing"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeSocket is a no-op mcastsock.Socket recording join/leave calls, used
// so cacheTable tests never touch a real network interface.
type fakeSocket struct {
	joined map[string]int
}

func newFakeSocket() *fakeSocket { return &fakeSocket{joined: make(map[string]int)} }

func (f *fakeSocket) Send(addr *net.UDPAddr, data []byte) error { return nil }
func (f *fakeSocket) ReceiveTimeout(buf []byte, timeout time.Duration) (int, *net.UDPAddr, error) {
	return 0, nil, nil
}
func (f *fakeSocket) JoinGroup(addr *net.UDPAddr) error {
	f.joined[addr.IP.String()]++
	return nil
}
func (f *fakeSocket) LeaveGroup(addr *net.UDPAddr) error {
	f.joined[addr.IP.String()]--
	return nil
}
func (f *fakeSocket) Close() error { return nil }

func newTestCacheTable(t *testing.T) (*cacheTable, *fakeSocket) {
	t.Helper()
	prefix, err := ParsePrefix("239.0.0.0")
	require.NoError(t, err)
	sock := newFakeSocket()
	pool := newBufferPool(testClasses(), 64)
	gids := newGidRefcount(prefix, sock)
	c := newCacheTable(pool, 64, gids, newStats())
	return c, sock
}

func TestSubscribeCreatesPlaceholderAndJoinsGroup(t *testing.T) {
	c, sock := newTestCacheTable(t)
	id := wire.MakeID(8, 8)

	require.NoError(t, c.Subscribe(id, Async))

	ref, err := c.GetBlob(id, 0)
	require.Error(t, err)
	require.Equal(t, ferr.NoData, ferr.KindOf(err))
	require.Nil(t, ref)

	require.Equal(t, 1, sock.joined["239.0.0.8"])
}

func TestSubscribeTwiceSharesGidJoin(t *testing.T) {
	c, sock := newTestCacheTable(t)
	id1 := wire.MakeID(8, 8)
	id2 := wire.MakeID(8, 9)

	require.NoError(t, c.Subscribe(id1, Async))
	require.NoError(t, c.Subscribe(id2, Async))
	require.Equal(t, 1, sock.joined["239.0.0.8"])
}

func TestUnsubscribeLeavesGidOnLastRef(t *testing.T) {
	c, sock := newTestCacheTable(t)
	id := wire.MakeID(8, 8)

	require.NoError(t, c.Subscribe(id, Async))
	require.NoError(t, c.Unsubscribe(id))
	require.Equal(t, 0, sock.joined["239.0.0.8"])

	_, err := c.GetBlob(id, 0)
	require.Error(t, err)
	require.Equal(t, ferr.NotSubscribed, ferr.KindOf(err))
}

func TestUnsubscribeNotSubscribed(t *testing.T) {
	c, _ := newTestCacheTable(t)
	err := c.Unsubscribe(wire.MakeID(8, 8))
	require.Error(t, err)
	require.Equal(t, ferr.NotSubscribed, ferr.KindOf(err))
}

func TestGetBlobAsyncWithTimeoutUnsupported(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Async))

	_, err := c.GetBlob(id, time.Second)
	require.Error(t, err)
	require.Equal(t, ferr.Unsupp, ferr.KindOf(err))
}

func TestGetBlobSyncBlocksUntilUpdate(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Sync))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ref, err := c.GetBlob(id, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, wire.UInt32, ref.Header().Type)
		ref.Release()
	}()

	time.Sleep(20 * time.Millisecond)

	pool := c.pool
	newBuf, err := pool.alloc(4, id)
	require.NoError(t, err)
	newBuf.Header = wire.BlobHeader{Version: wire.ProtoVersion, Type: wire.UInt32, Count: 1, Id: id}
	newBuf.Payload = wire.Payload{Type: wire.UInt32, U32: []uint32{42}}

	old, replaced := c.replaceOnUpdate(id, newBuf)
	require.True(t, replaced)
	if old != nil {
		c.releaseBuffer(old)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("GetBlob did not wake up after update")
	}
}

func TestGetBlobSyncTimesOut(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Sync))

	_, err := c.GetBlob(id, 30*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, ferr.TimedOut, ferr.KindOf(err))
}

func TestSubscribeRejectsZeroGidAndSid(t *testing.T) {
	c, _ := newTestCacheTable(t)

	err := c.Subscribe(wire.MakeID(0, 1), Async)
	require.Error(t, err)
	require.Equal(t, ferr.InvalidId, ferr.KindOf(err))

	err = c.Subscribe(wire.MakeID(8, 0), Async)
	require.Error(t, err)
	require.Equal(t, ferr.InvalidId, ferr.KindOf(err))
}

func TestUnsubscribeBlockedBySyncWaiter(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Sync))

	waiting := make(chan struct{})
	go func() {
		close(waiting)
		_, _ = c.GetBlob(id, 200*time.Millisecond)
	}()
	<-waiting
	time.Sleep(20 * time.Millisecond)

	err := c.Unsubscribe(id)
	require.Error(t, err)
	require.Equal(t, ferr.IdInUse, ferr.KindOf(err))
}
