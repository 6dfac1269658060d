package store

import (
	"testing"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/stretchr/testify/require"
)

func publishUpdate(t *testing.T, c *cacheTable, id wire.BlobId, value uint32) {
	t.Helper()
	newBuf, err := c.pool.alloc(4, id)
	require.NoError(t, err)
	newBuf.Header = wire.BlobHeader{Version: wire.ProtoVersion, Type: wire.UInt32, Count: 1, Id: id}
	newBuf.Payload = wire.Payload{Type: wire.UInt32, U32: []uint32{value}}

	old, replaced := c.replaceOnUpdate(id, newBuf)
	require.True(t, replaced)
	if old != nil {
		c.releaseBuffer(old)
	}
}

func TestBlobSetAllocRejectsUnsubscribed(t *testing.T) {
	c, _ := newTestCacheTable(t)
	_, err := c.AllocSet([]wire.BlobId{wire.MakeID(8, 8)})
	require.Error(t, err)
	require.Equal(t, ferr.NotSubscribed, ferr.KindOf(err))
}

func TestBlobSetAllocRejectsDuplicates(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Async))

	_, err := c.AllocSet([]wire.BlobId{id, id})
	require.Error(t, err)
	require.Equal(t, ferr.InvalidArg, ferr.KindOf(err))
}

func TestBlobSetWaitAny(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id1 := wire.MakeID(8, 8)
	id2 := wire.MakeID(8, 9)
	require.NoError(t, c.Subscribe(id1, Async))
	require.NoError(t, c.Subscribe(id2, Async))

	set, err := c.AllocSet([]wire.BlobId{id1, id2})
	require.NoError(t, err)

	done := make(chan uint32, 1)
	go func() {
		got, err := set.Wait(0x3, Any, 2*time.Second)
		require.NoError(t, err)
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	publishUpdate(t, c, id2, 7)

	select {
	case got := <-done:
		require.Equal(t, uint32(0x2), got)
	case <-time.After(3 * time.Second):
		t.Fatal("blob-set Any wait did not complete")
	}

	m := set.Member(id2)
	require.NotNil(t, m)
	require.Equal(t, []uint32{7}, m.Payload().U32)
}

func TestBlobSetWaitAll(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id1 := wire.MakeID(8, 8)
	id2 := wire.MakeID(8, 9)
	require.NoError(t, c.Subscribe(id1, Async))
	require.NoError(t, c.Subscribe(id2, Async))

	set, err := c.AllocSet([]wire.BlobId{id1, id2})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := set.Wait(0x3, All, 2*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	publishUpdate(t, c, id1, 1)

	select {
	case <-done:
		t.Fatal("All-wait completed after only one of two members updated")
	case <-time.After(100 * time.Millisecond):
	}

	publishUpdate(t, c, id2, 2)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("blob-set All wait did not complete")
	}
}

func TestBlobSetWaitTimesOut(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Async))

	set, err := c.AllocSet([]wire.BlobId{id})
	require.NoError(t, err)

	_, err = set.Wait(0x1, Any, 30*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, ferr.TimedOut, ferr.KindOf(err))
}

func TestBlobSetFreeRejectedDuringWait(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Async))

	set, err := c.AllocSet([]wire.BlobId{id})
	require.NoError(t, err)

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = set.Wait(0x1, Any, 200*time.Millisecond)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	err = set.Free()
	require.Error(t, err)
	require.Equal(t, ferr.IdInUse, ferr.KindOf(err))
}

func TestBlobSetFreeReleasesMembershipForUnsubscribe(t *testing.T) {
	c, _ := newTestCacheTable(t)
	id := wire.MakeID(8, 8)
	require.NoError(t, c.Subscribe(id, Async))

	set, err := c.AllocSet([]wire.BlobId{id})
	require.NoError(t, err)

	err = c.Unsubscribe(id)
	require.Error(t, err)
	require.Equal(t, ferr.IdInUse, ferr.KindOf(err))

	require.NoError(t, set.Free())
	require.NoError(t, c.Unsubscribe(id))
}
