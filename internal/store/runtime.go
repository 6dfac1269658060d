// Package store implements the FCOM receive-side runtime: the buffer
// pool, subscription registry, blob-set engine and the receiver/sender
// goroutines tying them to a multicast socket. It is the direct
// counterpart of fc_init.c/fc_subscribe.c/fc_getblob.c/fc_setio.c/
// fc_send.c in the original implementation, restructured around a single
// Runtime value instead of process-global state.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/mcastsock"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/fcom-rt/fcom/pkg/log"
)

// Runtime is the live FCOM instance: one multicast socket, one cache
// table, one receiver goroutine and one sender. Grounded on
// internal/memorystore/memorystore.go's Init/GetMemoryStore/Shutdown
// singleton, generalized to an explicit *Runtime value so tests can run
// several instances concurrently against distinct sockets.
type Runtime struct {
	cfg    Config
	prefix ParsedPrefix
	sock   mcastsock.Socket
	cache  *cacheTable
	pool   *bufferPool
	gids   *gidRefcount
	st     *stats
	sender *sender

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Init parses and validates cfg, opens the multicast socket, and starts
// the receiver goroutine. The returned Runtime must be closed with
// Shutdown.
func Init(cfg Config) (*Runtime, error) {
	prefix, err := ParsePrefix(cfg.Prefix)
	if err != nil {
		return nil, err
	}
	sock, err := mcastsock.Open(prefix.Port, nil)
	if err != nil {
		return nil, err
	}
	return initWithSocket(cfg, prefix, sock)
}

// initWithSocket is Init with the socket already constructed, letting
// tests substitute a fake mcastsock.Socket instead of binding a real
// multicast port.
func initWithSocket(cfg Config, prefix ParsedPrefix, sock mcastsock.Socket) (*Runtime, error) {
	if cfg.NBufs <= 0 {
		return nil, ferr.New(ferr.InvalidArg, "n_bufs must be positive")
	}

	st := newStats()
	pool := newBufferPool(cfg.sizeClasses(), cfg.NBufs)
	gids := newGidRefcount(prefix, sock)
	cache := newCacheTable(pool, cfg.NBufs*4, gids, st)
	snd := newSender(sock, prefix, st)

	rt := &Runtime{
		cfg:    cfg,
		prefix: prefix,
		sock:   sock,
		cache:  cache,
		pool:   pool,
		gids:   gids,
		st:     st,
		sender: snd,
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel

	recv := newReceiver(sock, cache, pool, st, time.Duration(cfg.receiveTimeoutMs())*time.Millisecond)
	priority := cfg.receiverPriorityPercentile()
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		applyReceiverPriority(priority)
		recv.run(ctx)
	}()

	log.Infof("fcom: runtime started, prefix=%s:%d, n_bufs=%d", prefix.IP, prefix.Port, cfg.NBufs)
	return rt, nil
}

// Shutdown stops the receiver goroutine and closes the socket. Safe to
// call more than once.
func (rt *Runtime) Shutdown() error {
	var err error
	rt.closeOnce.Do(func() {
		rt.cancel()
		rt.wg.Wait()
		err = rt.sock.Close()
		log.Infof("fcom: runtime shut down")
	})
	return err
}

// Subscribe implements spec.md §4.4 subscribe.
func (rt *Runtime) Subscribe(id wire.BlobId, mode SyncMode) error {
	rt.st.incSubscribeCalls()
	return rt.cache.Subscribe(id, mode)
}

// Unsubscribe implements spec.md §4.4 unsubscribe.
func (rt *Runtime) Unsubscribe(id wire.BlobId) error {
	return rt.cache.Unsubscribe(id)
}

// GetBlob implements spec.md §6 get-blob. timeout<=0 returns immediately;
// timeout>0 blocks (Sync subscriptions only) until an update arrives or
// the timeout elapses.
func (rt *Runtime) GetBlob(id wire.BlobId, timeout time.Duration) (*BlobRef, error) {
	rt.st.incGetBlobCalls()
	ref, err := rt.cache.GetBlob(id, timeout)
	if ferr.KindOf(err) == ferr.TimedOut {
		rt.st.incGetBlobTimeouts()
	}
	return ref, err
}

// SendBlob publishes a single blob.
func (rt *Runtime) SendBlob(id wire.BlobId, payload wire.Payload) error {
	return rt.sender.SendBlob(id, payload)
}

// SendBlobs publishes several blobs, which must share a GID, as one
// message-framed datagram.
func (rt *Runtime) SendBlobs(blobs []wire.Blob) error {
	return rt.sender.SendBlobs(blobs)
}

// AllocGroup implements spec.md §4.7 alloc_group, for callers that
// assemble a multi-blob message incrementally rather than handing
// SendBlobs a fully-built slice up front.
func (rt *Runtime) AllocGroup(id wire.BlobId) (*Group, error) {
	return rt.sender.AllocGroup(id)
}

// AllocSet implements spec.md §4.6 allocate.
func (rt *Runtime) AllocSet(ids []wire.BlobId) (*BlobSet, error) {
	return rt.cache.AllocSet(ids)
}

// Stats returns a point-in-time snapshot of the runtime's counters,
// spec.md §6's statistics surface.
func (rt *Runtime) Stats() Snapshot {
	return rt.st.snapshot(rt.pool)
}

// GroupAddr exposes the prefix|gid address computation for callers that
// need to reason about multicast membership directly (diagnostics, the
// NATS bridge's address logging).
func (rt *Runtime) GroupAddr(gid uint32) string {
	return fmt.Sprintf("%s:%d", rt.prefix.GroupAddr(gid).IP, rt.prefix.Port)
}
