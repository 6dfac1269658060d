package store

import (
	"context"
	"time"

	"github.com/fcom-rt/fcom/internal/mcastsock"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/fcom-rt/fcom/pkg/log"
)

// maxDatagramBytes is the largest UDP payload the receiver will attempt
// to read in one call; IP multicast datagrams in practice stay well
// under the classic Ethernet MTU.
const maxDatagramBytes = 65536

// receiver is the background goroutine implementing spec.md §4.5: pull
// one datagram, decode its message header, then for each blob decide
// under the cache lock whether it is wanted before paying for a full
// decode, and install it via replaceOnUpdate. Grounded on the polling
// background-goroutine shape of internal/memorystore/memorystore.go's
// collector loop, adapted from a channel-fed ingest to a socket-fed one.
type receiver struct {
	sock    mcastsock.Socket
	cache   *cacheTable
	pool    *bufferPool
	st      *stats
	timeout time.Duration
}

func newReceiver(sock mcastsock.Socket, cache *cacheTable, pool *bufferPool, st *stats, timeout time.Duration) *receiver {
	return &receiver{sock: sock, cache: cache, pool: pool, st: st, timeout: timeout}
}

// run blocks until ctx is cancelled. Each iteration waits up to r.timeout
// for one datagram so shutdown is observed promptly even when the group
// is idle.
func (r *receiver) run(ctx context.Context) {
	buf := make([]byte, maxDatagramBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := r.sock.ReceiveTimeout(buf, r.timeout)
		if err != nil {
			log.Warnf("fcom: receiver: socket error: %v", err)
			continue
		}
		if n == 0 {
			continue // timed out, nothing arrived
		}

		r.handleDatagram(buf[:n])
	}
}

func (r *receiver) handleDatagram(data []byte) {
	blobCount, consumed, err := wire.DecodeMsgHeader(data)
	if err != nil {
		log.Debugf("fcom: receiver: bad message header: %v", err)
		r.st.incBlobsDropped()
		return
	}
	off := consumed * 4

	for i := 0; i < blobCount; i++ {
		if off >= len(data) {
			log.Debugf("fcom: receiver: message truncated at blob %d/%d", i, blobCount)
			r.st.incBlobsDropped()
			return
		}
		n, ok := r.handleBlob(data[off:])
		if !ok {
			return
		}
		off += n
	}
}

// handleBlob decodes and installs one blob starting at data[0], returning
// the number of bytes it consumed on the wire and whether the caller
// should keep processing subsequent blobs in the same datagram (false
// once the stream can no longer be reliably resynchronised).
func (r *receiver) handleBlob(data []byte) (consumedBytes int, ok bool) {
	payloadBytes, id, peekWords, err := wire.PeekSizeID(data)
	if err != nil {
		log.Debugf("fcom: receiver: peek failed: %v", err)
		r.st.incBlobsDropped()
		return 0, false
	}
	wireBytes := peekWords * 4

	newBuf, subscribed, err := r.cache.allocForReceive(id, payloadBytes)
	if !subscribed {
		r.st.incBlobsDropped()
		return wireBytes, true
	}
	if err != nil {
		log.Warnf("fcom: receiver: id %08x: %v", uint32(id), err)
		r.st.incBlobsDropped()
		return wireBytes, true
	}

	blob, _, err := wire.DecodeBlob(data, wireBytesAvailable(r.pool, newBuf.classIdx))
	if err != nil {
		log.Debugf("fcom: receiver: decode failed for id %08x: %v", uint32(id), err)
		r.cache.releaseUnusedAlloc(newBuf)
		r.st.incBlobsDropped()
		return wireBytes, true
	}

	newBuf.Header = blob.Header
	newBuf.Payload = blob.Payload

	old, replaced := r.cache.replaceOnUpdate(id, newBuf)
	if !replaced {
		// id was unsubscribed between the peek and the decode.
		r.cache.releaseUnusedAlloc(newBuf)
		r.st.incBlobsDropped()
		return wireBytes, true
	}
	if old != nil {
		r.cache.releaseBuffer(old)
	}

	r.st.incBlobsReceived(uint64(payloadBytes))
	return wireBytes, true
}

func wireBytesAvailable(pool *bufferPool, classIdx int) int {
	return pool.classes[classIdx].Size - wire.HeaderBytes
}
