package store

import "sync/atomic"

// stats holds the process-wide counters spec.md §6 exposes as the
// statistics namespace (fcomGetStats equivalent). All fields are updated
// with atomic ops so the hot receive/get paths never need to take a lock
// purely for bookkeeping.
type stats struct {
	blobsReceived   uint64
	blobsDropped    uint64 // decode error, unsubscribed id, or NoSpace on receive
	bytesReceived   uint64
	getBlobCalls    uint64
	getBlobTimeouts uint64
	subscribeCalls  uint64
	sendCalls       uint64
	sendErrors      uint64
}

func newStats() *stats { return &stats{} }

func (s *stats) incBlobsReceived(n uint64) { atomic.AddUint64(&s.blobsReceived, 1); atomic.AddUint64(&s.bytesReceived, n) }
func (s *stats) incBlobsDropped()          { atomic.AddUint64(&s.blobsDropped, 1) }
func (s *stats) incGetBlobCalls()          { atomic.AddUint64(&s.getBlobCalls, 1) }
func (s *stats) incGetBlobTimeouts()       { atomic.AddUint64(&s.getBlobTimeouts, 1) }
func (s *stats) incSubscribeCalls()        { atomic.AddUint64(&s.subscribeCalls, 1) }
func (s *stats) incSendCalls()             { atomic.AddUint64(&s.sendCalls, 1) }
func (s *stats) incSendErrors()            { atomic.AddUint64(&s.sendErrors, 1) }

// Snapshot is the point-in-time, race-free copy of stats returned to
// callers (and to the Prometheus bridge).
type Snapshot struct {
	BlobsReceived   uint64
	BlobsDropped    uint64
	BytesReceived   uint64
	GetBlobCalls    uint64
	GetBlobTimeouts uint64
	SubscribeCalls  uint64
	SendCalls       uint64
	SendErrors      uint64

	PoolAvail []int32
	PoolTotal []int32
}

func (s *stats) snapshot(pool *bufferPool) Snapshot {
	avail := make([]int32, len(pool.avail))
	total := make([]int32, len(pool.total))
	for i := range pool.avail {
		avail[i] = atomic.LoadInt32(&pool.avail[i])
		total[i] = atomic.LoadInt32(&pool.total[i])
	}
	return Snapshot{
		BlobsReceived:   atomic.LoadUint64(&s.blobsReceived),
		BlobsDropped:    atomic.LoadUint64(&s.blobsDropped),
		BytesReceived:   atomic.LoadUint64(&s.bytesReceived),
		GetBlobCalls:    atomic.LoadUint64(&s.getBlobCalls),
		GetBlobTimeouts: atomic.LoadUint64(&s.getBlobTimeouts),
		SubscribeCalls:  atomic.LoadUint64(&s.subscribeCalls),
		SendCalls:       atomic.LoadUint64(&s.sendCalls),
		SendErrors:      atomic.LoadUint64(&s.sendErrors),
		PoolAvail:       avail,
		PoolTotal:       total,
	}
}
