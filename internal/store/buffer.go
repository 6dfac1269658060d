package store

import (
	"sync"
	"sync/atomic"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
)

// Buffer is the internal container holding one decoded blob plus the
// bookkeeping spec.md §3 assigns to it. It is the unit the cache's hash
// table stores, and the unit refcounting governs.
//
// The cond-var pointer and set-membership slot conceptually belong to the
// *id*, not to whichever buffer currently occupies that id's cache slot;
// §4.5/§9 require them to migrate atomically on replace. Buffer carries
// them directly (rather than factoring out a separate per-id slot
// descriptor, which spec.md's design notes call out as the preferred
// fresh design) to stay close to the teacher's single-struct-per-entry
// layout in internal/memorystore/buffer.go; replaceOnUpdate (in
// subscription.go) is the one place that must remember to copy them across.
type Buffer struct {
	classIdx int

	Header wire.BlobHeader
	Payload wire.Payload

	subCnt     int32
	refCnt     int32
	updCnt     uint64
	cond       *sync.Cond // non-nil iff any nested subscriber requested sync-get
	waiters    int32      // count of goroutines currently blocked in sync-get on this id
	setNodeIdx int        // 0 iff this id is not a member of any blob-set

	id wire.BlobId
}

// newPlaceholderBuffer builds the minimum-size "subscribed but never
// received" buffer installed by subscribe on first-ever subscription to
// an id (spec.md §4.4 step 2).
func newPlaceholderBuffer(id wire.BlobId, classIdx int) *Buffer {
	return &Buffer{
		classIdx: classIdx,
		Header:   wire.BlobHeader{Version: wire.ProtoVersion, Type: wire.None, Id: id},
		Payload:  wire.Payload{Type: wire.None},
		refCnt:   1,
		id:       id,
	}
}

func (b *Buffer) hasData() bool {
	return b.Header.Type != wire.None
}

func (b *Buffer) addRef() {
	atomic.AddInt32(&b.refCnt, 1)
}

// release decrements refCnt and reports whether it reached zero (caller
// must then return the buffer to its class free list).
func (b *Buffer) release() bool {
	return atomic.AddInt32(&b.refCnt, -1) == 0
}

// BlobRef is the user-visible, refcounted handle returned by GetBlob.
// Exactly one Release call must be made per BlobRef obtained; Release on
// a nil BlobRef is a no-op, matching spec.md §8's round-trip property.
type BlobRef struct {
	buf *Buffer
	c   *cacheTable
}

func (r *BlobRef) Header() wire.BlobHeader { return r.buf.Header }
func (r *BlobRef) Payload() wire.Payload   { return r.buf.Payload }
func (r *BlobRef) UpdateCount() uint64     { return atomic.LoadUint64(&r.buf.updCnt) }

// Release returns the reference. Safe to call on a nil *BlobRef.
func (r *BlobRef) Release() {
	if r == nil || r.buf == nil {
		return
	}
	r.c.releaseBuffer(r.buf)
	r.buf = nil
}

// bufferPool is the fixed-size-class slab allocator from spec.md §4.2.
// Classes are ordered by ascending size; allocation scans linearly from
// smallest and never falls through to a larger class on a miss — it
// simply fails NoMemory (NoSpace is reserved for a payload no class can
// hold), mirroring the teacher's sync.Pool-per-bucket
// shape in internal/memorystore/buffer.go generalized to several buckets.
type bufferPool struct {
	classes []SizeClass
	free    [][]*Buffer // free[i] is class i's LIFO free list
	avail   []int32     // available count per class (for stats)
	total   []int32     // total ever allocated per class (for stats)
}

func newBufferPool(classes []SizeClass, nBufs int) *bufferPool {
	p := &bufferPool{
		classes: classes,
		free:    make([][]*Buffer, len(classes)),
		avail:   make([]int32, len(classes)),
		total:   make([]int32, len(classes)),
	}
	for i, c := range classes {
		n := int(float64(nBufs) * c.Weight)
		if n < 1 {
			n = 1
		}
		p.free[i] = make([]*Buffer, 0, n)
		for j := 0; j < n; j++ {
			p.free[i] = append(p.free[i], &Buffer{classIdx: i})
		}
		p.total[i] = int32(n)
		p.avail[i] = int32(n)
	}
	return p
}

// classFor returns the index of the smallest class whose payload capacity
// (class size minus the fixed wire header) can hold payloadBytes.
func (p *bufferPool) classFor(payloadBytes int) (int, error) {
	for i, c := range p.classes {
		if c.Size-wire.HeaderBytes >= payloadBytes {
			return i, nil
		}
	}
	return 0, ferr.Newf(ferr.NoSpace, "no buffer class holds %d payload bytes", payloadBytes)
}

// alloc returns a Buffer sized for payloadBytes with refCnt=1 and no
// cond-var/set-membership attached. Allocation does not fall through to a
// larger class if the best-fit class's free list is exhausted.
func (p *bufferPool) alloc(payloadBytes int, id wire.BlobId) (*Buffer, error) {
	classIdx, err := p.classFor(payloadBytes)
	if err != nil {
		return nil, err
	}

	free := p.free[classIdx]
	if n := len(free); n > 0 {
		b := free[n-1]
		p.free[classIdx] = free[:n-1]
		atomic.AddInt32(&p.avail[classIdx], -1)
		*b = Buffer{classIdx: classIdx, refCnt: 1, id: id}
		return b, nil
	}

	return nil, ferr.Newf(ferr.NoMemory, "class %d exhausted (size %d)", classIdx, p.classes[classIdx].Size)
}

// grow adds n fresh buffers to class classIdx's free list, the one
// runtime-safe way to add capacity (spec.md §4.2: "Adding chunks at
// runtime is permitted and thread-safe").
func (p *bufferPool) grow(classIdx, n int) {
	for i := 0; i < n; i++ {
		p.free[classIdx] = append(p.free[classIdx], &Buffer{classIdx: classIdx})
	}
	atomic.AddInt32(&p.avail[classIdx], int32(n))
	atomic.AddInt32(&p.total[classIdx], int32(n))
}

// releaseToFreeList prepends b back onto its class's free list. Callers
// must already own the cache lock and must have already observed
// refCnt==0.
func (p *bufferPool) releaseToFreeList(b *Buffer) {
	p.free[b.classIdx] = append(p.free[b.classIdx], b)
	atomic.AddInt32(&p.avail[b.classIdx], 1)
}
