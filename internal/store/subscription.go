package store

import (
	"sync"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
)

// SyncMode selects whether get-blob may block waiting for the next
// update (Sync) or only ever returns the cached value immediately
// (Async). spec.md §4.4: a single cond-var per id suffices for all
// nested subscribers regardless of their individual mode.
type SyncMode int

const (
	Async SyncMode = iota
	Sync
)

// cacheTable is the combined hash table + buffer pool + subscription
// registry + GID refcount, guarded by exactly the two process-wide locks
// spec.md §5 specifies: muSub (L_sub, serialises subscribe/unsubscribe
// and blob-set alloc/free) and muCache (L_cache, guards the hash table,
// buffer headers and pool free-lists, held briefly on every hot path).
// Lock order is muSub before muCache.
type cacheTable struct {
	muSub   sync.Mutex
	muCache sync.Mutex

	ht   *hashTable
	pool *bufferPool
	gids *gidRefcount
	sets *blobSetTable
	st   *stats
}

func newCacheTable(pool *bufferPool, minCapacity int, gids *gidRefcount, st *stats) *cacheTable {
	c := &cacheTable{
		ht:   newHashTable(minCapacity),
		pool: pool,
		gids: gids,
		st:   st,
	}
	c.sets = newBlobSetTable(c)
	return c
}

// Subscribe implements spec.md §4.4 subscribe.
func (c *cacheTable) Subscribe(id wire.BlobId, mode SyncMode) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.muSub.Lock()
	defer c.muSub.Unlock()

	c.muCache.Lock()
	buf, existed := c.ht.find(id)
	if !existed {
		nb, err := c.pool.alloc(0, id)
		if err != nil {
			c.muCache.Unlock()
			return err
		}
		*nb = *newPlaceholderBuffer(id, nb.classIdx)
		if err := c.ht.add(id, nb); err != nil {
			c.pool.releaseToFreeList(nb)
			c.muCache.Unlock()
			return err
		}
		buf = nb
	}
	buf.subCnt++
	if mode == Sync && buf.cond == nil {
		buf.cond = sync.NewCond(&c.muCache)
	}
	c.muCache.Unlock()

	if !existed {
		if err := c.gids.incr(id.GID()); err != nil {
			// roll back: the id's first subscription was never counted.
			c.muCache.Lock()
			buf.subCnt--
			if buf.subCnt == 0 {
				c.ht.delete(id)
				if buf.release() {
					c.pool.releaseToFreeList(buf)
				}
			}
			c.muCache.Unlock()
			return err
		}
	}
	return nil
}

// Unsubscribe implements spec.md §4.4 unsubscribe.
func (c *cacheTable) Unsubscribe(id wire.BlobId) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.muSub.Lock()
	defer c.muSub.Unlock()

	c.muCache.Lock()
	buf, ok := c.ht.find(id)
	if !ok {
		c.muCache.Unlock()
		return ferr.Newf(ferr.NotSubscribed, "id %08x not subscribed", uint32(id))
	}

	buf.subCnt--
	if buf.subCnt > 0 {
		c.muCache.Unlock()
		return nil
	}

	if buf.setNodeIdx != 0 {
		buf.subCnt++
		c.muCache.Unlock()
		return ferr.New(ferr.IdInUse, "id is a member of an active blob-set")
	}

	if buf.cond != nil {
		if buf.waiters > 0 {
			buf.subCnt++
			c.muCache.Unlock()
			return ferr.New(ferr.IdInUse, "a sync-get is still blocked on this id")
		}
		buf.cond = nil
	}

	if err := c.ht.delete(id); err != nil {
		c.muCache.Unlock()
		return err
	}
	lastRef := buf.release()
	if lastRef {
		c.pool.releaseToFreeList(buf)
	}
	c.muCache.Unlock()

	return c.gids.decr(id.GID())
}

// GetBlob implements spec.md §6 get-blob. timeout<=0 means "return the
// cached value immediately"; timeout>0 waits for the next update to id
// and returns that one, and on an id without an attached cond-var (i.e.
// subscribed Async) returns Unsupp, since blocking requires Sync mode.
func (c *cacheTable) GetBlob(id wire.BlobId, timeout time.Duration) (*BlobRef, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c.muCache.Lock()
	buf, ok := c.ht.find(id)
	if !ok {
		c.muCache.Unlock()
		return nil, ferr.Newf(ferr.NotSubscribed, "id %08x not subscribed", uint32(id))
	}

	if buf.hasData() && timeout <= 0 {
		buf.addRef()
		c.muCache.Unlock()
		return &BlobRef{buf: buf, c: c}, nil
	}

	if timeout <= 0 {
		c.muCache.Unlock()
		return nil, ferr.New(ferr.NoData, "subscribed but no data has ever arrived")
	}
	if buf.cond == nil {
		c.muCache.Unlock()
		return nil, ferr.New(ferr.Unsupp, "blocking get-blob requires a Sync subscription")
	}

	// Wait for a buffer newer than the one cached at call time. Each update
	// installs a new buffer (carrying cond and waiters across), so the
	// current one is looked up again after every wakeup.
	deadline := time.Now().Add(timeout)
	seen := buf
	buf.waiters++
	for buf == seen || !buf.hasData() {
		timedOut := timedWait(buf.cond, deadline)
		buf, _ = c.ht.find(id)
		if timedOut && (buf == seen || !buf.hasData()) {
			buf.waiters--
			c.muCache.Unlock()
			return nil, ferr.New(ferr.TimedOut, "no update arrived within timeout")
		}
	}
	buf.waiters--
	buf.addRef()
	c.muCache.Unlock()
	return &BlobRef{buf: buf, c: c}, nil
}

// releaseBuffer decrements refCnt and frees back to the pool on the last
// reference, matching spec.md §3's Buffer lifecycle.
func (c *cacheTable) releaseBuffer(buf *Buffer) {
	c.muCache.Lock()
	c.releaseBufferLocked(buf)
	c.muCache.Unlock()
}

// releaseBufferLocked is releaseBuffer for callers already holding
// muCache (the blob-set engine, which updates buffer references while
// processing an incoming update under the cache lock).
func (c *cacheTable) releaseBufferLocked(buf *Buffer) {
	if buf.release() {
		c.pool.releaseToFreeList(buf)
	}
}

// allocForReceive is the receiver's lock-guarded §4.5 step (b)-(c):
// look up id and, if subscribed, allocate a buffer sized for
// payloadBytes, as one muCache-held critical section. bufferPool's free
// lists are plain slices with no synchronisation of their own (spec.md
// §4.2/§5: allocation is O(1) under the cache-table lock) and alloc must
// never run concurrently with Subscribe/Unsubscribe's own pool access,
// so the lookup and the allocation cannot be split across two lock
// acquisitions with receiver-owned code running unguarded in between.
func (c *cacheTable) allocForReceive(id wire.BlobId, payloadBytes int) (buf *Buffer, subscribed bool, err error) {
	c.muCache.Lock()
	defer c.muCache.Unlock()

	if _, ok := c.ht.find(id); !ok {
		return nil, false, nil
	}

	buf, err = c.pool.alloc(payloadBytes, id)
	return buf, true, err
}

// releaseUnusedAlloc returns a buffer allocated by allocForReceive back
// to its class free list under the cache lock, for the case where the
// blob was allocated but never installed (decode failure, or the id was
// unsubscribed before replaceOnUpdate ran).
func (c *cacheTable) releaseUnusedAlloc(buf *Buffer) {
	c.muCache.Lock()
	c.pool.releaseToFreeList(buf)
	c.muCache.Unlock()
}

// replaceOnUpdate implements §4.5 step (e)/(f): swap newBuf into id's
// cache slot if it is still occupied, migrating subCnt/cond/set-index
// from the displaced buffer and broadcasting waiters. Returns the
// displaced buffer (nil if the replace was declined because the id had
// been unsubscribed meanwhile) and whether the replace happened.
func (c *cacheTable) replaceOnUpdate(id wire.BlobId, newBuf *Buffer) (old *Buffer, replaced bool) {
	c.muCache.Lock()
	defer c.muCache.Unlock()

	cur, ok := c.ht.find(id)
	if !ok {
		return nil, false
	}

	newBuf.subCnt = cur.subCnt
	newBuf.setNodeIdx = cur.setNodeIdx
	newBuf.cond = cur.cond
	newBuf.waiters = cur.waiters
	newBuf.updCnt = cur.updCnt + 1

	if _, err := c.ht.replace(id, newBuf, true); err != nil {
		return nil, false
	}

	// Open Question resolution (see DESIGN.md): sync-get wakers are
	// signalled before blob-set completions.
	if newBuf.cond != nil {
		newBuf.cond.Broadcast()
	}
	c.sets.onUpdateLocked(id, newBuf)

	return cur, true
}
