package store

import (
	"sync"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
)

// MaxSetMembers is spec.md §4.6's n <= 32 cardinality limit per set (a
// set's wait/got masks are 32 bits wide).
const MaxSetMembers = 32

// MaxSetNodes bounds the global set-node table (spec.md: "max cardinality
// ~255"), i.e. how many distinct ids may simultaneously participate in at
// least one blob-set.
const MaxSetNodes = 255

// WaitMode selects a blob-set's completion predicate.
type WaitMode int

const (
	Any WaitMode = iota
	All
)

// setMember is one (set, id) pairing. Members referencing the same id
// share a slot's intrusive linked list so an update to that id only has
// to walk the members that actually care about it.
type setMember struct {
	id   wire.BlobId
	set  *BlobSet
	bit  uint32
	blob *BlobRef
	next *setMember // next member of the same id's slot, possibly a different set
}

type setSlot struct {
	id   wire.BlobId
	head *setMember
}

// blobSetTable is the small global set-node indirection table spec.md
// §4.6/§9 describes: a fixed-size slot pool keyed by id, so a buffer's
// set-membership bookkeeping is a single small-integer index rather than
// a raw pointer.
type blobSetTable struct {
	c         *cacheTable
	slots     []setSlot // index 0 is sentinel/unused
	freeSlots []int
	byID      map[wire.BlobId]int
}

func newBlobSetTable(c *cacheTable) *blobSetTable {
	t := &blobSetTable{
		c:     c,
		slots: make([]setSlot, MaxSetNodes+1),
		byID:  make(map[wire.BlobId]int),
	}
	t.freeSlots = make([]int, 0, MaxSetNodes)
	for i := MaxSetNodes; i >= 1; i-- {
		t.freeSlots = append(t.freeSlots, i)
	}
	return t
}

// BlobSet is the multi-id rendezvous object from spec.md §4.6. Sets are
// single-waiter: at most one goroutine may be inside Wait at a time.
type BlobSet struct {
	c        *cacheTable
	cond     *sync.Cond
	waitFor  uint32
	gotSoFar uint32
	all      bool
	waiting  bool
	members  []*setMember
}

// AllocSet implements spec.md §4.6 allocate. All ids must already be
// subscribed; duplicates are rejected (caller error, not de-duplicated).
func (c *cacheTable) AllocSet(ids []wire.BlobId) (*BlobSet, error) {
	if len(ids) == 0 || len(ids) > MaxSetMembers {
		return nil, ferr.Newf(ferr.InvalidCount, "blob-set must have 1..%d members, got %d", MaxSetMembers, len(ids))
	}
	seen := make(map[wire.BlobId]bool, len(ids))
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, ferr.Newf(ferr.InvalidArg, "duplicate id %08x in blob-set", uint32(id))
		}
		seen[id] = true
	}

	c.muSub.Lock()
	defer c.muSub.Unlock()

	c.muCache.Lock()
	defer c.muCache.Unlock()

	set := &BlobSet{c: c}
	set.cond = sync.NewCond(&c.muCache)

	for i, id := range ids {
		buf, ok := c.ht.find(id)
		if !ok {
			c.sets.rollback(set)
			return nil, ferr.Newf(ferr.NotSubscribed, "id %08x is not subscribed", uint32(id))
		}

		slotIdx, ok := c.sets.byID[id]
		if !ok {
			if len(c.sets.freeSlots) == 0 {
				c.sets.rollback(set)
				return nil, ferr.New(ferr.NoSpace, "blob-set node table exhausted")
			}
			slotIdx = c.sets.freeSlots[len(c.sets.freeSlots)-1]
			c.sets.freeSlots = c.sets.freeSlots[:len(c.sets.freeSlots)-1]
			c.sets.slots[slotIdx] = setSlot{id: id}
			c.sets.byID[id] = slotIdx
			buf.setNodeIdx = slotIdx
		}

		m := &setMember{id: id, set: set, bit: 1 << uint(i)}
		m.next = c.sets.slots[slotIdx].head
		c.sets.slots[slotIdx].head = m
		set.members = append(set.members, m)
	}

	return set, nil
}

// rollback unlinks whatever members a partially-constructed set managed
// to attach before a later member failed validation. Caller holds both
// locks.
func (t *blobSetTable) rollback(set *BlobSet) {
	for _, m := range set.members {
		t.unlink(m)
	}
}

func (t *blobSetTable) unlink(m *setMember) {
	slotIdx, ok := t.byID[m.id]
	if !ok {
		return
	}
	slot := &t.slots[slotIdx]
	if slot.head == m {
		slot.head = m.next
	} else {
		for p := slot.head; p != nil; p = p.next {
			if p.next == m {
				p.next = m.next
				break
			}
		}
	}
	if slot.head == nil {
		delete(t.byID, m.id)
		t.freeSlots = append(t.freeSlots, slotIdx)
		if buf, ok := t.c.ht.find(m.id); ok {
			buf.setNodeIdx = 0
		}
	}
}

// onUpdateLocked is called from replaceOnUpdate, already holding muCache,
// once per received update. It implements §4.6's update path: every
// member of id whose bit is still in waitFor gets its attached reference
// swapped to the new buffer, and the set's cond is broadcast (with
// waitFor cleared to suppress further wakeups) once the completion
// predicate is met.
func (t *blobSetTable) onUpdateLocked(id wire.BlobId, newBuf *Buffer) {
	slotIdx, ok := t.byID[id]
	if !ok {
		return
	}
	for m := t.slots[slotIdx].head; m != nil; m = m.next {
		set := m.set
		if set.waitFor&m.bit == 0 {
			continue
		}
		if m.blob != nil {
			t.c.releaseBufferLocked(m.blob.buf)
		}
		newBuf.addRef()
		m.blob = &BlobRef{buf: newBuf, c: t.c}
		set.gotSoFar |= m.bit

		completed := false
		if set.all {
			completed = set.gotSoFar&set.waitFor == set.waitFor
		} else {
			completed = set.gotSoFar&set.waitFor != 0
		}
		if completed {
			set.cond.Broadcast()
			set.waitFor = 0
		}
	}
}

// Wait implements spec.md §4.6 wait. It blocks under the cache lock on
// the set's condition variable until waitMask's completion predicate is
// satisfied or timeout elapses.
func (s *BlobSet) Wait(waitMask uint32, mode WaitMode, timeout time.Duration) (result uint32, err error) {
	s.c.muCache.Lock()
	defer s.c.muCache.Unlock()

	if s.waiting {
		return 0, ferr.New(ferr.Unsupp, "blob-set is single-waiter; a wait is already in progress")
	}
	s.waiting = true
	defer func() { s.waiting = false }()

	s.waitFor = waitMask
	s.gotSoFar = 0
	s.all = mode == All

	// The predicate tests against waitMask, not s.waitFor: the update path
	// clears s.waitFor as soon as the set completes.
	deadline := time.Now().Add(timeout)
	satisfied := func() bool {
		if s.all {
			return s.gotSoFar&waitMask == waitMask
		}
		return s.gotSoFar&waitMask != 0
	}

	for !satisfied() {
		if timedWait(s.cond, deadline) {
			break
		}
	}

	s.waitFor = 0 // suppress late updates regardless of outcome
	result = s.gotSoFar

	if !satisfied() {
		return result, ferr.New(ferr.TimedOut, "blob-set wait timed out")
	}
	return result, nil
}

// Member returns the currently-attached blob reference for id within
// this set, or nil if none has arrived yet. The caller does not own this
// reference (the set releases it on the next update or on Free); call
// GetBlob separately to obtain an owned one.
func (s *BlobSet) Member(id wire.BlobId) *BlobRef {
	s.c.muCache.Lock()
	defer s.c.muCache.Unlock()
	for _, m := range s.members {
		if m.id == id {
			return m.blob
		}
	}
	return nil
}

// Free implements spec.md §4.6 free: releases attached references,
// unlinks every member, and returns any now-empty slot to the free list
// (unpinning that id for final unsubscribe). Fails IdInUse if a Wait is
// in flight.
func (s *BlobSet) Free() error {
	s.c.muSub.Lock()
	defer s.c.muSub.Unlock()

	s.c.muCache.Lock()
	defer s.c.muCache.Unlock()

	if s.waiting {
		return ferr.New(ferr.IdInUse, "blob-set has a wait in progress")
	}

	for _, m := range s.members {
		if m.blob != nil {
			s.c.releaseBufferLocked(m.blob.buf)
			m.blob = nil
		}
		s.c.sets.unlink(m)
	}
	s.members = nil
	return nil
}
