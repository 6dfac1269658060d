package store

import (
	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
)

// phi32 is Knuth's multiplicative hash constant for 32-bit keys.
const phi32 = 2654435769

// hashTable is an open-addressed, linear-probe (step 1) table mapping
// blob id -> *Buffer, sized to a power of two at creation and never
// resized (spec.md §4.3). Deletion uses Robin Hood back-shift so no probe
// chain is ever broken by a hole.
type hashTable struct {
	entries []htEntry
	shift   uint // 32 - log2(capacity)
	count   int
}

type htEntry struct {
	occupied bool
	key      wire.BlobId
	value    *Buffer
}

// newHashTable creates a table with capacity rounded up to a power of two
// that is at least minCapacity (spec.md suggests >= 4x max expected
// entries to keep load factor <= 0.25).
func newHashTable(minCapacity int) *hashTable {
	cap := 1
	for cap < minCapacity {
		cap <<= 1
	}
	shift := uint(0)
	for (1 << shift) < cap {
		shift++
	}
	return &hashTable{
		entries: make([]htEntry, cap),
		shift:   32 - shift,
	}
}

func (h *hashTable) hash(key wire.BlobId) uint32 {
	return (uint32(key) * phi32) >> h.shift
}

func (h *hashTable) probeDistance(idealIdx, actualIdx int) int {
	n := len(h.entries)
	d := actualIdx - idealIdx
	if d < 0 {
		d += n
	}
	return d
}

// find returns the buffer stored for key, if any.
func (h *hashTable) find(key wire.BlobId) (*Buffer, bool) {
	n := len(h.entries)
	idx := int(h.hash(key))
	for dist := 0; dist < n; dist++ {
		slot := (idx + dist) % n
		e := &h.entries[slot]
		if !e.occupied {
			return nil, false
		}
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// add inserts key/value, failing Internal if key is already present.
func (h *hashTable) add(key wire.BlobId, value *Buffer) error {
	if _, ok := h.find(key); ok {
		return ferr.Newf(ferr.Internal, "hashtable: key %08x already exists", uint32(key))
	}
	return h.insert(key, value)
}

// replace installs value for key, returning the previously-stored value
// (nil if requireExisting is false and key was absent, in which case a
// fresh entry is created). If requireExisting is true and key is absent,
// IdNotFound is returned.
func (h *hashTable) replace(key wire.BlobId, value *Buffer, requireExisting bool) (*Buffer, error) {
	n := len(h.entries)
	idx := int(h.hash(key))
	for dist := 0; dist < n; dist++ {
		slot := (idx + dist) % n
		e := &h.entries[slot]
		if e.occupied && e.key == key {
			old := e.value
			e.value = value
			return old, nil
		}
		if !e.occupied {
			break
		}
	}
	if requireExisting {
		return nil, ferr.Newf(ferr.IdNotFound, "hashtable: key %08x not found", uint32(key))
	}
	return nil, h.insert(key, value)
}

func (h *hashTable) insert(key wire.BlobId, value *Buffer) error {
	n := len(h.entries)
	idx := int(h.hash(key))
	entry := htEntry{occupied: true, key: key, value: value}
	dist := 0
	slot := idx

	for i := 0; i < n; i++ {
		e := &h.entries[slot]
		if !e.occupied {
			*e = entry
			h.count++
			return nil
		}

		existingIdeal := int(h.hash(e.key))
		existingDist := h.probeDistance(existingIdeal, slot)
		if existingDist < dist {
			// Robin Hood: the richer (shorter-probed) entry yields its
			// slot to the poorer (longer-probed) one.
			h.entries[slot], entry = entry, h.entries[slot]
			dist = existingDist
		}
		dist++
		slot = (slot + 1) % n
	}
	return ferr.New(ferr.NoSpace, "hashtable: table full")
}

// delete removes key, failing IdNotFound if absent, then back-shifts
// successive entries to close the probe-chain gap (Robin Hood deletion:
// any entry whose own probe distance is > 0 can move up to fill the
// just-vacated slot without breaking anyone else's lookup).
func (h *hashTable) delete(key wire.BlobId) error {
	n := len(h.entries)
	idx := int(h.hash(key))
	slot := -1
	for dist := 0; dist < n; dist++ {
		s := (idx + dist) % n
		e := &h.entries[s]
		if !e.occupied {
			break
		}
		if e.key == key {
			slot = s
			break
		}
	}
	if slot == -1 {
		return ferr.Newf(ferr.IdNotFound, "hashtable: key %08x not found", uint32(key))
	}

	h.entries[slot] = htEntry{}
	h.count--

	cur := slot
	next := (slot + 1) % n
	for h.entries[next].occupied {
		nextIdeal := int(h.hash(h.entries[next].key))
		if h.probeDistance(nextIdeal, next) == 0 {
			break
		}
		h.entries[cur] = h.entries[next]
		h.entries[next] = htEntry{}
		cur = next
		next = (next + 1) % n
	}
	return nil
}

// destroy calls cleanup on every occupied entry, in table order.
func (h *hashTable) destroy(cleanup func(key wire.BlobId, value *Buffer)) {
	for i := range h.entries {
		if h.entries[i].occupied {
			cleanup(h.entries[i].key, h.entries[i].value)
		}
	}
	h.entries = nil
	h.count = 0
}
