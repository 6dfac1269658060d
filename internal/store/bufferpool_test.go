package store

import (
	"testing"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/stretchr/testify/require"
)

func testClasses() []SizeClass {
	return []SizeClass{
		{Size: 64, Weight: 0.5},
		{Size: 128, Weight: 0.3},
		{Size: 512, Weight: 0.2},
	}
}

func TestBufferPoolAllocReleaseRoundTrip(t *testing.T) {
	pool := newBufferPool(testClasses(), 10)
	id := wire.MakeID(8, 1)

	b, err := pool.alloc(16, id)
	require.NoError(t, err)
	require.Equal(t, 0, b.classIdx)
	require.Equal(t, int32(1), b.refCnt)

	require.True(t, b.release())
	pool.releaseToFreeList(b)

	b2, err := pool.alloc(16, id)
	require.NoError(t, err)
	require.Same(t, b, b2)
}

func TestBufferPoolClassSelectionNoFallthrough(t *testing.T) {
	pool := newBufferPool(testClasses(), 10)

	// exhaust class 0 (64-byte)
	var allocated []*Buffer
	for {
		b, err := pool.alloc(16, wire.MakeID(8, 1))
		if err != nil {
			break
		}
		allocated = append(allocated, b)
	}
	require.NotEmpty(t, allocated)

	_, err := pool.alloc(16, wire.MakeID(8, 1))
	require.Error(t, err)
	require.Equal(t, ferr.NoMemory, ferr.KindOf(err))
}

func TestBufferPoolClassForNoSpace(t *testing.T) {
	pool := newBufferPool(testClasses(), 10)
	_, err := pool.classFor(10000)
	require.Error(t, err)
	require.Equal(t, ferr.NoSpace, ferr.KindOf(err))
}

func TestBufferPoolGrow(t *testing.T) {
	pool := newBufferPool(testClasses(), 1)
	classIdx, err := pool.classFor(16)
	require.NoError(t, err)

	before := pool.avail[classIdx]
	pool.grow(classIdx, 5)
	require.Equal(t, before+5, pool.avail[classIdx])
}

func TestBufferHasData(t *testing.T) {
	id := wire.MakeID(8, 1)
	b := newPlaceholderBuffer(id, 0)
	require.False(t, b.hasData())

	b.Header.Type = wire.UInt32
	require.True(t, b.hasData())
}

func TestBlobRefReleaseNilSafe(t *testing.T) {
	var ref *BlobRef
	require.NotPanics(t, func() { ref.Release() })
}
