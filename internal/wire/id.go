// Package wire implements the FCOM XDR wire codec: blob headers, typed
// payload arrays and group (message) framing, all as a big-endian
// 32-bit-word stream. It has no knowledge of subscriptions, caching or
// transport — it only turns a Blob into bytes and back.
package wire

import "github.com/fcom-rt/fcom/internal/ferr"

// ProtoMajor/ProtoMinor are embedded in every wire header and in every
// BlobId's high nibble. A major-version mismatch is always a decode
// error; minor versions are not compared, so any minor within the same
// major is accepted.
const (
	ProtoMajor   = 1
	ProtoMinor   = 1
	ProtoVersion = byte(ProtoMajor<<4 | ProtoMinor) // 0x11
)

// BlobId partitions: high 4 bits major version, next 12 bits GID, low 16
// bits SID.
const (
	GIDBits = 12
	SIDBits = 16

	GIDMin = 8
	GIDMax = 1<<GIDBits - 1 // 4095, but spec further restricts the usable range to 2047
	SIDMin = 8
	SIDMax = 1<<SIDBits - 1 // 65535

	GIDMaxUsable = 2047
)

// BlobId is the opaque 32-bit tag identifying a blob. Construction and
// extraction must go through MakeID/Major/GID/SID — callers never build
// one by hand.
type BlobId uint32

// MakeID packs a GID and SID using the current protocol's major version.
func MakeID(gid, sid uint32) BlobId {
	return BlobId(uint32(ProtoMajor&0xF)<<28 | (gid&0xFFF)<<16 | (sid & 0xFFFF))
}

// MakeIDVersioned builds an id embedding an explicit major version,
// used only by tests that need to construct a deliberately-mismatched id.
func MakeIDVersioned(major, gid, sid uint32) BlobId {
	return BlobId(uint32(major&0xF)<<28 | (gid&0xFFF)<<16 | (sid & 0xFFFF))
}

func (id BlobId) Major() uint32 { return uint32(id) >> 28 }
func (id BlobId) GID() uint32   { return (uint32(id) >> 16) & 0xFFF }
func (id BlobId) SID() uint32   { return uint32(id) & 0xFFFF }

// Validate checks the major version and the GID/SID ranges per spec.md
// §8's boundary behaviour table. gid=0 and sid=0 are rejected: both are
// outside [GIDMin,GIDMaxUsable] and [SIDMin,SIDMax] respectively, so a
// zero-valued id component is always InvalidId, never a wildcard match.
func (id BlobId) Validate() error {
	if id.Major() != ProtoMajor {
		return ferr.Newf(ferr.BadVersion, "id %08x carries major version %d, want %d", uint32(id), id.Major(), ProtoMajor)
	}
	gid, sid := id.GID(), id.SID()
	if gid < GIDMin || gid > GIDMaxUsable {
		return ferr.Newf(ferr.InvalidId, "gid %d out of range [%d,%d]", gid, GIDMin, GIDMaxUsable)
	}
	if sid < SIDMin || sid > SIDMax {
		return ferr.Newf(ferr.InvalidId, "sid %d out of range [%d,%d]", sid, SIDMin, SIDMax)
	}
	return nil
}
