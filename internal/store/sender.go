package store

import (
	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/mcastsock"
	"github.com/fcom-rt/fcom/internal/wire"
)

// maxSendBytes bounds a single outgoing datagram; callers exceeding it in
// one SendBlobs call get NoSpace rather than a silently truncated send.
const maxSendBytes = 65536

// sender implements spec.md §4.7 publish: encode one or more blobs
// destined for the same GID into a single message-framed datagram and
// multicast it to prefix|GID. Grounded on fc_send.c's single-group-per-
// message framing; the NATS-bridge ingest path (internal/natsbridge)
// reuses this type for test/replay publishing so both paths share one
// wire-correctness story.
type sender struct {
	sock   mcastsock.Socket
	prefix ParsedPrefix
	st     *stats
}

func newSender(sock mcastsock.Socket, prefix ParsedPrefix, st *stats) *sender {
	return &sender{sock: sock, prefix: prefix, st: st}
}

// wildcardGID marks a Group allocated without a fixed destination GID
// (spec.md §4.7 alloc_group: "records the GID derived from the id, or
// wildcard if ANY"); the first AddBlob call fixes it.
const wildcardGID = 0

// Group is the send-side counterpart of BlobSet (internal/store/blobset.go):
// spec.md §4.7's alloc_group/add_blob/put_group builder, accumulating
// blobs destined for one GID into a single message-framed datagram
// before sending it as one multicast write.
type Group struct {
	s        *sender
	gid      uint32
	gidFixed bool
	buf      []byte
	byteOff  int
	count    int
	done     bool
}

// AllocGroup implements spec.md §4.7 alloc_group: allocates the packet
// buffer and writes the initial message-header state. id's GID fixes
// the group's destination unless it is the wildcard (GID 0), in which
// case the first AddBlob call fixes it instead.
func (s *sender) AllocGroup(id wire.BlobId) (*Group, error) {
	g := &Group{s: s, buf: make([]byte, maxSendBytes)}
	if gid := id.GID(); gid != wildcardGID {
		g.gid = gid
		g.gidFixed = true
	}

	off, err := wire.EncodeMsgHeader(g.buf, 0)
	if err != nil {
		return nil, err
	}
	g.byteOff = off * 4
	return g, nil
}

// AddBlob implements spec.md §4.7 add_blob: encodes blob into the
// group's buffer, fixing the group's GID from the first blob added if
// the group was allocated wildcard. A GID mismatch against an already
// fixed group is InvalidArg. Duplicate ids within one group are an
// unchecked programming error per spec, not validated here.
func (g *Group) AddBlob(blob wire.Blob) error {
	if g.done {
		return ferr.New(ferr.Unsupp, "add_blob: group already put")
	}

	gid := blob.Header.Id.GID()
	if !g.gidFixed {
		g.gid = gid
		g.gidFixed = true
	} else if gid != g.gid {
		return ferr.New(ferr.InvalidArg, "add_blob: blob GID does not match group")
	}

	n, err := wire.EncodeBlob(g.buf[g.byteOff:], &blob)
	if err != nil {
		return err
	}
	g.byteOff += n * 4
	g.count++
	return nil
}

// PutGroup implements spec.md §4.7 put_group: finalises the header
// (version and final blob-count), computes the destination multicast
// address from the fixed GID and sends the datagram. The group is
// consumed regardless of send outcome; calling PutGroup twice is Unsupp.
func (g *Group) PutGroup() error {
	if g.done {
		return ferr.New(ferr.Unsupp, "put_group: group already put")
	}
	g.done = true

	if g.count == 0 {
		return ferr.New(ferr.InvalidCount, "put_group: no blobs added")
	}

	if _, err := wire.EncodeMsgHeader(g.buf, g.count); err != nil {
		g.s.st.incSendErrors()
		return err
	}

	g.s.st.incSendCalls()
	if err := g.s.sock.Send(g.s.prefix.GroupAddr(g.gid), g.buf[:g.byteOff]); err != nil {
		g.s.st.incSendErrors()
		return err
	}
	return nil
}

// SendBlob implements spec.md §4.7 put_blob: a one-member group sent
// with an encoder that skips the generic Group's append bookkeeping.
func (s *sender) SendBlob(id wire.BlobId, payload wire.Payload) error {
	blob := wire.Blob{Header: wire.BlobHeader{Id: id, Version: wire.ProtoVersion}, Payload: payload}

	buf := make([]byte, maxSendBytes)
	off, err := wire.EncodeMsgHeader(buf, 1)
	if err != nil {
		s.st.incSendErrors()
		return err
	}
	byteOff := off * 4

	n, err := wire.EncodeBlob(buf[byteOff:], &blob)
	if err != nil {
		s.st.incSendErrors()
		return err
	}
	byteOff += n * 4

	s.st.incSendCalls()
	if err := s.sock.Send(s.prefix.GroupAddr(id.GID()), buf[:byteOff]); err != nil {
		s.st.incSendErrors()
		return err
	}
	return nil
}

// SendBlobs is a convenience wrapper over AllocGroup/AddBlob/PutGroup
// for callers that already have every blob in hand and just want one
// message sent. All blobs must share the same GID (spec.md §4.7: a
// multicast message targets exactly one group); callers wanting to fan
// out across GIDs must call SendBlobs once per group, or use the Group
// builder directly for incremental assembly.
func (s *sender) SendBlobs(blobs []wire.Blob) error {
	if len(blobs) == 0 {
		return ferr.New(ferr.InvalidCount, "send: no blobs given")
	}

	g, err := s.AllocGroup(blobs[0].Header.Id)
	if err != nil {
		return err
	}
	for i := range blobs {
		if err := g.AddBlob(blobs[i]); err != nil {
			return err
		}
	}
	return g.PutGroup()
}
