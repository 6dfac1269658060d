package store

import "github.com/fcom-rt/fcom/internal/mcastsock"

// gidRefcount tracks, per GID, how many distinct subscribed ids currently
// live in that group (spec.md §3 GidRefcount / §4.4). It joins the
// multicast group on the 0->1 transition and leaves on 1->0, clamping the
// socket-level membership to {0,1} regardless of how many ids share a
// GID.
type gidRefcount struct {
	counts map[uint32]int
	prefix ParsedPrefix
	sock   mcastsock.Socket
}

func newGidRefcount(prefix ParsedPrefix, sock mcastsock.Socket) *gidRefcount {
	return &gidRefcount{counts: make(map[uint32]int), prefix: prefix, sock: sock}
}

// incr bumps the refcount for gid, issuing a multicast join on the 0->1
// transition. Callers must hold L_sub.
func (g *gidRefcount) incr(gid uint32) error {
	n := g.counts[gid]
	if n == 0 && g.sock != nil {
		if err := g.sock.JoinGroup(g.prefix.GroupAddr(gid)); err != nil {
			return err
		}
	}
	g.counts[gid] = n + 1
	return nil
}

// decr drops the refcount for gid, issuing a multicast leave on the 1->0
// transition. Callers must hold L_sub.
func (g *gidRefcount) decr(gid uint32) error {
	n := g.counts[gid]
	if n <= 1 {
		delete(g.counts, gid)
		if n == 1 && g.sock != nil {
			return g.sock.LeaveGroup(g.prefix.GroupAddr(gid))
		}
		return nil
	}
	g.counts[gid] = n - 1
	return nil
}

func (g *gidRefcount) count(gid uint32) int {
	return g.counts[gid]
}
