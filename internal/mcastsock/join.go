package mcastsock

import (
	"net"

	"github.com/fcom-rt/fcom/internal/ferr"
	"golang.org/x/net/ipv4"
)

// joinLeave issues an IGMP join or leave for addr's group on conn,
// grounded on the same net.ListenMulticastUDP + golang.org/x/net/ipv4
// PacketConn pattern used for multicast listeners across the pack.
func joinLeave(conn *net.UDPConn, addr *net.UDPAddr, join bool) error {
	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: addr.IP}
	var err error
	if join {
		err = pc.JoinGroup(nil, group)
	} else {
		err = pc.LeaveGroup(nil, group)
	}
	if err != nil {
		return ferr.WrapSys("mcastsock: join/leave group", err)
	}
	return nil
}
