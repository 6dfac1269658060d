// Package mcastsock is the (spec-out-of-scope) UDP multicast socket
// abstraction FCOM's receiver and sender are built against. spec.md
// assumes this layer is provided externally; this package gives it one
// concrete, real implementation so the rest of the module has something
// to compile and test against, grounded on the multicast-listener pattern
// used across the pack's networking examples (plain net.ListenMulticastUDP
// plus a read-deadline loop).
package mcastsock

import (
	"errors"
	"net"
	"time"

	"github.com/fcom-rt/fcom/internal/ferr"
)

// Socket is the minimal surface the receiver and sender need: send a
// datagram, receive one with a bounded timeout, and join/leave multicast
// groups. A single Socket owns both the RX and TX path internally.
type Socket interface {
	Send(addr *net.UDPAddr, data []byte) error
	ReceiveTimeout(buf []byte, timeout time.Duration) (n int, src *net.UDPAddr, err error)
	JoinGroup(addr *net.UDPAddr) error
	LeaveGroup(addr *net.UDPAddr) error
	Close() error
}

// UDPSocket is the production Socket backed by net.ListenMulticastUDP for
// RX (bound to the fixed FCOM port on all interfaces) and a plain,
// ephemeral-port UDP socket for TX, matching fc_init.c's RX/TX socket
// split (spec.md §4.8).
type UDPSocket struct {
	rx   *net.UDPConn
	tx   *net.UDPConn
	iface *net.Interface
}

// Open binds the RX socket to port on all interfaces and creates an
// ephemeral TX socket. iface may be nil to let the OS pick the
// multicast-capable interface.
func Open(port int, iface *net.Interface) (*UDPSocket, error) {
	rxAddr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	rx, err := net.ListenMulticastUDP("udp4", iface, rxAddr)
	if err != nil {
		return nil, ferr.WrapSys("mcastsock: listen multicast", err)
	}

	tx, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		rx.Close()
		return nil, ferr.WrapSys("mcastsock: open tx socket", err)
	}

	return &UDPSocket{rx: rx, tx: tx, iface: iface}, nil
}

func (s *UDPSocket) Send(addr *net.UDPAddr, data []byte) error {
	_, err := s.tx.WriteToUDP(data, addr)
	if err != nil {
		return ferr.WrapSys("mcastsock: send", err)
	}
	return nil
}

// ReceiveTimeout blocks for up to timeout waiting for one datagram.
// A timeout is reported as (0, nil, nil) so receiver loops can
// distinguish "nothing arrived, keep polling the shutdown flag" from a
// hard socket error.
func (s *UDPSocket) ReceiveTimeout(buf []byte, timeout time.Duration) (int, *net.UDPAddr, error) {
	if err := s.rx.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, ferr.WrapSys("mcastsock: set read deadline", err)
	}
	n, src, err := s.rx.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return 0, nil, nil
		}
		return 0, nil, ferr.WrapSys("mcastsock: receive", err)
	}
	return n, src, nil
}

// JoinGroup joins the RX socket to addr's multicast group. Go's net
// package join happens implicitly in ListenMulticastUDP per-group at
// listener creation on most platforms; for groups joined after Open the
// membership is added on the existing RX socket through
// golang.org/x/net/ipv4's PacketConn (see joinLeave in join.go).
func (s *UDPSocket) JoinGroup(addr *net.UDPAddr) error {
	// net.ListenMulticastUDP does not expose incremental joins on an
	// existing *net.UDPConn without the ipv4 package's PacketConn
	// wrapper, which joinLeave applies to s.rx.
	return joinLeave(s.rx, addr, true)
}

func (s *UDPSocket) LeaveGroup(addr *net.UDPAddr) error {
	return joinLeave(s.rx, addr, false)
}

func (s *UDPSocket) Close() error {
	txErr := s.tx.Close()
	rxErr := s.rx.Close()
	if rxErr != nil {
		return ferr.WrapSys("mcastsock: close rx", rxErr)
	}
	if txErr != nil {
		return ferr.WrapSys("mcastsock: close tx", txErr)
	}
	return nil
}
