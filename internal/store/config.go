package store

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fcom-rt/fcom/internal/ferr"
	"github.com/fcom-rt/fcom/internal/wire"
)

// DefaultPort is the FCOM multicast port, overridable by a ":port" suffix
// on the prefix string. All participating peers must agree on it.
const DefaultPort = 4586

// SizeClass is one bucket of the buffer pool's slab allocator. Size is the
// total allocation size in bytes, header included; the largest payload
// that fits is Size minus the fixed wire.HeaderBytes.
type SizeClass struct {
	Size   int
	Weight float64
}

// DefaultSizeClasses mirrors the class table size classes mentioned in
// spec.md §4.2 (64, 128, 512, 2048 bytes), with a weight distribution that
// favors the small classes since most feedback-control blobs are a
// handful of samples.
var DefaultSizeClasses = []SizeClass{
	{Size: 64, Weight: 0.5},
	{Size: 128, Weight: 0.25},
	{Size: 512, Weight: 0.15},
	{Size: 2048, Weight: 0.10},
}

// Config is FCOM's runtime configuration, decoded from JSON and validated
// by pkg/config against schemas/config.schema.json before use, mirroring
// internal/memorystore.MetricStoreConfig's Keys pattern.
type Config struct {
	// Prefix is "<ip>[:<port>]"; ip must be a valid IPv4 multicast
	// address whose low 11 bits (covering GIDMaxUsable) are zero.
	Prefix string `json:"prefix"`

	// NBufs is the total buffer budget distributed across size classes
	// by weight.
	NBufs int `json:"n_bufs"`

	// SizeClasses overrides DefaultSizeClasses if non-empty.
	SizeClasses []SizeClass `json:"size_classes,omitempty"`

	// ReceiverPriorityPercentile configures the receiver thread's
	// real-time priority as a percentile between the platform's min and
	// max real-time priority range (spec.md §4.5). Go does not expose
	// POSIX real-time scheduling directly; this is honored on a
	// best-effort basis (see DESIGN.md).
	ReceiverPriorityPercentile int `json:"receiver_priority_percentile,omitempty"`

	// ReceiveTimeoutMs bounds how long the receiver loop blocks in a
	// single ReceiveTimeout call before re-checking the shutdown flag.
	ReceiveTimeoutMs int `json:"receive_timeout_ms,omitempty"`

	// Nats optionally configures the replay/ingest bridge (see
	// internal/natsbridge); nil disables it.
	Nats *NatsBridgeConfig `json:"nats,omitempty"`
}

// NatsBridgeConfig configures the optional NATS-backed ingest bridge.
// Defined here (not in internal/natsbridge) so store.Config stays the one
// JSON document callers decode; cmd/fcget passes its fields to
// natsbridge.Dial.
type NatsBridgeConfig struct {
	Address string `json:"address"`
	Subject string `json:"subject"`
}

func (c *Config) sizeClasses() []SizeClass {
	if len(c.SizeClasses) > 0 {
		return c.SizeClasses
	}
	return DefaultSizeClasses
}

func (c *Config) receiveTimeoutMs() int {
	if c.ReceiveTimeoutMs > 0 {
		return c.ReceiveTimeoutMs
	}
	return 500
}

func (c *Config) receiverPriorityPercentile() int {
	if c.ReceiverPriorityPercentile > 0 {
		return c.ReceiverPriorityPercentile
	}
	return 80
}

// ParsedPrefix is the validated result of ParsePrefix.
type ParsedPrefix struct {
	IP   net.IP
	Port int
}

// ParsePrefix parses "<ip>[:<port>]", validates that ip is a multicast
// IPv4 address in 224.0.0.0/4 whose low bits covering GIDMaxUsable are
// zero (so that prefix|GID never carries into the host part of another
// prefix), exactly as fc_init.c does and as spec.md §4.8/§6 specify.
func ParsePrefix(spec string) (ParsedPrefix, error) {
	host, portStr, port := spec, "", DefaultPort
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		host, portStr = spec[:i], spec[i+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return ParsedPrefix{}, ferr.Newf(ferr.InvalidArg, "bad port %q: %v", portStr, err)
		}
		port = p
	}

	ip := net.ParseIP(host).To4()
	if ip == nil {
		return ParsedPrefix{}, ferr.Newf(ferr.InvalidArg, "not an IPv4 address: %q", host)
	}
	if !ip.IsMulticast() {
		return ParsedPrefix{}, ferr.Newf(ferr.InvalidArg, "not a multicast address: %s", ip)
	}

	mask := uint32(wire.GIDMaxUsable) // low GIDBits-worth of bits that must not overlap
	val := be32(ip)
	if val&mask != 0 {
		return ParsedPrefix{}, ferr.Newf(ferr.InvalidArg, "prefix %s overlaps GID bits (low %d bits must be zero)", ip, bitsFor(wire.GIDMaxUsable))
	}

	return ParsedPrefix{IP: ip, Port: port}, nil
}

// GroupAddr computes the destination address for gid: prefix | gid, in
// network byte order, at the configured port.
func (p ParsedPrefix) GroupAddr(gid uint32) *net.UDPAddr {
	val := be32(p.IP) | (gid & wire.GIDMaxUsable)
	ip := make(net.IP, 4)
	ip[0] = byte(val >> 24)
	ip[1] = byte(val >> 16)
	ip[2] = byte(val >> 8)
	ip[3] = byte(val)
	return &net.UDPAddr{IP: ip, Port: p.Port}
}

func be32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func bitsFor(max int) int {
	n := 0
	for (1 << n) <= max {
		n++
	}
	return n
}

func (c SizeClass) String() string {
	return fmt.Sprintf("class(size=%d,weight=%.2f)", c.Size, c.Weight)
}
