// Package natsbridge is an optional ingest/replay bridge: it lets a test
// harness or a replay tool publish blob updates over NATS instead of
// real multicast, with the bridge decoding them and re-publishing onto
// FCOM's multicast group through the normal sender path. It is not part
// of the wire protocol; cmd/fcget dials it only when the config has a
// nats section. Grounded on pkg/nats/client.go's singleton-connection shape,
// adapted from its fire-and-forget Publish/Subscribe pattern to a
// decode-then-republish one.
package natsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/fcom-rt/fcom/internal/store"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/fcom-rt/fcom/pkg/log"
	"github.com/nats-io/nats.go"
)

// Message is the JSON envelope a replay/ingest client sends over NATS:
// a single blob update addressed by GID/SID, carrying a typed payload.
type Message struct {
	GID    uint32    `json:"gid"`
	SID    uint32    `json:"sid"`
	Type   string    `json:"type"`
	Float32s []float32 `json:"float32,omitempty"`
	Float64s []float64 `json:"float64,omitempty"`
	UInt32s  []uint32  `json:"uint32,omitempty"`
	Int32s   []int32   `json:"int32,omitempty"`
	Int8s    []int8    `json:"int8,omitempty"`
}

// Bridge subscribes to a NATS subject and republishes decoded updates
// through rt.
type Bridge struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	rt      *store.Runtime
}

// Dial connects to address and subscribes to subject, forwarding every
// decoded Message to rt.SendBlob. The connection and subscription are
// torn down by Close.
func Dial(address, subject string, rt *store.Runtime) (*Bridge, error) {
	conn, err := nats.Connect(address,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("fcom: natsbridge: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("fcom: natsbridge: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connect: %w", err)
	}

	b := &Bridge{conn: conn, subject: subject, rt: rt}

	sub, err := conn.Subscribe(subject, b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsbridge: subscribe to %q: %w", subject, err)
	}
	b.sub = sub

	log.Infof("fcom: natsbridge: subscribed to %q at %s", subject, address)
	return b, nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		log.Warnf("fcom: natsbridge: bad message on %q: %v", msg.Subject, err)
		return
	}

	payload, err := m.payload()
	if err != nil {
		log.Warnf("fcom: natsbridge: %v", err)
		return
	}

	id := wire.MakeID(m.GID, m.SID)
	if err := b.rt.SendBlob(id, payload); err != nil {
		log.Warnf("fcom: natsbridge: send id %08x: %v", uint32(id), err)
	}
}

func (m *Message) payload() (wire.Payload, error) {
	switch m.Type {
	case "float32":
		return wire.Payload{Type: wire.Float32, F32: m.Float32s}, nil
	case "float64":
		return wire.Payload{Type: wire.Float64, F64: m.Float64s}, nil
	case "uint32":
		return wire.Payload{Type: wire.UInt32, U32: m.UInt32s}, nil
	case "int32":
		return wire.Payload{Type: wire.Int32, I32: m.Int32s}, nil
	case "int8":
		return wire.Payload{Type: wire.Int8, I8: m.Int8s}, nil
	default:
		return wire.Payload{}, fmt.Errorf("natsbridge: unknown payload type %q", m.Type)
	}
}

// Publish sends an FCOM update as a replay message to the bridge's
// subject, the inverse direction (FCOM -> NATS), useful for recording a
// live session for later replay.
func (b *Bridge) Publish(gid, sid uint32, p wire.Payload) error {
	m := Message{GID: gid, SID: sid}
	switch p.Type {
	case wire.Float32:
		m.Type, m.Float32s = "float32", p.F32
	case wire.Float64:
		m.Type, m.Float64s = "float64", p.F64
	case wire.UInt32:
		m.Type, m.UInt32s = "uint32", p.U32
	case wire.Int32:
		m.Type, m.Int32s = "int32", p.I32
	case wire.Int8:
		m.Type, m.Int8s = "int8", p.I8
	default:
		return fmt.Errorf("natsbridge: unsupported payload type %v", p.Type)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("natsbridge: marshal: %w", err)
	}
	return b.conn.Publish(b.subject, data)
}

// Close unsubscribes and closes the NATS connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Warnf("fcom: natsbridge: unsubscribe: %v", err)
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
