// Package transport defines the datagram boundary the multiplexer sits on:
// an address-keyed, unreliable packet service. Implementations provide
// best-effort delivery only; ordering, deduplication and retransmission are
// left to the layers above.
package transport

import "errors"

var (
	ErrHostClosed  = errors.New("host is closed")
	ErrAddrInUse   = errors.New("address already in use")
	ErrUnsupported = errors.New("unsupported address type")
)

type Addr interface {
	// Network names the transport ("udp", "pipe").
	Network() string
	// String is the unique textual form of the address.
	// No two distinct endpoints may share it.
	String() string
}

// Packet is a single datagram. Payload bytes are owned by the receiver
// once the packet crosses the boundary; they are never aliased.
type Packet struct {
	Source Addr
	Dest   Addr

	Payload []byte
}

// Notification is an event surfaced by the receive side of a host.
// Only [PacketNotification] carries data; the rest are transport-level
// signals that upper layers may ignore.
type Notification interface {
	isNotification()
}

type PacketNotification struct {
	Packet Packet
}

// ConnectNotification signals transport-level contact from a peer
// without an accompanying payload.
type ConnectNotification struct {
	Addr Addr
}

// TimeoutNotification signals that a peer went silent past the
// transport's own liveness window.
type TimeoutNotification struct {
	Addr Addr
}

func (PacketNotification) isNotification()  {}
func (ConnectNotification) isNotification() {}
func (TimeoutNotification) isNotification() {}

// Host is a bound datagram endpoint.
//
// Send must not block the caller; it may fail only because the host was
// closed or the packet cannot be represented on this transport.
// Receive blocks until a notification arrives and returns
// [ErrHostClosed] once the host is closed.
type Host interface {
	Send(p Packet) error
	Receive() (Notification, error)

	LocalAddr() Addr
	Close() error
}

// Binder binds an address and hands back the resulting host.
// Bind failures are permanent; callers are not expected to retry.
type Binder interface {
	Bind(addr string) (Host, error)
}
