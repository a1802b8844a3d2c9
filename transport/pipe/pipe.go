// Package pipe implements an in-memory datagram network for tests.
// Delivery is in-order per sender pair, but the network can be made
// lossy through a drop hook, matching what an unreliable transport is
// allowed to do.
package pipe

import (
	"sync"

	"netmux/lib/ds/queue"
	"netmux/transport"

	"github.com/pkg/errors"
)

type Addr string

var _ transport.Addr = Addr("")

func (a Addr) Network() string { return "pipe" }
func (a Addr) String() string  { return string(a) }

// Network routes datagrams between endpoints bound on it.
type Network struct {
	mu        sync.Mutex
	endpoints map[Addr]*Endpoint

	// drop, when set, is consulted for every sent packet.
	// Returning true discards the packet without error.
	drop func(p transport.Packet) bool
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[Addr]*Endpoint)}
}

var _ transport.Binder = (*Network)(nil)

func (n *Network) SetDropFunc(f func(p transport.Packet) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = f
}

func (n *Network) Bind(addr string) (transport.Host, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	a := Addr(addr)
	if _, ok := n.endpoints[a]; ok {
		return nil, errors.Wrap(transport.ErrAddrInUse, addr)
	}

	ep := &Endpoint{
		network: n,
		addr:    a,
		inbox:   queue.NewUnbounded[transport.Notification](),
	}
	n.endpoints[a] = ep

	return ep, nil
}

// MustBind is a test convenience that panics on bind failure.
func (n *Network) MustBind(addr string) *Endpoint {
	host, err := n.Bind(addr)
	if err != nil {
		panic(err)
	}
	return host.(*Endpoint)
}

// Notify injects a raw transport notification into the endpoint bound
// at addr. It reports whether the endpoint exists and is open.
func (n *Network) Notify(addr string, note transport.Notification) bool {
	n.mu.Lock()
	ep, ok := n.endpoints[Addr(addr)]
	n.mu.Unlock()

	if !ok {
		return false
	}
	return ep.inbox.Push(note) == nil
}

func (n *Network) lookup(addr Addr) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[addr]
	return ep, ok
}

func (n *Network) dropFunc() func(p transport.Packet) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.drop
}

type Endpoint struct {
	network *Network
	addr    Addr

	inbox *queue.Unbounded[transport.Notification]

	mu     sync.Mutex
	closed bool
}

var _ transport.Host = (*Endpoint)(nil)

func (e *Endpoint) Send(p transport.Packet) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return transport.ErrHostClosed
	}

	dst, ok := p.Dest.(Addr)
	if !ok {
		return errors.Wrapf(transport.ErrUnsupported, "%T", p.Dest)
	}

	if p.Source == nil {
		p.Source = e.addr
	}

	if drop := e.network.dropFunc(); drop != nil && drop(p) {
		return nil
	}

	peer, ok := e.network.lookup(dst)
	if !ok {
		// Datagram into the void. Unreliable transports lose these silently.
		return nil
	}

	// Hand over an owned copy so payload bytes are never shared.
	owned := make([]byte, len(p.Payload))
	copy(owned, p.Payload)
	p.Payload = owned

	// Push failure means the peer closed concurrently; the datagram is lost.
	_ = peer.inbox.Push(transport.PacketNotification{Packet: p})
	return nil
}

func (e *Endpoint) Receive() (transport.Notification, error) {
	note, err := e.inbox.Recv()
	if err != nil {
		return nil, transport.ErrHostClosed
	}
	return note, nil
}

func (e *Endpoint) LocalAddr() transport.Addr { return e.addr }

func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return transport.ErrHostClosed
	}
	e.closed = true

	e.network.mu.Lock()
	delete(e.network.endpoints, e.addr)
	e.network.mu.Unlock()

	e.inbox.Close()
	return nil
}
