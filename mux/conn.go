package mux

import (
	"time"

	"netmux/event"
	"netmux/transport"

	"github.com/pkg/errors"
)

var ErrAddrInUse = errors.New("connection address already in use")

type State uint8

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// Conn is one logical endpoint, identified by its remote address.
// It is owned by the tick thread: none of its methods are safe for
// concurrent use, and none need to be. All cross-thread traffic goes
// through the system's queues instead.
type Conn struct {
	addr  transport.Addr
	state State

	outgoing []event.Event
	incoming []event.Event

	lastActivity time.Time
}

func (c *Conn) Addr() transport.Addr { return c.addr }
func (c *Conn) State() State         { return c.state }

func (c *Conn) SetState(s State) { c.state = s }

// Queue buffers events for the next tick's outbound pass.
func (c *Conn) Queue(evs ...event.Event) {
	c.outgoing = append(c.outgoing, evs...)
}

// TakeOutgoing empties the outgoing buffer and returns its contents.
// Each buffered event is returned by exactly one call.
func (c *Conn) TakeOutgoing() []event.Event {
	out := c.outgoing
	c.outgoing = nil
	return out
}

// Received empties the incoming buffer and returns its contents,
// in arrival order.
func (c *Conn) Received() []event.Event {
	in := c.incoming
	c.incoming = nil
	return in
}

// LastActivity is the time the connection last received an event.
// Zero until the first delivery.
func (c *Conn) LastActivity() time.Time { return c.lastActivity }

func (c *Conn) pushIncoming(ev event.Event, at time.Time) {
	c.incoming = append(c.incoming, ev)
	c.lastActivity = at
}

// Registry is the address-keyed collection of live connections.
// Like Conn, it belongs to the tick thread exclusively.
type Registry struct {
	byAddr map[string]*Conn

	// conns preserves creation order so a tick visits connections
	// deterministically.
	conns []*Conn
}

func NewRegistry() *Registry {
	return &Registry{byAddr: make(map[string]*Conn)}
}

// Create adds a connection for addr in state Connecting.
// No two live connections may share an address.
func (r *Registry) Create(addr transport.Addr) (*Conn, error) {
	key := addr.String()
	if _, ok := r.byAddr[key]; ok {
		return nil, errors.Wrap(ErrAddrInUse, key)
	}

	c := &Conn{addr: addr, state: StateConnecting}
	r.byAddr[key] = c
	r.conns = append(r.conns, c)

	return c, nil
}

func (r *Registry) Lookup(addr transport.Addr) (*Conn, bool) {
	c, ok := r.byAddr[addr.String()]
	return c, ok
}

// Remove drops the connection for addr, if any.
// Buffered events still owned by the connection are discarded.
func (r *Registry) Remove(addr transport.Addr) {
	key := addr.String()
	c, ok := r.byAddr[key]
	if !ok {
		return
	}

	delete(r.byAddr, key)
	for i, other := range r.conns {
		if other == c {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			break
		}
	}
}

// All returns the live connections in creation order.
// The slice is shared; callers must not modify it.
func (r *Registry) All() []*Conn { return r.conns }

func (r *Registry) Len() int { return len(r.conns) }
