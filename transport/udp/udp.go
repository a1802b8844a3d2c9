// Package udp implements the transport boundary over a real UDP socket.
package udp

import (
	"net"
	"net/netip"

	"netmux/transport"

	"github.com/pkg/errors"
)

type Addr struct {
	ap netip.AddrPort
}

var _ transport.Addr = Addr{}

func AddrFrom(ap netip.AddrPort) Addr {
	return Addr{ap: ap}
}

// ResolveAddr parses a "host:port" literal into an Addr.
func ResolveAddr(s string) (Addr, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Addr{}, errors.Wrap(err, "parsing address")
	}
	return Addr{ap: ap}, nil
}

func (a Addr) Network() string          { return "udp" }
func (a Addr) String() string           { return a.ap.String() }
func (a Addr) Port() uint16             { return a.ap.Port() }
func (a Addr) AddrPort() netip.AddrPort { return a.ap }

const defaultReadBufferSize = 64 * 1024 // max UDP datagram

// Binder binds UDP sockets.
type Binder struct {
	// ReadBufferSize caps the size of a received datagram.
	// Zero means the 64KiB maximum.
	ReadBufferSize int
}

var _ transport.Binder = Binder{}

func (b Binder) Bind(addr string) (transport.Host, error) {
	local, err := ResolveAddr(addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolving bind address")
	}

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(local.ap))
	if err != nil {
		return nil, errors.Wrap(err, "binding udp socket")
	}

	bufSize := b.ReadBufferSize
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}

	// The socket may have been bound to an ephemeral port.
	bound := AddrFrom(conn.LocalAddr().(*net.UDPAddr).AddrPort())

	return &host{conn: conn, local: bound, bufSize: bufSize}, nil
}

type host struct {
	conn    *net.UDPConn
	local   Addr
	bufSize int
}

var _ transport.Host = (*host)(nil)

func (h *host) Send(p transport.Packet) error {
	dst, ok := p.Dest.(Addr)
	if !ok {
		return errors.Wrapf(transport.ErrUnsupported, "%T", p.Dest)
	}

	// UDP writes copy into the kernel buffer; they do not wait for the peer.
	if _, err := h.conn.WriteToUDPAddrPort(p.Payload, dst.ap); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrHostClosed
		}
		return errors.Wrap(err, "sending datagram")
	}

	return nil
}

func (h *host) Receive() (transport.Notification, error) {
	buf := make([]byte, h.bufSize)

	n, src, err := h.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrHostClosed
		}
		return nil, errors.Wrap(err, "receiving datagram")
	}

	return transport.PacketNotification{Packet: transport.Packet{
		Source:  AddrFrom(src),
		Dest:    h.local,
		Payload: buf[:n],
	}}, nil
}

func (h *host) LocalAddr() transport.Addr { return h.local }

func (h *host) Close() error {
	if err := h.conn.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrHostClosed
		}
		return errors.Wrap(err, "closing udp socket")
	}
	return nil
}
