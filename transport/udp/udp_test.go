package udp

import (
	"testing"
	"time"

	"netmux/transport"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestResolveAddr(t *testing.T) {
	addr, err := ResolveAddr("127.0.0.1:4567")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:4567", addr.String())
	require.Equal(t, uint16(4567), addr.Port())
	require.Equal(t, "udp", addr.Network())

	_, err = ResolveAddr("not-an-address")
	require.Error(t, err)

	_, err = ResolveAddr("127.0.0.1")
	require.Error(t, err)
}

type UDPHostTestSuite struct {
	suite.Suite

	h1, h2 transport.Host
}

func TestUDPHostTestSuite(t *testing.T) {
	suite.Run(t, new(UDPHostTestSuite))
}

func (s *UDPHostTestSuite) SetupTest() {
	var err error

	// Port 0 lets the kernel pick; LocalAddr reports the bound port.
	s.h1, err = Binder{}.Bind("127.0.0.1:0")
	s.Require().NoError(err)

	s.h2, err = Binder{}.Bind("127.0.0.1:0")
	s.Require().NoError(err)
}

func (s *UDPHostTestSuite) TearDownTest() {
	for _, h := range []transport.Host{s.h1, s.h2} {
		if err := h.Close(); err != nil {
			s.ErrorIs(err, transport.ErrHostClosed)
		}
	}
}

func (s *UDPHostTestSuite) receive(h transport.Host) (transport.Notification, error) {
	type result struct {
		note transport.Notification
		err  error
	}

	got := make(chan result, 1)
	go func() {
		note, err := h.Receive()
		got <- result{note, err}
	}()

	select {
	case r := <-got:
		return r.note, r.err
	case <-time.After(time.Second):
		s.FailNow("timeout exceeded")
		return nil, nil
	}
}

func (s *UDPHostTestSuite) TestSendReceive() {
	err := s.h1.Send(transport.Packet{
		Dest:    s.h2.LocalAddr(),
		Payload: []byte("over the loopback"),
	})
	s.Require().NoError(err)

	note, err := s.receive(s.h2)
	s.Require().NoError(err)

	pn, ok := note.(transport.PacketNotification)
	s.Require().True(ok)
	s.Equal([]byte("over the loopback"), pn.Packet.Payload)
	s.Equal(s.h1.LocalAddr().String(), pn.Packet.Source.String())
}

func (s *UDPHostTestSuite) TestSendUnsupportedAddr() {
	err := s.h1.Send(transport.Packet{Dest: nil, Payload: []byte("x")})
	s.ErrorIs(err, transport.ErrUnsupported)
}

func (s *UDPHostTestSuite) TestBindFailure() {
	_, err := Binder{}.Bind("not-an-address")
	s.Error(err)

	// Binding the same port twice fails outright; no retry happens.
	_, err = Binder{}.Bind(s.h1.LocalAddr().String())
	s.Error(err)
}

func (s *UDPHostTestSuite) TestCloseUnblocksReceive() {
	done := make(chan error, 1)
	go func() {
		_, err := s.h1.Receive()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.h1.Close())

	select {
	case err := <-done:
		s.ErrorIs(err, transport.ErrHostClosed)
	case <-time.After(time.Second):
		s.FailNow("timeout exceeded")
	}

	s.ErrorIs(s.h1.Send(transport.Packet{Dest: s.h2.LocalAddr()}), transport.ErrHostClosed)
}
