// Package mux bridges typed application events to an unreliable datagram
// transport. A System is driven by an external host scheduler: once per
// tick it forwards every connection's buffered outgoing events and drains
// a bounded number of inbound packets, matching them to connections or
// creating new ones for unknown senders.
//
// All blocking I/O is isolated behind two worker goroutines. The tick
// thread talks to them exclusively through unbounded queues, so a tick
// never blocks: its cost is bounded by the connection count and the
// configured per-tick packet budget.
package mux

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"netmux/config"
	"netmux/event"
	"netmux/lib/ds/queue"
	"netmux/transport"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// controlMessage flows from the tick thread to the sender worker.
type controlMessage interface {
	isControlMessage()
}

// sendEvents asks the sender worker to encode and transmit events to
// one target, preserving order.
type sendEvents struct {
	target transport.Addr
	events []event.Event
}

// stopSending ends the sender worker's current drain pass. Messages
// already queued behind it are picked up by the next pass, so repeated
// stops are harmless.
type stopSending struct{}

func (sendEvents) isControlMessage()  {}
func (stopSending) isControlMessage() {}

// System owns the datagram host and its two workers.
//
// Thread model: Tick runs on the host's scheduler thread, which is the
// sole owner of the Registry passed to it. The sender worker is the only
// consumer of the control queue; the receiver worker is the only producer
// of the inbound queue. Queue payloads transfer ownership, so no further
// locking is involved.
type System struct {
	host  transport.Host
	codec event.Codec

	filters []Filter

	control *queue.Unbounded[controlMessage]
	inbound *queue.Unbounded[transport.Packet]

	maxThroughput atomic.Int64

	logger *slog.Logger
	clock  clock.Clock

	senderDone   sync.WaitGroup
	receiverDone sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New binds cfg.BindAddr through binder and starts the workers.
// A bind failure is fatal: the error is returned and nothing runs.
func New(
	cfg config.Config,
	codec event.Codec,
	filters []Filter,
	binder transport.Binder,
	logger *slog.Logger,
	clk clock.Clock,
) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}

	if port, ok := bindPort(cfg.BindAddr); ok && port < 1024 {
		// Just a warning: the user may genuinely want a root port.
		logger.Warn("binding a port below 1024 requires elevated privileges",
			"addr", cfg.BindAddr,
		)
	}

	host, err := binder.Bind(cfg.BindAddr)
	if err != nil {
		return nil, errors.Wrap(err, "binding transport")
	}

	s := newSystem(host, codec, filters, cfg.MaxThroughput, logger, clk)
	s.start()

	return s, nil
}

// newSystem wires a system without starting the workers.
// Tests use it to inspect the queues deterministically.
func newSystem(
	host transport.Host,
	codec event.Codec,
	filters []Filter,
	maxThroughput int,
	logger *slog.Logger,
	clk clock.Clock,
) *System {
	s := &System{
		host:    host,
		codec:   codec,
		filters: filters,
		control: queue.NewUnbounded[controlMessage](),
		inbound: queue.NewUnbounded[transport.Packet](),
		logger:  logger.With("local", host.LocalAddr()),
		clock:   clk,
	}
	s.maxThroughput.Store(int64(maxThroughput))

	return s
}

func (s *System) start() {
	s.senderDone.Add(1)
	go func() {
		defer s.senderDone.Done()
		s.senderLoop()
	}()

	s.receiverDone.Add(1)
	go func() {
		defer s.receiverDone.Done()
		s.receiverLoop()
	}()
}

func bindPort(addr string) (uint16, bool) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// Not every transport uses host:port addresses.
		return 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(port), true
}

// MaxThroughput is the current per-tick packet budget.
func (s *System) MaxThroughput() int {
	return int(s.maxThroughput.Load())
}

// SetMaxThroughput changes the per-tick packet budget, taking effect on
// the next tick. Non-positive values are ignored.
func (s *System) SetMaxThroughput(n int) {
	if n <= 0 {
		s.logger.Warn("ignoring non-positive max throughput", "value", n)
		return
	}
	s.maxThroughput.Store(int64(n))
}

func (s *System) LocalAddr() transport.Addr { return s.host.LocalAddr() }

// Tick runs one dispatch pass over reg.
//
// Phase A forwards every Connected or Connecting connection's outgoing
// buffer to the sender worker, emptying the buffer, and emits a stop
// directive for every Disconnected connection. Disconnecting connections
// are left alone for this tick.
//
// Phase B drains at most MaxThroughput inbound packets, delivering each
// into the connection matching its source address. A packet from an
// unknown sender implicitly creates a Connecting connection and is
// delivered into it within the same tick. Excess packets stay queued.
func (s *System) Tick(reg *Registry) {
	start := s.clock.Now()

	for _, c := range reg.All() {
		switch c.State() {
		case StateConnected, StateConnecting:
			events := s.filterOutgoing(c.TakeOutgoing(), c.State())
			// Push even when empty: a control message per live
			// connection per tick keeps the worker's view current.
			if err := s.control.Push(sendEvents{target: c.Addr(), events: events}); err != nil {
				s.logger.Error("control queue closed, dropping outgoing events",
					"target", c.Addr(),
					"count", len(events),
				)
			}
		case StateDisconnected:
			if err := s.control.Push(stopSending{}); err != nil {
				s.logger.Error("control queue closed, dropping stop directive",
					"target", c.Addr(),
				)
			}
		case StateDisconnecting:
			// In teardown: neither forwarded nor stopped this tick.
		}
	}

	budget := s.MaxThroughput()
	processed := 0
	for processed < budget {
		p, err := s.inbound.TryDequeue()
		if err != nil {
			break
		}
		processed++
		s.deliver(reg, p)
	}

	s.logger.Debug("tick complete",
		"processed", processed,
		"connections", reg.Len(),
		"elapsed", s.clock.Since(start),
	)
}

func (s *System) deliver(reg *Registry, p transport.Packet) {
	c, ok := reg.Lookup(p.Source)
	if !ok {
		// Unknown sender: adopt it so this packet is not lost.
		// Note this lets any address spawn a connection; admission
		// control is the caller's concern via filters or Remove.
		created, err := reg.Create(p.Source)
		if err != nil {
			// Lookup just missed, so this cannot happen. Drop.
			return
		}
		s.logger.Info("created connection for unknown sender", "addr", p.Source)
		c = created
	}

	ev, err := s.codec.Decode(p.Payload)
	if err != nil {
		s.logger.Error("failed to decode incoming event",
			"error", err.Error(),
			"source", p.Source,
		)
		return
	}

	if !s.acceptIncoming(ev, c.State()) {
		return
	}

	c.pushIncoming(ev, s.clock.Now())
}

func (s *System) filterOutgoing(events []event.Event, state State) []event.Event {
	if len(s.filters) == 0 || len(events) == 0 {
		return events
	}

	kept := events[:0]
	for _, ev := range events {
		if s.accepts(ev, state) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func (s *System) acceptIncoming(ev event.Event, state State) bool {
	return s.accepts(ev, state)
}

func (s *System) accepts(ev event.Event, state State) bool {
	if ev.Kind.Lifecycle() {
		// Handshake traffic always passes.
		return true
	}
	for _, f := range s.filters {
		if !f.Accepts(ev, state) {
			return false
		}
	}
	return true
}

// senderLoop is the sole consumer of the control queue. Each pass blocks
// for one message, then drains whatever else is already queued without
// waiting for more. A stop directive abandons the rest of the pass only;
// the loop exits when the queue is closed and fully drained.
func (s *System) senderLoop() {
	for {
		msg, err := s.control.Recv()
		if err != nil {
			return
		}

		if stop := s.handleControl(msg); stop {
			continue
		}

		for {
			msg, err := s.control.TryDequeue()
			if err != nil {
				break
			}
			if stop := s.handleControl(msg); stop {
				break
			}
		}
	}
}

func (s *System) handleControl(msg controlMessage) (stop bool) {
	switch m := msg.(type) {
	case sendEvents:
		for _, ev := range m.events {
			s.sendEvent(ev, m.target)
		}
		return false
	case stopSending:
		return true
	default:
		return false
	}
}

// sendEvent encodes and transmits one event. Failures are logged and the
// event is abandoned: the transport is unreliable by contract, so losing
// one datagram here is indistinguishable from losing it on the wire.
func (s *System) sendEvent(ev event.Event, target transport.Addr) {
	p, err := s.codec.Encode(ev, target)
	if err != nil {
		s.logger.Error("failed to encode outgoing event",
			"error", err.Error(),
			"target", target,
			"kind", ev.Kind,
		)
		return
	}

	if err := s.host.Send(p); err != nil {
		s.logger.Error("failed to send datagram",
			"error", err.Error(),
			"target", target,
		)
	}
}

// receiverLoop is the sole producer of the inbound queue. It blocks on
// the host and forwards packet notifications in arrival order, each at
// most once. Anything else the transport surfaces is dropped with a
// warning.
func (s *System) receiverLoop() {
	for {
		note, err := s.host.Receive()
		if err != nil {
			if !errors.Is(err, transport.ErrHostClosed) {
				s.logger.Error("transport receive failed", "error", err.Error())
			}
			return
		}

		switch n := note.(type) {
		case transport.PacketNotification:
			if err := s.inbound.Push(n.Packet); err != nil {
				s.logger.Error("inbound queue closed, stopping receiver")
				return
			}
		default:
			s.logger.Warn("unsupported transport notification",
				"notification", notificationName(note),
			)
		}
	}
}

func notificationName(n transport.Notification) string {
	switch n.(type) {
	case transport.PacketNotification:
		return "packet"
	case transport.ConnectNotification:
		return "connect"
	case transport.TimeoutNotification:
		return "timeout"
	default:
		return "unknown"
	}
}

// Close shuts the system down and joins both workers: the control queue
// is closed (the sender finishes everything already queued), then the
// host (unblocking the receiver), then the inbound queue. Close is
// idempotent and safe to call concurrently with Tick finishing.
func (s *System) Close() error {
	s.closeOnce.Do(func() {
		var errs *multierror.Error

		s.control.Close()
		s.senderDone.Wait()

		if err := s.host.Close(); err != nil && !errors.Is(err, transport.ErrHostClosed) {
			errs = multierror.Append(errs, errors.Wrap(err, "closing host"))
		}
		s.receiverDone.Wait()

		s.inbound.Close()

		s.closeErr = errs.ErrorOrNil()
	})

	return s.closeErr
}
