package mux

import "netmux/event"

// Filter is an admission predicate applied to events crossing a
// connection boundary. An event passes only if every filter accepts it.
//
// Lifecycle events (connect/disconnect and their acks) bypass filters
// entirely: dropping a handshake would wedge the peer's state machine,
// so filters only ever see application traffic.
type Filter interface {
	Accepts(ev event.Event, state State) bool
}

type FilterFunc func(ev event.Event, state State) bool

var _ Filter = (FilterFunc)(nil)

func (f FilterFunc) Accepts(ev event.Event, state State) bool {
	return f(ev, state)
}

// ConnectedOnly rejects application traffic on connections that have
// not finished connecting.
func ConnectedOnly() Filter {
	return FilterFunc(func(_ event.Event, state State) bool {
		return state == StateConnected
	})
}
