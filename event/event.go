// Package event defines the typed events exchanged over a connection and
// the codec turning them into raw datagrams.
package event

import "fmt"

// Kind discriminates the event union. The lifecycle kinds drive
// connection state; Message carries application payload.
type Kind uint8

const (
	KindConnect Kind = iota + 1
	KindConnected
	KindDisconnect
	KindDisconnected
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindConnected:
		return "connected"
	case KindDisconnect:
		return "disconnect"
	case KindDisconnected:
		return "disconnected"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindConnect && k <= KindMessage
}

// Lifecycle reports whether the kind is part of the connection
// handshake rather than application traffic.
func (k Kind) Lifecycle() bool {
	return k >= KindConnect && k <= KindDisconnected
}

type Event struct {
	Kind Kind
	Data []byte
}

func Connect() Event      { return Event{Kind: KindConnect} }
func Connected() Event    { return Event{Kind: KindConnected} }
func Disconnect() Event   { return Event{Kind: KindDisconnect} }
func Disconnected() Event { return Event{Kind: KindDisconnected} }

func Message(data []byte) Event {
	return Event{Kind: KindMessage, Data: data}
}
