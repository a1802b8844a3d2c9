package event

import (
	"netmux/transport"

	"github.com/pkg/errors"
)

var (
	ErrTruncated   = errors.New("payload too short")
	ErrBadVersion  = errors.New("unsupported wire version")
	ErrUnknownKind = errors.New("unknown event kind")
)

// Codec converts events to and from raw datagram payloads.
// Implementations must be safe for concurrent use: Encode runs on the
// sender worker while Decode runs on the tick thread.
type Codec interface {
	Encode(ev Event, target transport.Addr) (transport.Packet, error)
	Decode(payload []byte) (Event, error)
}

const wireVersion byte = 1

// Binary is the default codec: a two-byte header (version, kind)
// followed by the event data verbatim.
type Binary struct{}

var _ Codec = Binary{}

func (Binary) Encode(ev Event, target transport.Addr) (transport.Packet, error) {
	if !ev.Kind.valid() {
		return transport.Packet{}, errors.Wrapf(ErrUnknownKind, "%d", uint8(ev.Kind))
	}

	payload := make([]byte, 0, 2+len(ev.Data))
	payload = append(payload, wireVersion, byte(ev.Kind))
	payload = append(payload, ev.Data...)

	return transport.Packet{Dest: target, Payload: payload}, nil
}

func (Binary) Decode(payload []byte) (Event, error) {
	if len(payload) < 2 {
		return Event{}, errors.Wrapf(ErrTruncated, "%d bytes", len(payload))
	}
	if payload[0] != wireVersion {
		return Event{}, errors.Wrapf(ErrBadVersion, "%d", payload[0])
	}

	kind := Kind(payload[1])
	if !kind.valid() {
		return Event{}, errors.Wrapf(ErrUnknownKind, "%d", payload[1])
	}

	ev := Event{Kind: kind}
	if rest := payload[2:]; len(rest) > 0 {
		ev.Data = make([]byte, len(rest))
		copy(ev.Data, rest)
	}

	return ev, nil
}
