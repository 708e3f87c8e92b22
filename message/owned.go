package message

import "github.com/google/uuid"

// Sender is the minimal capability an OwnedMessage needs from the connection
// that produced it: a stable handle plus the ability to reply. Defined here
// (rather than importing the transport package) to avoid a cycle — the
// transport.Connection type implements this interface.
type Sender[K comparable] interface {
	ID() uuid.UUID
	RemoteAddr() string
	Send(Message[K])
	IsConnected() bool
}

// OwnedMessage pairs a Message with the connection that produced it. On the
// server side Sender is always non-nil (the client that sent the message);
// on the client side Sender is always nil, since a client has exactly one peer.
type OwnedMessage[K comparable] struct {
	Sender  Sender[K]
	Message Message[K]
}
