package internal

import (
	"errors"
)

var (
	// ErrSessionFull is returned by the server when all 256 peer ids are taken.
	ErrSessionFull = errors.New("miditip: session full")

	// ErrMalformed is returned for bytes that do not decode to a message.
	ErrMalformed = errors.New("miditip: malformed message")
	// ErrUnknownMessage is returned for an unknown message type byte.
	ErrUnknownMessage = errors.New("miditip: unknown message type")
	// ErrUnexpectedMessage is returned when a valid message arrives in a
	// state that does not accept it, such as events before the handshake.
	ErrUnexpectedMessage = errors.New("miditip: unexpected message")

	ErrServerClosed = errors.New("miditip: server closed")
	ErrSlowPeer     = errors.New("miditip: peer outbound queue full")
)
