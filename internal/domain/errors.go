package domain

import "errors"

// Lookup failures are ordinary outcomes callers branch on with errors.Is.
// Engine failures are wrapped with %w at the call site so they stay
// distinguishable from these sentinels.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")

	// ErrIncompatibleCapabilities means the routing context refused the
	// consumer's capabilities against the target producer.
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")

	// ErrDirectionMismatch means producing on a recv transport or
	// consuming on a send transport.
	ErrDirectionMismatch = errors.New("transport direction mismatch")
)
