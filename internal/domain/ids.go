// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxIDLen = 64

var (
	ErrIDEmpty   = errors.New("id empty")
	ErrIDTooLong = errors.New("id too long")
)

type (
	RoomID      string
	PeerID      string
	TransportID string
	ProducerID  string
	ConsumerID  string
	WorkerID    string
)

// ValidateID checks a caller-supplied identifier (room, peer, transport).
// Generated IDs (producer, consumer) never pass through here.
func ValidateID(id string) error {
	if len(id) == 0 {
		return ErrIDEmpty
	}
	if len(id) > MaxIDLen {
		return ErrIDTooLong
	}
	return nil
}

// Metadata is an open bag attached to producers and AI events.
// The core reads none of its fields; it only relays them.
type Metadata map[string]any
