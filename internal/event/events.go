// Package event is the orchestrator's public notification surface: a
// typed publish/subscribe hub with one concrete event per category.
package event

import (
	"time"

	"chorus/internal/domain"
)

type Type string

const (
	TypeProducerScore        Type = "producer-score"
	TypeConsumerScore        Type = "consumer-score"
	TypeProducerAnnounced    Type = "ai-hook-producer"
	TypeExternalAI           Type = "ai-event"
	TypeStreamSent           Type = "ai-stream-sent"
	TypeConsumerSourceClosed Type = "consumer-producer-closed"
	TypeTransportState       Type = "transport-state"
	TypeWorkerDown           Type = "worker-down"
)

// Event is a typed event with an occurrence timestamp.
type Event interface {
	Type() Type
	Timestamp() time.Time
}

type base struct {
	At time.Time `json:"at"`
}

func (b base) Timestamp() time.Time { return b.At }

func now() base { return base{At: time.Now().UTC()} }

// ProducerScore reports a quality score for one producer, in the order
// the underlying transport reported them.
type ProducerScore struct {
	base
	Room     domain.RoomID     `json:"roomId"`
	Peer     domain.PeerID     `json:"peerId"`
	Producer domain.ProducerID `json:"producerId"`
	Score    int               `json:"score"`
}

func NewProducerScore(room domain.RoomID, peer domain.PeerID, producer domain.ProducerID, score int) ProducerScore {
	return ProducerScore{base: now(), Room: room, Peer: peer, Producer: producer, Score: score}
}

func (ProducerScore) Type() Type { return TypeProducerScore }

type ConsumerScore struct {
	base
	Room     domain.RoomID     `json:"roomId"`
	Peer     domain.PeerID     `json:"peerId"`
	Consumer domain.ConsumerID `json:"consumerId"`
	Score    int               `json:"score"`
}

func NewConsumerScore(room domain.RoomID, peer domain.PeerID, consumer domain.ConsumerID, score int) ConsumerScore {
	return ConsumerScore{base: now(), Room: room, Peer: peer, Consumer: consumer, Score: score}
}

func (ConsumerScore) Type() Type { return TypeConsumerScore }

// ProducerAnnounced fires when a new producer is created while the AI
// hook is enabled, before the stream metadata leaves the process.
type ProducerAnnounced struct {
	base
	Room     domain.RoomID     `json:"roomId"`
	Peer     domain.PeerID     `json:"peerId"`
	Producer domain.ProducerID `json:"producerId"`
	Kind     domain.MediaKind  `json:"kind"`
	Metadata domain.Metadata   `json:"metadata,omitempty"`
}

func NewProducerAnnounced(room domain.RoomID, peer domain.PeerID, producer domain.ProducerID, kind domain.MediaKind, md domain.Metadata) ProducerAnnounced {
	return ProducerAnnounced{base: now(), Room: room, Peer: peer, Producer: producer, Kind: kind, Metadata: md}
}

func (ProducerAnnounced) Type() Type { return TypeProducerAnnounced }

// StreamSent reports the outcome of one stream-metadata delivery to the
// AI endpoint. Failures carry the error text; they are never raised.
type StreamSent struct {
	base
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Room     domain.RoomID     `json:"roomId"`
	Peer     domain.PeerID     `json:"peerId"`
	Producer domain.ProducerID `json:"producerId"`
	Kind     domain.MediaKind  `json:"kind"`
	Metadata domain.Metadata   `json:"metadata,omitempty"`
}

func NewStreamSent(room domain.RoomID, peer domain.PeerID, producer domain.ProducerID, kind domain.MediaKind, md domain.Metadata, errText string) StreamSent {
	return StreamSent{
		base:     now(),
		Success:  errText == "",
		Error:    errText,
		Room:     room,
		Peer:     peer,
		Producer: producer,
		Kind:     kind,
		Metadata: md,
	}
}

func (StreamSent) Type() Type { return TypeStreamSent }

// ExternalAI relays an inbound AI-service event verbatim. The payload
// shape is unconstrained; nothing beyond relaying is done with it.
type ExternalAI struct {
	base
	Payload map[string]any `json:"payload"`
}

func NewExternalAI(payload map[string]any) ExternalAI {
	return ExternalAI{base: now(), Payload: payload}
}

func (ExternalAI) Type() Type { return TypeExternalAI }

// ConsumerSourceClosed fires when a consumer is removed because its
// source producer closed.
type ConsumerSourceClosed struct {
	base
	Room     domain.RoomID     `json:"roomId"`
	Peer     domain.PeerID     `json:"peerId"`
	Consumer domain.ConsumerID `json:"consumerId"`
}

func NewConsumerSourceClosed(room domain.RoomID, peer domain.PeerID, consumer domain.ConsumerID) ConsumerSourceClosed {
	return ConsumerSourceClosed{base: now(), Room: room, Peer: peer, Consumer: consumer}
}

func (ConsumerSourceClosed) Type() Type { return TypeConsumerSourceClosed }

// TransportState is a diagnostic for underlying secure-channel state
// changes. The transport is not closed because of it.
type TransportState struct {
	base
	Room      domain.RoomID      `json:"roomId"`
	Peer      domain.PeerID      `json:"peerId"`
	Transport domain.TransportID `json:"transportId"`
	State     string             `json:"state"`
}

func NewTransportState(room domain.RoomID, peer domain.PeerID, transport domain.TransportID, state string) TransportState {
	return TransportState{base: now(), Room: room, Peer: peer, Transport: transport, State: state}
}

func (TransportState) Type() Type { return TypeTransportState }

// WorkerDown reports an unexpected worker termination.
type WorkerDown struct {
	base
	Worker domain.WorkerID `json:"workerId"`
}

func NewWorkerDown(worker domain.WorkerID) WorkerDown {
	return WorkerDown{base: now(), Worker: worker}
}

func (WorkerDown) Type() Type { return TypeWorkerDown }
