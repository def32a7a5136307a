package orch

import (
	"github.com/pion/webrtc/v4"

	"chorus/internal/app/graph"
	"chorus/internal/app/hook"
	"chorus/internal/core"
	"chorus/internal/domain"
	"chorus/internal/event"
)

// CreateProducer ingests a stream and, when the AI hook is enabled,
// announces it and forwards its metadata to the AI endpoint. Both side
// effects run after the producer already exists and cannot block or
// fail its creation.
func (o *Orchestrator) CreateProducer(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID, kind domain.MediaKind, codec webrtc.RTPCodecCapability, metadata domain.Metadata) (*graph.Producer, error) {
	producer, err := o.Graph.CreateProducer(roomID, peerID, transportID, kind, codec, metadata)
	if err != nil {
		return nil, err
	}

	if o.Hook != nil && o.Hook.Enabled() {
		o.Events.Publish(event.NewProducerAnnounced(roomID, peerID, producer.ID(), kind, metadata))
		o.Hook.SendStreamMetadata(hook.StreamMetadata{
			RoomID:     roomID,
			PeerID:     peerID,
			ProducerID: producer.ID(),
			Kind:       kind,
			Metadata:   metadata,
		})
	}
	return producer, nil
}

func (o *Orchestrator) CloseProducer(roomID domain.RoomID, peerID domain.PeerID, producerID domain.ProducerID) bool {
	return o.Graph.CloseProducer(roomID, peerID, producerID)
}

func (o *Orchestrator) CreateConsumer(roomID domain.RoomID, consumerPeerID, producerPeerID domain.PeerID, producerID domain.ProducerID, transportID domain.TransportID, caps core.RTPCapabilities) (*graph.Consumer, error) {
	return o.Graph.CreateConsumer(roomID, consumerPeerID, producerPeerID, producerID, transportID, caps)
}

func (o *Orchestrator) ResumeConsumer(roomID domain.RoomID, peerID domain.PeerID, consumerID domain.ConsumerID) bool {
	return o.Graph.ResumeConsumer(roomID, peerID, consumerID)
}

func (o *Orchestrator) PauseConsumer(roomID domain.RoomID, peerID domain.PeerID, consumerID domain.ConsumerID) bool {
	return o.Graph.PauseConsumer(roomID, peerID, consumerID)
}

// ReceiveAIEvent relays an out-of-band AI service event upward.
func (o *Orchestrator) ReceiveAIEvent(payload map[string]any) {
	if o.Hook != nil {
		o.Hook.ReceiveExternalEvent(payload)
	}
}

func (o *Orchestrator) HookStatus() hook.Status {
	if o.Hook == nil {
		return hook.StatusDisconnected
	}
	return o.Hook.Status()
}
