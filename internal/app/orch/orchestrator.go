// Package orch composes the session graph, the worker pool, the AI
// hook and the event hub behind the public session API.
package orch

import (
	"chorus/internal/app/graph"
	"chorus/internal/app/hook"
	"chorus/internal/app/pool"
	"chorus/internal/domain"
	"chorus/internal/event"
)

type Orchestrator struct {
	Graph  *graph.SessionGraph
	Pool   *pool.WorkerPool
	Hook   *hook.Notifier
	Events *event.Hub
}

func (o *Orchestrator) CreateRoom(id domain.RoomID) (*graph.Room, error) {
	return o.Graph.CreateRoom(id)
}

func (o *Orchestrator) CloseRoom(id domain.RoomID) bool {
	return o.Graph.CloseRoom(id)
}

func (o *Orchestrator) CreatePeer(roomID domain.RoomID, peerID domain.PeerID) (*graph.Peer, error) {
	return o.Graph.CreatePeer(roomID, peerID)
}

func (o *Orchestrator) ClosePeer(roomID domain.RoomID, peerID domain.PeerID) bool {
	return o.Graph.ClosePeer(roomID, peerID)
}

func (o *Orchestrator) CreateTransport(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID, direction domain.Direction) (*graph.Transport, error) {
	return o.Graph.CreateTransport(roomID, peerID, transportID, direction)
}

func (o *Orchestrator) CloseTransport(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID) bool {
	return o.Graph.CloseTransport(roomID, peerID, transportID)
}

func (o *Orchestrator) Rooms() []graph.RoomInfo { return o.Graph.Rooms() }

func (o *Orchestrator) Peers(roomID domain.RoomID) ([]graph.PeerInfo, error) {
	return o.Graph.Peers(roomID)
}

// Subscribe exposes the notification surface: typed listeners per event
// category, at-least-once per occurrence, no cross-category ordering.
func (o *Orchestrator) Subscribe(types ...event.Type) (<-chan event.Event, func()) {
	return o.Events.Subscribe(types...)
}

// Close cascades close through the whole graph, then shuts the worker
// pool down. In-flight hook deliveries are drained, not cancelled.
func (o *Orchestrator) Close() {
	o.Graph.Close()
	if o.Pool != nil {
		o.Pool.Shutdown()
	}
	if o.Hook != nil {
		o.Hook.Flush()
	}
	o.Events.Close()
}
