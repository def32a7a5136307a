// Package graph is the Room/Peer/Transport/Producer/Consumer registry.
// All mutations go through one mutex, which gives the single-writer
// semantics the ownership cascade relies on. Engine handle closes are
// deferred until after the lock is released, because handles may fire
// their close callbacks synchronously.
package graph

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/core"
	"chorus/internal/domain"
	"chorus/internal/event"
)

// WorkerSource hands out forwarding workers for new rooms.
type WorkerSource interface {
	Next() (core.Worker, error)
}

// Options carries the engine-facing defaults every room and transport
// is created with.
type Options struct {
	Codecs             []core.MediaCodec
	ListenIP           string
	AnnouncedIP        string
	MaxIncomingBitrate int
	MaxOutgoingBitrate int
}

type SessionGraph struct {
	workers WorkerSource
	events  *event.Hub
	opts    Options

	mu    sync.Mutex
	rooms map[domain.RoomID]*Room
}

func New(workers WorkerSource, events *event.Hub, opts Options) *SessionGraph {
	return &SessionGraph{
		workers: workers,
		events:  events,
		opts:    opts,
		rooms:   make(map[domain.RoomID]*Room),
	}
}

// CreateRoom returns the existing room for id, or allocates a worker
// and a fresh routing context for a new one. Engine failures propagate
// wrapped; they are distinguishable from the lookup sentinels.
func (g *SessionGraph) CreateRoom(id domain.RoomID) (*Room, error) {
	if err := domain.ValidateID(string(id)); err != nil {
		return nil, fmt.Errorf("room id: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[id]; ok {
		return room, nil
	}

	worker, err := g.workers.Next()
	if err != nil {
		return nil, fmt.Errorf("allocate worker: %w", err)
	}
	routing, err := worker.CreateRoutingContext(g.opts.Codecs)
	if err != nil {
		return nil, fmt.Errorf("create routing context: %w", err)
	}
	room := newRoom(id, worker, routing)
	g.rooms[id] = room
	log.Info().Str("module", "app.graph").Str("room", string(id)).Str("worker", string(worker.ID())).Msg("room created")
	return room, nil
}

// GetRoom is a read-only lookup.
func (g *SessionGraph) GetRoom(id domain.RoomID) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	return room, ok
}

// CloseRoom cascades close through every peer, then releases the
// routing context. Returns false if the room is absent.
func (g *SessionGraph) CloseRoom(id domain.RoomID) bool {
	g.mu.Lock()
	room, ok := g.rooms[id]
	if !ok {
		g.mu.Unlock()
		return false
	}
	delete(g.rooms, id)
	after := g.closeRoomLocked(room)
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	log.Info().Str("module", "app.graph").Str("room", string(id)).Msg("room closed")
	return true
}

// CreatePeer is idempotent per (room, peer) pair.
func (g *SessionGraph) CreatePeer(roomID domain.RoomID, peerID domain.PeerID) (*Peer, error) {
	if err := domain.ValidateID(string(peerID)); err != nil {
		return nil, fmt.Errorf("peer id: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if peer, ok := room.peers[peerID]; ok {
		return peer, nil
	}
	peer := newPeer(peerID, room)
	room.peers[peerID] = peer
	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Msg("peer created")
	return peer, nil
}

// ClosePeer force-closes all the peer's transports, which transitively
// invalidates its producers and consumers.
func (g *SessionGraph) ClosePeer(roomID domain.RoomID, peerID domain.PeerID) bool {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	peer, ok := room.peers[peerID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	delete(room.peers, peerID)
	after := g.closePeerLocked(peer)
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Msg("peer closed")
	return true
}

// CreateTransport asks the room's routing context for a transport with
// direction-appropriate settings. Idempotent per transport id.
func (g *SessionGraph) CreateTransport(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID, direction domain.Direction) (*Transport, error) {
	if err := domain.ValidateID(string(transportID)); err != nil {
		return nil, fmt.Errorf("transport id: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	peer, ok := room.peers[peerID]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	if existing, ok := peer.transports[transportID]; ok {
		return existing, nil
	}

	handle, err := room.routing.CreateTransport(core.TransportOptions{
		ID:                 transportID,
		Direction:          direction,
		ListenIP:           g.opts.ListenIP,
		AnnouncedIP:        g.opts.AnnouncedIP,
		MaxIncomingBitrate: g.opts.MaxIncomingBitrate,
		MaxOutgoingBitrate: g.opts.MaxOutgoingBitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	transport := newTransport(transportID, direction, handle, peer)
	peer.transports[transportID] = transport

	// Diagnostic only: a failed secure channel does not close the
	// transport by itself.
	handle.OnStateChange(func(state string) {
		log.Debug().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Str("transport", string(transportID)).Str("state", state).Msg("transport state")
		g.events.Publish(event.NewTransportState(roomID, peerID, transportID, state))
	})

	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Str("transport", string(transportID)).Str("direction", string(direction)).Msg("transport created")
	return transport, nil
}

// CloseTransport closes one transport and everything created on it.
func (g *SessionGraph) CloseTransport(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID) bool {
	g.mu.Lock()
	peer := g.lookupPeer(roomID, peerID)
	if peer == nil {
		g.mu.Unlock()
		return false
	}
	transport, ok := peer.transports[transportID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	delete(peer.transports, transportID)
	after := g.closeTransportLocked(transport)
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	return true
}

// CreateProducer ingests a new stream on a send transport. The id is
// assigned by the engine. A zero codec lets the engine pick from the
// room's negotiated set.
func (g *SessionGraph) CreateProducer(roomID domain.RoomID, peerID domain.PeerID, transportID domain.TransportID, kind domain.MediaKind, codec webrtc.RTPCodecCapability, metadata domain.Metadata) (*Producer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer := g.lookupPeer(roomID, peerID)
	if peer == nil {
		if _, ok := g.rooms[roomID]; !ok {
			return nil, domain.ErrRoomNotFound
		}
		return nil, domain.ErrPeerNotFound
	}
	transport, ok := peer.transports[transportID]
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	if transport.direction != domain.DirectionSend {
		return nil, domain.ErrDirectionMismatch
	}

	handle, err := transport.handle.Produce(kind, core.ProducerOptions{Codec: codec, StreamID: string(peerID)})
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}

	producer := &Producer{
		id:        handle.ID(),
		kind:      kind,
		metadata:  metadata,
		handle:    handle,
		transport: transport,
		peer:      peer,
		consumers: make(map[domain.ConsumerID]*Consumer),
	}
	peer.producers[producer.id] = producer
	transport.producers[producer.id] = struct{}{}

	producerID := producer.id
	handle.OnScore(func(score int) {
		g.events.Publish(event.NewProducerScore(roomID, peerID, producerID, score))
	})
	handle.OnClose(func() {
		g.handleProducerClose(roomID, peerID, producer)
	})

	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Str("producer", string(producerID)).Str("kind", string(kind)).Msg("producer created")
	return producer, nil
}

// CloseProducer removes one producer; its consumers cascade.
func (g *SessionGraph) CloseProducer(roomID domain.RoomID, peerID domain.PeerID, producerID domain.ProducerID) bool {
	g.mu.Lock()
	peer := g.lookupPeer(roomID, peerID)
	if peer == nil {
		g.mu.Unlock()
		return false
	}
	producer, ok := peer.producers[producerID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	after := g.removeProducerLocked(producer, true)
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	return true
}

// CreateConsumer forwards producerID's stream to consumerPeerID over
// one of its recv transports. The routing context must certify the
// capabilities before the consumer is constructed. New consumers start
// paused.
func (g *SessionGraph) CreateConsumer(roomID domain.RoomID, consumerPeerID, producerPeerID domain.PeerID, producerID domain.ProducerID, transportID domain.TransportID, caps core.RTPCapabilities) (*Consumer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	consumerPeer, ok := room.peers[consumerPeerID]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	transport, ok := consumerPeer.transports[transportID]
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	if transport.direction != domain.DirectionRecv {
		return nil, domain.ErrDirectionMismatch
	}
	producerPeer, ok := room.peers[producerPeerID]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	producer, ok := producerPeer.producers[producerID]
	if !ok {
		return nil, domain.ErrProducerNotFound
	}

	if !room.routing.CanConsume(producerID, caps) {
		log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(consumerPeerID)).Str("producer", string(producerID)).Msg("capabilities rejected")
		return nil, domain.ErrIncompatibleCapabilities
	}

	handle, err := transport.handle.Consume(producerID, caps, true)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	consumer := &Consumer{
		id:        handle.ID(),
		source:    producer,
		handle:    handle,
		transport: transport,
		peer:      consumerPeer,
	}
	consumerPeer.consumers[consumer.id] = consumer
	transport.consumers[consumer.id] = struct{}{}
	producer.consumers[consumer.id] = consumer

	consumerID := consumer.id
	handle.OnScore(func(score int) {
		g.events.Publish(event.NewConsumerScore(roomID, consumerPeerID, consumerID, score))
	})

	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(consumerPeerID)).Str("consumer", string(consumerID)).Str("producer", string(producerID)).Msg("consumer created")
	return consumer, nil
}

// ResumeConsumer unpauses a consumer once the receiver finished
// negotiating on the signaling layer.
func (g *SessionGraph) ResumeConsumer(roomID domain.RoomID, peerID domain.PeerID, consumerID domain.ConsumerID) bool {
	handle := g.consumerHandle(roomID, peerID, consumerID)
	if handle == nil {
		return false
	}
	handle.Resume()
	return true
}

func (g *SessionGraph) PauseConsumer(roomID domain.RoomID, peerID domain.PeerID, consumerID domain.ConsumerID) bool {
	handle := g.consumerHandle(roomID, peerID, consumerID)
	if handle == nil {
		return false
	}
	handle.Pause()
	return true
}

// consumerHandle resolves a consumer's engine handle under the lock so
// the handle call itself happens outside it.
func (g *SessionGraph) consumerHandle(roomID domain.RoomID, peerID domain.PeerID, consumerID domain.ConsumerID) core.Consumer {
	g.mu.Lock()
	defer g.mu.Unlock()
	peer := g.lookupPeer(roomID, peerID)
	if peer == nil {
		return nil
	}
	consumer, ok := peer.consumers[consumerID]
	if !ok {
		return nil
	}
	return consumer.handle
}

// Close cascades close through every room.
func (g *SessionGraph) Close() {
	g.mu.Lock()
	var after []func()
	for id, room := range g.rooms {
		delete(g.rooms, id)
		after = append(after, g.closeRoomLocked(room)...)
	}
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	log.Info().Str("module", "app.graph").Msg("session graph closed")
}

// Rooms is a read-only snapshot for APIs.
func (g *SessionGraph) Rooms() []RoomInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RoomInfo, 0, len(g.rooms))
	for _, room := range g.rooms {
		out = append(out, RoomInfo{ID: room.id, PeerCount: len(room.peers), Worker: room.worker.ID()})
	}
	return out
}

// Peers is a read-only snapshot of one room's members.
func (g *SessionGraph) Peers(roomID domain.RoomID) ([]PeerInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make([]PeerInfo, 0, len(room.peers))
	for _, peer := range room.peers {
		out = append(out, PeerInfo{
			ID:         peer.id,
			Transports: len(peer.transports),
			Producers:  len(peer.producers),
			Consumers:  len(peer.consumers),
		})
	}
	return out, nil
}

// --- internal cascade machinery ---
//
// The *Locked helpers mutate graph state under g.mu and return the
// engine-handle closes to run after unlock.

func (g *SessionGraph) lookupPeer(roomID domain.RoomID, peerID domain.PeerID) *Peer {
	room, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	return room.peers[peerID]
}

func (g *SessionGraph) closeRoomLocked(room *Room) []func() {
	var after []func()
	for id, peer := range room.peers {
		delete(room.peers, id)
		after = append(after, g.closePeerLocked(peer)...)
	}
	routing := room.routing
	after = append(after, routing.Close)
	return after
}

func (g *SessionGraph) closePeerLocked(peer *Peer) []func() {
	var after []func()
	for id, transport := range peer.transports {
		delete(peer.transports, id)
		after = append(after, g.closeTransportLocked(transport)...)
	}
	return after
}

func (g *SessionGraph) closeTransportLocked(transport *Transport) []func() {
	var after []func()
	peer := transport.peer
	for id := range transport.producers {
		if producer, ok := peer.producers[id]; ok {
			after = append(after, g.removeProducerLocked(producer, true)...)
		}
	}
	for id := range transport.consumers {
		if consumer, ok := peer.consumers[id]; ok {
			after = append(after, g.removeConsumerLocked(consumer, true, false)...)
		}
	}
	after = append(after, transport.handle.Close)
	return after
}

// removeProducerLocked detaches a producer and cascades its consumers.
func (g *SessionGraph) removeProducerLocked(producer *Producer, closeHandle bool) []func() {
	var after []func()
	delete(producer.peer.producers, producer.id)
	delete(producer.transport.producers, producer.id)
	for _, consumer := range producer.consumers {
		after = append(after, g.removeConsumerLocked(consumer, true, true)...)
	}
	producer.consumers = make(map[domain.ConsumerID]*Consumer)
	if closeHandle {
		after = append(after, producer.handle.Close)
	}
	return after
}

func (g *SessionGraph) removeConsumerLocked(consumer *Consumer, closeHandle, sourceClosed bool) []func() {
	var after []func()
	delete(consumer.peer.consumers, consumer.id)
	delete(consumer.transport.consumers, consumer.id)
	delete(consumer.source.consumers, consumer.id)
	if closeHandle {
		after = append(after, consumer.handle.Close)
	}
	if sourceClosed {
		roomID := consumer.peer.room.id
		peerID := consumer.peer.id
		consumerID := consumer.id
		after = append(after, func() {
			g.events.Publish(event.NewConsumerSourceClosed(roomID, peerID, consumerID))
		})
	}
	return after
}

// handleProducerClose reacts to an engine-initiated producer close
// (e.g. the underlying stream ended). If the graph already removed the
// producer, this is a no-op.
func (g *SessionGraph) handleProducerClose(roomID domain.RoomID, peerID domain.PeerID, producer *Producer) {
	g.mu.Lock()
	peer := g.lookupPeer(roomID, peerID)
	if peer == nil || peer.producers[producer.id] != producer {
		g.mu.Unlock()
		return
	}
	after := g.removeProducerLocked(producer, false)
	g.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	log.Info().Str("module", "app.graph").Str("room", string(roomID)).Str("peer", string(peerID)).Str("producer", string(producer.id)).Msg("producer closed by engine")
}
