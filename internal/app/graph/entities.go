package graph

import (
	"github.com/google/uuid"

	"chorus/internal/core"
	"chorus/internal/domain"
)

// Room is an isolated media session scope. It owns its peers and the
// routing context allocated from a forwarding worker.
type Room struct {
	id      domain.RoomID
	epoch   string // fresh per instance, so id reuse after close is a new entity
	worker  core.Worker
	routing core.RoutingContext
	peers   map[domain.PeerID]*Peer
}

func newRoom(id domain.RoomID, worker core.Worker, routing core.RoutingContext) *Room {
	return &Room{
		id:      id,
		epoch:   uuid.NewString(),
		worker:  worker,
		routing: routing,
		peers:   make(map[domain.PeerID]*Peer),
	}
}

func (r *Room) ID() domain.RoomID   { return r.id }
func (r *Room) Epoch() string       { return r.epoch }
func (r *Room) PeerCount() int      { return len(r.peers) }
func (r *Room) Worker() core.Worker { return r.worker }

// Peer is a participant within a room.
type Peer struct {
	id         domain.PeerID
	epoch      string
	room       *Room
	transports map[domain.TransportID]*Transport
	producers  map[domain.ProducerID]*Producer
	consumers  map[domain.ConsumerID]*Consumer
}

func newPeer(id domain.PeerID, room *Room) *Peer {
	return &Peer{
		id:         id,
		epoch:      uuid.NewString(),
		room:       room,
		transports: make(map[domain.TransportID]*Transport),
		producers:  make(map[domain.ProducerID]*Producer),
		consumers:  make(map[domain.ConsumerID]*Consumer),
	}
}

func (p *Peer) ID() domain.PeerID { return p.id }
func (p *Peer) Epoch() string     { return p.epoch }
func (p *Peer) Room() *Room       { return p.room }

// Transport is one secured endpoint of a peer, one direction.
type Transport struct {
	id        domain.TransportID
	direction domain.Direction
	handle    core.Transport
	peer      *Peer

	// children created on this transport; closing it invalidates them
	producers map[domain.ProducerID]struct{}
	consumers map[domain.ConsumerID]struct{}
}

func newTransport(id domain.TransportID, direction domain.Direction, handle core.Transport, peer *Peer) *Transport {
	return &Transport{
		id:        id,
		direction: direction,
		handle:    handle,
		peer:      peer,
		producers: make(map[domain.ProducerID]struct{}),
		consumers: make(map[domain.ConsumerID]struct{}),
	}
}

func (t *Transport) ID() domain.TransportID      { return t.id }
func (t *Transport) Direction() domain.Direction { return t.direction }
func (t *Transport) Handle() core.Transport      { return t.handle }

// Producer is one inbound media stream owned by a peer.
type Producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	metadata  domain.Metadata
	handle    core.Producer
	transport *Transport
	peer      *Peer

	// consumers of this producer, possibly on other peers in the room
	consumers map[domain.ConsumerID]*Consumer
}

func (p *Producer) ID() domain.ProducerID     { return p.id }
func (p *Producer) Kind() domain.MediaKind    { return p.kind }
func (p *Producer) Metadata() domain.Metadata { return p.metadata }
func (p *Producer) Handle() core.Producer     { return p.handle }
func (p *Producer) Peer() *Peer               { return p.peer }

// Consumer forwards a source producer's stream to its owning peer.
// It starts paused; the receiver resumes it once signaling completes.
type Consumer struct {
	id        domain.ConsumerID
	source    *Producer
	handle    core.Consumer
	transport *Transport
	peer      *Peer
}

func (c *Consumer) ID() domain.ConsumerID         { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID { return c.source.id }
func (c *Consumer) Handle() core.Consumer         { return c.handle }
func (c *Consumer) Peer() *Peer                   { return c.peer }

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID        domain.RoomID   `json:"id"`
	PeerCount int             `json:"peer_count"`
	Worker    domain.WorkerID `json:"worker_id"`
}

// PeerInfo is a read-only view for APIs.
type PeerInfo struct {
	ID         domain.PeerID `json:"id"`
	Transports int           `json:"transports"`
	Producers  int           `json:"producers"`
	Consumers  int           `json:"consumers"`
}
