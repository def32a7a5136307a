package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"chorus/internal/app/orch"
	"chorus/internal/config"
	"chorus/internal/core"
	"chorus/internal/domain"
)

type API struct {
	orch *orch.Orchestrator
	cfg  *config.Config
}

type codecDTO struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels"`
}

func (d codecDTO) capability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: d.MimeType, ClockRate: d.ClockRate, Channels: d.Channels}
}

// fail maps domain sentinels onto HTTP statuses. Lookup misses are
// ordinary outcomes, not server faults.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPeerNotFound),
		errors.Is(err, domain.ErrTransportNotFound),
		errors.Is(err, domain.ErrProducerNotFound),
		errors.Is(err, domain.ErrConsumerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIncompatibleCapabilities),
		errors.Is(err, domain.ErrDirectionMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIDEmpty), errors.Is(err, domain.ErrIDTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (a *API) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, a.orch.Rooms())
}

func (a *API) createRoom(c *gin.Context) {
	room, err := a.orch.CreateRoom(domain.RoomID(c.Param("room")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room.ID(), "peerCount": room.PeerCount()})
}

func (a *API) closeRoom(c *gin.Context) {
	closed := a.orch.CloseRoom(domain.RoomID(c.Param("room")))
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (a *API) listPeers(c *gin.Context) {
	peers, err := a.orch.Peers(domain.RoomID(c.Param("room")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, peers)
}

func (a *API) createPeer(c *gin.Context) {
	peer, err := a.orch.CreatePeer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peerId": peer.ID()})
}

func (a *API) closePeer(c *gin.Context) {
	closed := a.orch.ClosePeer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")))
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

type createTransportRequest struct {
	ID        string `json:"id" binding:"required"`
	Direction string `json:"direction" binding:"required"`
}

func (a *API) createTransport(c *gin.Context) {
	var req createTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	transport, err := a.orch.CreateTransport(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.TransportID(req.ID), direction)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transportId": transport.ID(), "direction": transport.Direction()})
}

func (a *API) closeTransport(c *gin.Context) {
	closed := a.orch.CloseTransport(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.TransportID(c.Param("transport")))
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

type createProducerRequest struct {
	Kind     string          `json:"kind" binding:"required"`
	Codec    *codecDTO       `json:"codec"`
	Metadata domain.Metadata `json:"metadata"`
}

func (a *API) createProducer(c *gin.Context) {
	var req createProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := domain.ParseMediaKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var codec webrtc.RTPCodecCapability
	if req.Codec != nil {
		codec = req.Codec.capability()
	}
	producer, err := a.orch.CreateProducer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.TransportID(c.Param("transport")), kind, codec, req.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"producerId": producer.ID(), "kind": producer.Kind()})
}

func (a *API) closeProducer(c *gin.Context) {
	closed := a.orch.CloseProducer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.ProducerID(c.Param("producer")))
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

type createConsumerRequest struct {
	ProducerPeerID  string     `json:"producerPeerId" binding:"required"`
	ProducerID      string     `json:"producerId" binding:"required"`
	TransportID     string     `json:"transportId" binding:"required"`
	RTPCapabilities []codecDTO `json:"rtpCapabilities" binding:"required"`
}

func (a *API) createConsumer(c *gin.Context) {
	var req createConsumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caps := core.RTPCapabilities{}
	for _, dto := range req.RTPCapabilities {
		caps.Codecs = append(caps.Codecs, dto.capability())
	}
	consumer, err := a.orch.CreateConsumer(
		domain.RoomID(c.Param("room")),
		domain.PeerID(c.Param("peer")),
		domain.PeerID(req.ProducerPeerID),
		domain.ProducerID(req.ProducerID),
		domain.TransportID(req.TransportID),
		caps,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consumerId": consumer.ID(),
		"producerId": consumer.ProducerID(),
		"paused":     true,
	})
}

func (a *API) resumeConsumer(c *gin.Context) {
	resumed := a.orch.ResumeConsumer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.ConsumerID(c.Param("consumer")))
	c.JSON(http.StatusOK, gin.H{"resumed": resumed})
}

func (a *API) pauseConsumer(c *gin.Context) {
	paused := a.orch.PauseConsumer(domain.RoomID(c.Param("room")), domain.PeerID(c.Param("peer")), domain.ConsumerID(c.Param("consumer")))
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}

// receiveAIEvent is the inbound webhook for out-of-band AI service
// events. The payload shape is not validated, only relayed.
func (a *API) receiveAIEvent(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.orch.ReceiveAIEvent(payload)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (a *API) hookStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": a.orch.HookStatus()})
}
