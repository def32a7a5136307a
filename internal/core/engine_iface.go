// Package core declares the capability interface of the media
// forwarding engine. The session graph consumes these; adapters own
// the actual media resources and must close them.
package core

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"chorus/internal/domain"
)

// WorkerSettings configures one forwarding worker at spawn time.
type WorkerSettings struct {
	LogLevel   string
	LogTags    []string
	RTCMinPort uint16
	RTCMaxPort uint16
}

// MediaCodec is one routable codec for a routing context.
type MediaCodec struct {
	Kind       domain.MediaKind
	Capability webrtc.RTPCodecCapability
}

// RTPCapabilities is what a consuming endpoint declares it can receive.
type RTPCapabilities struct {
	Codecs []webrtc.RTPCodecCapability
}

// TransportOptions is the direction-appropriate transport config the
// graph passes down (ICE/DTLS enablement and bitrate caps are the
// engine's business).
type TransportOptions struct {
	ID                 domain.TransportID
	Direction          domain.Direction
	ListenIP           string
	AnnouncedIP        string
	MaxIncomingBitrate int
	MaxOutgoingBitrate int
}

// ProducerOptions carries the ingestion parameters for one stream.
type ProducerOptions struct {
	Codec    webrtc.RTPCodecCapability
	StreamID string
}

// WorkerFactory spawns one worker; the pool owns the result.
type WorkerFactory func(WorkerSettings) (Worker, error)

// Worker is an opaque handle to a forwarding-engine execution context.
type Worker interface {
	ID() domain.WorkerID
	CreateRoutingContext(codecs []MediaCodec) (RoutingContext, error)
	// Done is closed when the worker terminates, expectedly or not.
	Done() <-chan struct{}
	Close()
}

// RoutingContext is per-room engine state: it knows the negotiated
// codec set and can test capability compatibility.
type RoutingContext interface {
	CreateTransport(opts TransportOptions) (Transport, error)
	CanConsume(producer domain.ProducerID, caps RTPCapabilities) bool
	Close()
}

// Transport is a secured media-transport endpoint, one per peer and
// direction.
type Transport interface {
	ID() domain.TransportID
	Produce(kind domain.MediaKind, opts ProducerOptions) (Producer, error)
	Consume(producer domain.ProducerID, caps RTPCapabilities, paused bool) (Consumer, error)
	// OnStateChange reports underlying secure-channel state transitions
	// (diagnostic only; the owner decides what to do).
	OnStateChange(fn func(state string))
	Close()
}

// Producer is one inbound media stream.
type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	// Write ingests one RTP packet into the engine for fan-out.
	Write(pkt *rtp.Packet) error
	OnScore(fn func(score int))
	OnClose(fn func())
	Close()
}

// Consumer forwards one producer's stream to a receiving transport.
type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Paused() bool
	Pause()
	Resume()
	OnScore(fn func(score int))
	Close()
}
