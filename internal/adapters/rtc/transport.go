package rtc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/core"
	"chorus/internal/domain"
)

type Transport struct {
	id        domain.TransportID
	direction domain.Direction
	router    *Router
	pc        *webrtc.PeerConnection

	mu      sync.Mutex
	onState func(state string)
	closed  bool
}

func newTransport(router *Router, opts core.TransportOptions) (*Transport, error) {
	pc, err := router.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	t := &Transport{
		id:        opts.ID,
		direction: opts.Direction,
		router:    router,
		pc:        pc,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc.transport").Str("transport", string(t.id)).Str("state", state.String()).Msg("connection state")
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})
	return t, nil
}

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) OnStateChange(fn func(state string)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// PeerConnection exposes the underlying pion connection for the
// signaling layer (offer/answer and ICE live outside the core).
func (t *Transport) PeerConnection() *webrtc.PeerConnection { return t.pc }

// Produce starts a fan-out relay for one inbound stream. An empty
// codec means "use the room default for this kind".
func (t *Transport) Produce(kind domain.MediaKind, opts core.ProducerOptions) (core.Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	t.mu.Unlock()

	codec := opts.Codec
	if codec.MimeType == "" {
		def, ok := t.router.codecForKind(kind)
		if !ok {
			return nil, fmt.Errorf("no routable codec for kind %s", kind)
		}
		codec = def
	}

	streamID := opts.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}

	p := newProducer(domain.ProducerID(uuid.NewString()), kind, codec, streamID, t.router)
	t.router.registerProducer(p)
	p.startScoreLoop()
	return p, nil
}

// Consume attaches an out-track for producerID's stream to this
// transport's peer connection.
func (t *Transport) Consume(producerID domain.ProducerID, caps core.RTPCapabilities, paused bool) (core.Consumer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	t.mu.Unlock()

	if !t.router.CanConsume(producerID, caps) {
		return nil, fmt.Errorf("cannot consume producer %s", producerID)
	}
	producer, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}

	id := domain.ConsumerID(uuid.NewString())
	track, err := webrtc.NewTrackLocalStaticRTP(producer.codec, string(id), producer.streamID)
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	c := newConsumer(id, producer, t, track, sender, paused)
	producer.addConsumer(c)
	log.Info().Str("module", "rtc.transport").Str("transport", string(t.id)).Str("consumer", string(id)).Str("producer", string(producerID)).Bool("paused", paused).Msg("consumer attached")
	return c, nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.pc.Close(); err != nil {
		log.Error().Str("module", "rtc.transport").Err(err).Str("transport", string(t.id)).Msg("close error")
	}
}
