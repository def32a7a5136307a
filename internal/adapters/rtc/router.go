package rtc

import (
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/core"
	"chorus/internal/domain"
)

// Router is per-room engine state: the negotiated codec set plus the
// registry of live producers, so consume requests can be matched
// against their source.
type Router struct {
	worker domain.WorkerID
	api    *webrtc.API
	codecs []core.MediaCodec

	mu         sync.RWMutex
	transports []*Transport
	producers  map[domain.ProducerID]*Producer
	closed     bool
}

func newRouter(worker domain.WorkerID, api *webrtc.API, codecs []core.MediaCodec) *Router {
	return &Router{
		worker:    worker,
		api:       api,
		codecs:    codecs,
		producers: make(map[domain.ProducerID]*Producer),
	}
}

func (r *Router) CreateTransport(opts core.TransportOptions) (core.Transport, error) {
	t, err := newTransport(r, opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t, nil
}

// CanConsume reports whether the declared capabilities can receive the
// producer's stream: the producer must be live here and at least one
// offered codec must match its codec (MIME and clock rate).
func (r *Router) CanConsume(producerID domain.ProducerID, caps core.RTPCapabilities) bool {
	r.mu.RLock()
	producer, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	for _, c := range caps.Codecs {
		if codecsCompatible(c, producer.codec) {
			return true
		}
	}
	return false
}

func codecsCompatible(a, b webrtc.RTPCodecCapability) bool {
	return strings.EqualFold(a.MimeType, b.MimeType) && a.ClockRate == b.ClockRate
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := r.transports
	r.transports = nil
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	log.Info().Str("module", "rtc.router").Str("worker", string(r.worker)).Msg("routing context closed")
}

// codecForKind picks the room default for producers created without an
// explicit codec.
func (r *Router) codecForKind(kind domain.MediaKind) (webrtc.RTPCodecCapability, bool) {
	for _, c := range r.codecs {
		if c.Kind == kind {
			return c.Capability, true
		}
	}
	return webrtc.RTPCodecCapability{}, false
}

func (r *Router) registerProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) unregisterProducer(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) producer(id domain.ProducerID) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}
