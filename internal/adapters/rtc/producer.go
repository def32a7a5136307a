package rtc

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/domain"
)

const scoreInterval = 5 * time.Second

// Producer fans one inbound RTP stream out to its consumers' tracks.
type Producer struct {
	id       domain.ProducerID
	kind     domain.MediaKind
	codec    webrtc.RTPCodecCapability
	streamID string
	router   *Router

	mu        sync.RWMutex
	consumers map[domain.ConsumerID]*Consumer
	onScore   func(score int)
	onClose   func()

	packets atomic.Int64
	stop    chan struct{}
	once    sync.Once
}

func newProducer(id domain.ProducerID, kind domain.MediaKind, codec webrtc.RTPCodecCapability, streamID string, router *Router) *Producer {
	return &Producer{
		id:        id,
		kind:      kind,
		codec:     codec,
		streamID:  streamID,
		router:    router,
		consumers: make(map[domain.ConsumerID]*Consumer),
		stop:      make(chan struct{}),
	}
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) OnScore(fn func(score int)) {
	p.mu.Lock()
	p.onScore = fn
	p.mu.Unlock()
}

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

// Write ingests one packet and forwards it to every live consumer.
func (p *Producer) Write(pkt *rtp.Packet) error {
	select {
	case <-p.stop:
		return fmt.Errorf("producer %s closed", p.id)
	default:
	}
	p.packets.Add(1)

	snapshot := make(map[domain.ConsumerID]*Consumer, 8)
	p.mu.RLock()
	maps.Copy(snapshot, p.consumers)
	p.mu.RUnlock()

	var dirty []domain.ConsumerID
	for id, c := range snapshot {
		switch c.state.Load() {
		case consumerStateDeleted:
			dirty = append(dirty, id)
		case consumerStatePaused:
		default:
			if err := c.track.WriteRTP(pkt); err != nil {
				log.Error().Str("module", "rtc.producer").Err(err).Str("consumer", string(id)).Msg("write RTP failed, dropping consumer track")
				c.state.Store(consumerStateDeleted)
				dirty = append(dirty, id)
				continue
			}
			c.written.Add(1)
		}
	}

	if len(dirty) > 0 {
		p.mu.Lock()
		for _, id := range dirty {
			delete(p.consumers, id)
		}
		p.mu.Unlock()
	}
	return nil
}

func (p *Producer) addConsumer(c *Consumer) {
	p.mu.Lock()
	p.consumers[c.id] = c
	p.mu.Unlock()
}

func (p *Producer) removeConsumer(id domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

// startScoreLoop samples forwarded packet counts and reports quality
// scores for the producer and each of its consumers, in report order.
func (p *Producer) startScoreLoop() {
	go func() {
		ticker := time.NewTicker(scoreInterval)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
			}
			total := p.packets.Load()
			score := 0
			if total > last {
				score = 10
			}
			last = total

			p.mu.RLock()
			fn := p.onScore
			consumers := make([]*Consumer, 0, len(p.consumers))
			for _, c := range p.consumers {
				consumers = append(consumers, c)
			}
			p.mu.RUnlock()

			if fn != nil {
				fn(score)
			}
			for _, c := range consumers {
				c.reportScore()
			}
		}
	}()
}

func (p *Producer) Close() {
	p.once.Do(func() {
		close(p.stop)
		p.router.unregisterProducer(p.id)

		p.mu.Lock()
		consumers := p.consumers
		p.consumers = make(map[domain.ConsumerID]*Consumer)
		fn := p.onClose
		p.mu.Unlock()

		for _, c := range consumers {
			c.state.Store(consumerStateDeleted)
		}
		if fn != nil {
			fn()
		}
		log.Info().Str("module", "rtc.producer").Str("producer", string(p.id)).Msg("producer closed")
	})
}
