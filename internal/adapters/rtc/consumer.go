package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/domain"
)

const (
	consumerStateOk int32 = iota
	consumerStatePaused
	consumerStateDeleted
)

// Consumer is one out-track of a producer's fan-out, bound to the
// consuming transport's peer connection.
type Consumer struct {
	id       domain.ConsumerID
	producer *Producer
	track    *webrtc.TrackLocalStaticRTP
	sender   *webrtc.RTPSender
	pc       *webrtc.PeerConnection

	state   atomic.Int32
	written atomic.Int64
	lastW   int64

	mu      sync.Mutex
	onScore func(score int)
	once    sync.Once
}

func newConsumer(id domain.ConsumerID, producer *Producer, transport *Transport, track *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender, paused bool) *Consumer {
	c := &Consumer{
		id:       id,
		producer: producer,
		track:    track,
		sender:   sender,
		pc:       transport.pc,
	}
	if paused {
		c.state.Store(consumerStatePaused)
	}
	return c
}

func (c *Consumer) ID() domain.ConsumerID { return c.id }

func (c *Consumer) ProducerID() domain.ProducerID { return c.producer.id }

func (c *Consumer) Paused() bool { return c.state.Load() == consumerStatePaused }

func (c *Consumer) Pause() {
	c.state.CompareAndSwap(consumerStateOk, consumerStatePaused)
}

func (c *Consumer) Resume() {
	c.state.CompareAndSwap(consumerStatePaused, consumerStateOk)
}

func (c *Consumer) OnScore(fn func(score int)) {
	c.mu.Lock()
	c.onScore = fn
	c.mu.Unlock()
}

// reportScore is driven by the producer's score loop so consumer scores
// follow the same sampling order as their source.
func (c *Consumer) reportScore() {
	c.mu.Lock()
	fn := c.onScore
	c.mu.Unlock()
	if fn == nil {
		return
	}
	total := c.written.Load()
	score := 0
	if total > c.lastW {
		score = 10
	}
	c.lastW = total
	fn(score)
}

func (c *Consumer) Close() {
	c.once.Do(func() {
		c.state.Store(consumerStateDeleted)
		c.producer.removeConsumer(c.id)
		if err := c.pc.RemoveTrack(c.sender); err != nil {
			log.Debug().Str("module", "rtc.consumer").Err(err).Str("consumer", string(c.id)).Msg("remove track")
		}
	})
}
