// Package coretest provides an in-memory forwarding engine for tests:
// every handle records calls and exposes knobs for failure injection.
package coretest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"chorus/internal/core"
	"chorus/internal/domain"
)

type Engine struct {
	mu      sync.Mutex
	spawned int

	// knobs
	SpawnErr       error
	RoutingErr     error
	TransportErr   error
	ProduceErr     error
	ConsumeErr     error
	CanConsumeFunc func(domain.ProducerID, core.RTPCapabilities) bool
}

func NewEngine() *Engine { return &Engine{} }

// Factory returns a core.WorkerFactory bound to this engine.
func (e *Engine) Factory() core.WorkerFactory {
	return func(settings core.WorkerSettings) (core.Worker, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.SpawnErr != nil {
			return nil, e.SpawnErr
		}
		e.spawned++
		return &Worker{
			WID:    domain.WorkerID(fmt.Sprintf("w%d", e.spawned)),
			engine: e,
			done:   make(chan struct{}),
		}, nil
	}
}

func (e *Engine) Spawned() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawned
}

type Worker struct {
	WID    domain.WorkerID
	engine *Engine

	mu       sync.Mutex
	Routings []*Routing
	Rooms    int
	done     chan struct{}
	closed   bool
}

func (w *Worker) ID() domain.WorkerID   { return w.WID }
func (w *Worker) Done() <-chan struct{} { return w.done }

// Kill simulates an unexpected worker death.
func (w *Worker) Kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}

func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}

func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Worker) CreateRoutingContext(codecs []core.MediaCodec) (core.RoutingContext, error) {
	if w.engine.RoutingErr != nil {
		return nil, w.engine.RoutingErr
	}
	r := &Routing{engine: w.engine, producers: make(map[domain.ProducerID]*Producer)}
	w.mu.Lock()
	w.Routings = append(w.Routings, r)
	w.Rooms++
	w.mu.Unlock()
	return r, nil
}

type Routing struct {
	engine *Engine

	mu         sync.Mutex
	producers  map[domain.ProducerID]*Producer
	transports []*Transport
	closed     bool
}

func (r *Routing) CreateTransport(opts core.TransportOptions) (core.Transport, error) {
	if r.engine.TransportErr != nil {
		return nil, r.engine.TransportErr
	}
	t := &Transport{TID: opts.ID, Opts: opts, routing: r}
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t, nil
}

func (r *Routing) CanConsume(producer domain.ProducerID, caps core.RTPCapabilities) bool {
	if r.engine.CanConsumeFunc != nil {
		return r.engine.CanConsumeFunc(producer, caps)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producer]
	return ok
}

func (r *Routing) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Routing) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type Transport struct {
	TID     domain.TransportID
	Opts    core.TransportOptions
	routing *Routing

	mu      sync.Mutex
	onState func(string)
	closed  bool
}

func (t *Transport) ID() domain.TransportID { return t.TID }

func (t *Transport) OnStateChange(fn func(string)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// FireStateChange pushes a secure-channel state transition.
func (t *Transport) FireStateChange(state string) {
	t.mu.Lock()
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (t *Transport) Produce(kind domain.MediaKind, opts core.ProducerOptions) (core.Producer, error) {
	if t.routing.engine.ProduceErr != nil {
		return nil, t.routing.engine.ProduceErr
	}
	p := &Producer{PID: domain.ProducerID(uuid.NewString()), MKind: kind}
	t.routing.mu.Lock()
	t.routing.producers[p.PID] = p
	t.routing.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(producer domain.ProducerID, caps core.RTPCapabilities, paused bool) (core.Consumer, error) {
	if t.routing.engine.ConsumeErr != nil {
		return nil, t.routing.engine.ConsumeErr
	}
	return &Consumer{CID: domain.ConsumerID(uuid.NewString()), Source: producer, paused: paused}, nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	PID   domain.ProducerID
	MKind domain.MediaKind

	mu      sync.Mutex
	onScore func(int)
	onClose func()
	closed  bool
}

func (p *Producer) ID() domain.ProducerID   { return p.PID }
func (p *Producer) Kind() domain.MediaKind  { return p.MKind }
func (p *Producer) Write(*rtp.Packet) error { return nil }

func (p *Producer) OnScore(fn func(int)) {
	p.mu.Lock()
	p.onScore = fn
	p.mu.Unlock()
}

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

// FireScore pushes a quality score report.
func (p *Producer) FireScore(score int) {
	p.mu.Lock()
	fn := p.onScore
	p.mu.Unlock()
	if fn != nil {
		fn(score)
	}
}

// FireClose simulates an engine-initiated close (stream ended).
func (p *Producer) FireClose() {
	p.mu.Lock()
	fn := p.onClose
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *Producer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	CID    domain.ConsumerID
	Source domain.ProducerID

	// OnPauseChange, if set, runs synchronously inside Pause/Resume.
	OnPauseChange func()

	mu      sync.Mutex
	paused  bool
	onScore func(int)
	closed  bool
}

func (c *Consumer) ID() domain.ConsumerID         { return c.CID }
func (c *Consumer) ProducerID() domain.ProducerID { return c.Source }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Pause() {
	c.mu.Lock()
	c.paused = true
	fn := c.OnPauseChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Consumer) Resume() {
	c.mu.Lock()
	c.paused = false
	fn := c.OnPauseChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Consumer) OnScore(fn func(int)) {
	c.mu.Lock()
	c.onScore = fn
	c.mu.Unlock()
}

func (c *Consumer) FireScore(score int) {
	c.mu.Lock()
	fn := c.onScore
	c.mu.Unlock()
	if fn != nil {
		fn(score)
	}
}

func (c *Consumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
