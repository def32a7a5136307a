// Package pool owns the forwarding-engine workers and assigns them to
// rooms round-robin.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chorus/internal/core"
	"chorus/internal/event"
)

// SupervisionPolicy decides what happens when a worker dies
// unexpectedly.
type SupervisionPolicy string

const (
	// SuperviseExit logs a fatal event and, after ExitGrace, hands
	// control to OnFatal (process restart expected).
	SuperviseExit SupervisionPolicy = "exit"
	// SuperviseRespawn spawns a replacement worker; a failed respawn
	// escalates to exit.
	SuperviseRespawn SupervisionPolicy = "respawn"
	// SuperviseDegrade removes the worker from rotation; losing the
	// last worker escalates to exit.
	SuperviseDegrade SupervisionPolicy = "degrade"
)

const DefaultExitGrace = 2 * time.Second

var ErrNoWorkers = errors.New("no live workers")

type Options struct {
	Count     int
	Settings  core.WorkerSettings
	Policy    SupervisionPolicy
	ExitGrace time.Duration
	// OnFatal is invoked after ExitGrace when supervision escalates.
	// Defaults to a zerolog fatal log (which exits the process).
	OnFatal func()
}

type WorkerPool struct {
	factory core.WorkerFactory
	events  *event.Hub
	opts    Options

	mu      sync.Mutex
	workers []core.Worker
	next    int
	closed  bool
	stop    chan struct{}
}

func New(factory core.WorkerFactory, events *event.Hub, opts Options) *WorkerPool {
	if opts.Count <= 0 {
		opts.Count = 1
	}
	if opts.Policy == "" {
		opts.Policy = SuperviseExit
	}
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = DefaultExitGrace
	}
	if opts.OnFatal == nil {
		opts.OnFatal = func() {
			log.Fatal().Str("module", "app.pool").Msg("forwarding worker died, exiting")
		}
	}
	return &WorkerPool{
		factory: factory,
		events:  events,
		opts:    opts,
		stop:    make(chan struct{}),
	}
}

// Spawn brings up the configured number of workers. Any spawn failure
// tears down the ones already started. Death watches start only once
// every worker is up, so the cleanup closes are never mistaken for
// unexpected deaths.
func (p *WorkerPool) Spawn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.opts.Count; i++ {
		w, err := p.factory(p.opts.Settings)
		if err != nil {
			for _, spawned := range p.workers {
				spawned.Close()
			}
			p.workers = nil
			return fmt.Errorf("spawn worker %d/%d: %w", i+1, p.opts.Count, err)
		}
		p.workers = append(p.workers, w)
		log.Info().Str("module", "app.pool").Str("worker", string(w.ID())).Msg("worker spawned")
	}
	for _, w := range p.workers {
		go p.watch(w)
	}
	return nil
}

// Next returns the next live worker, strict round-robin. No
// load-awareness: routing contexts are cheap relative to worker
// capacity.
func (p *WorkerPool) Next() (core.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) == 0 {
		return nil, ErrNoWorkers
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w, nil
}

// Size reports the number of workers currently in rotation.
func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Shutdown closes every worker handle. Idempotent.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}
	log.Info().Str("module", "app.pool").Int("workers", len(workers)).Msg("pool shut down")
}

func (p *WorkerPool) watch(w core.Worker) {
	select {
	case <-p.stop:
		return
	case <-w.Done():
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	idx := -1
	for i, live := range p.workers {
		if live == w {
			idx = i
			break
		}
	}
	if idx >= 0 {
		p.workers = append(p.workers[:idx], p.workers[idx+1:]...)
	}
	remaining := len(p.workers)
	p.mu.Unlock()

	log.Error().Str("module", "app.pool").Str("worker", string(w.ID())).Str("policy", string(p.opts.Policy)).Msg("worker died unexpectedly")
	if p.events != nil {
		p.events.Publish(event.NewWorkerDown(w.ID()))
	}

	switch p.opts.Policy {
	case SuperviseRespawn:
		replacement, err := p.factory(p.opts.Settings)
		if err != nil {
			log.Error().Str("module", "app.pool").Err(err).Msg("respawn failed, escalating to exit")
			p.escalate()
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			replacement.Close()
			return
		}
		p.workers = append(p.workers, replacement)
		p.mu.Unlock()
		go p.watch(replacement)
		log.Info().Str("module", "app.pool").Str("worker", string(replacement.ID())).Msg("worker respawned")
	case SuperviseDegrade:
		if remaining == 0 {
			log.Error().Str("module", "app.pool").Msg("last worker lost, escalating to exit")
			p.escalate()
		}
	default: // SuperviseExit
		p.escalate()
	}
}

func (p *WorkerPool) escalate() {
	time.AfterFunc(p.opts.ExitGrace, p.opts.OnFatal)
}
