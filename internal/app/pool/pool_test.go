package pool

import (
	"errors"
	"testing"
	"time"

	"chorus/internal/core"
	"chorus/internal/core/coretest"
	"chorus/internal/event"
)

func newTestPool(t *testing.T, engine *coretest.Engine, opts Options) *WorkerPool {
	t.Helper()
	hub := event.NewHub()
	t.Cleanup(hub.Close)
	if opts.OnFatal == nil {
		opts.OnFatal = func() { t.Error("unexpected fatal escalation") }
	}
	p := New(engine.Factory(), hub, opts)
	t.Cleanup(p.Shutdown)
	return p
}

func TestRoundRobinFairness(t *testing.T) {
	const workers = 3
	const rooms = 10

	engine := coretest.NewEngine()
	p := newTestPool(t, engine, Options{Count: workers, ExitGrace: time.Hour})
	if err := p.Spawn(); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	counts := make(map[*coretest.Worker]int)
	for i := 0; i < rooms; i++ {
		w, err := p.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		counts[w.(*coretest.Worker)]++
	}

	if len(counts) != workers {
		t.Fatalf("expected all %d workers used, got %d", workers, len(counts))
	}
	min, max := rooms, 0
	for _, n := range counts {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	if max-min > 1 {
		t.Fatalf("unfair assignment: min=%d max=%d", min, max)
	}
}

func TestNextWithoutWorkers(t *testing.T) {
	p := newTestPool(t, coretest.NewEngine(), Options{Count: 1, ExitGrace: time.Hour})
	if _, err := p.Next(); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
}

func TestSpawnFailureCleansUp(t *testing.T) {
	engine := coretest.NewEngine()
	engine.SpawnErr = errors.New("fork failed")
	p := newTestPool(t, engine, Options{Count: 2, ExitGrace: time.Hour})

	if err := p.Spawn(); err == nil {
		t.Fatal("expected spawn error")
	}
	if p.Size() != 0 {
		t.Fatalf("expected empty pool after failed spawn, got %d", p.Size())
	}
}

func TestSpawnFailureAfterPartialSuccess(t *testing.T) {
	engine := coretest.NewEngine()
	hub := event.NewHub()
	t.Cleanup(hub.Close)

	inner := engine.Factory()
	calls := 0
	factory := func(s core.WorkerSettings) (core.Worker, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("fork failed")
		}
		return inner(s)
	}

	fatal := make(chan struct{}, 1)
	p := New(factory, hub, Options{
		Count:     2,
		ExitGrace: 10 * time.Millisecond,
		OnFatal:   func() { fatal <- struct{}{} },
	})
	t.Cleanup(p.Shutdown)

	down, cancel := hub.Subscribe(event.TypeWorkerDown)
	defer cancel()

	if err := p.Spawn(); err == nil {
		t.Fatal("expected spawn error")
	}
	if p.Size() != 0 {
		t.Fatalf("expected empty pool after failed spawn, got %d", p.Size())
	}

	// The first worker was closed by the cleanup itself; that must not
	// surface as an unexpected death or escalate.
	select {
	case <-down:
		t.Fatal("cleanup close reported as worker death")
	case <-fatal:
		t.Fatal("cleanup close escalated to fatal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownIdempotent(t *testing.T) {
	engine := coretest.NewEngine()
	p := newTestPool(t, engine, Options{Count: 2, ExitGrace: time.Hour})
	if err := p.Spawn(); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	p.Shutdown()
	p.Shutdown()

	if p.Size() != 0 {
		t.Fatal("expected no workers after shutdown")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDegradeRemovesDeadWorker(t *testing.T) {
	engine := coretest.NewEngine()
	p := newTestPool(t, engine, Options{Count: 2, Policy: SuperviseDegrade, ExitGrace: time.Hour})
	if err := p.Spawn(); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	w, err := p.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	w.(*coretest.Worker).Kill()

	waitFor(t, func() bool { return p.Size() == 1 }, "dead worker never left rotation")
	survivor, err := p.Next()
	if err != nil {
		t.Fatalf("next after degrade: %v", err)
	}
	if survivor == w {
		t.Fatal("dead worker still handed out")
	}
}

func TestExitPolicyEscalates(t *testing.T) {
	engine := coretest.NewEngine()
	fatal := make(chan struct{})
	hub := event.NewHub()
	t.Cleanup(hub.Close)
	p := New(engine.Factory(), hub, Options{
		Count:     1,
		Policy:    SuperviseExit,
		ExitGrace: 10 * time.Millisecond,
		OnFatal:   func() { close(fatal) },
	})
	t.Cleanup(p.Shutdown)
	if err := p.Spawn(); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	down, cancel := hub.Subscribe(event.TypeWorkerDown)
	defer cancel()

	w, _ := p.Next()
	w.(*coretest.Worker).Kill()

	select {
	case <-down:
	case <-time.After(time.Second):
		t.Fatal("no WorkerDown event")
	}
	select {
	case <-fatal:
	case <-time.After(time.Second):
		t.Fatal("exit policy never escalated")
	}
}

func TestRespawnReplacesWorker(t *testing.T) {
	engine := coretest.NewEngine()
	p := newTestPool(t, engine, Options{Count: 1, Policy: SuperviseRespawn, ExitGrace: time.Hour})
	if err := p.Spawn(); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	w, _ := p.Next()
	w.(*coretest.Worker).Kill()

	waitFor(t, func() bool { return engine.Spawned() == 2 && p.Size() == 1 }, "replacement worker never spawned")

	replacement, err := p.Next()
	if err != nil {
		t.Fatalf("next after respawn: %v", err)
	}
	if replacement == w {
		t.Fatal("dead worker still in rotation")
	}
}
