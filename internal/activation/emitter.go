package activation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/straja-ai/harassguard/internal/redact"
)

// Sink consumes activation events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics is a point-in-time copy of the delivery counters.
type Metrics struct {
	enqueued    uint64
	dropped     uint64
	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func (m Metrics) Enqueued() uint64               { return m.enqueued }
func (m Metrics) Dropped() uint64                { return m.dropped }
func (m Metrics) SinkSuccess(name string) uint64 { return m.sinkSuccess[name] }
func (m Metrics) SinkFailure(name string) uint64 { return m.sinkFailure[name] }

type sinkCounters struct {
	success atomic.Uint64
	failure atomic.Uint64
}

// Emitter buffers events and delivers them to sinks from background workers.
// Emit never blocks: events are dropped when the queue is full.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	counters        map[string]*sinkCounters
	shutdownTimeout time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts the delivery workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	em := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		counters:        make(map[string]*sinkCounters, len(sinks)),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for _, s := range sinks {
		em.counters[s.Name()] = &sinkCounters{}
	}
	for i := 0; i < cfg.Workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues ev without blocking the analysis path.
func (e *Emitter) Emit(_ context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- ev:
		e.enqueued.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// Close stops accepting events, drains the queue within the shutdown
// timeout and closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		redact.Logf("activation: shutdown timeout, %d events not delivered", len(e.queue))
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			redact.Logf("activation: sink %s close error: %v", s.Name(), err)
		}
	}
}

// MetricsSnapshot copies the current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil {
		return Metrics{}
	}
	m := Metrics{
		enqueued:    e.enqueued.Load(),
		dropped:     e.dropped.Load(),
		sinkSuccess: make(map[string]uint64, len(e.counters)),
		sinkFailure: make(map[string]uint64, len(e.counters)),
	}
	for name, c := range e.counters {
		m.sinkSuccess[name] = c.success.Load()
		m.sinkFailure[name] = c.failure.Load()
	}
	return m
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		c := e.counters[s.Name()]
		if err := s.Deliver(context.Background(), ev); err != nil {
			redact.Logf("activation: sink %s failed: %v", s.Name(), err)
			c.failure.Add(1)
			continue
		}
		c.success.Add(1)
	}
}
