package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caio-sobreiro/dicomizer/codec"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/imagestore"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 20

// Pool owns a fixed set of workers. Job assignment is up to the caller:
// Submit places a job on one worker's queue and Drain takes completions off
// one worker's output queue.
type Pool struct {
	workers []*Worker
	ready   chan struct{}
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for the pool and its workers.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithFetchTimeout bounds each fetch and decode. Zero disables the bound.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		for _, w := range p.workers {
			w.fetchTimeout = timeout
		}
	}
}

// NewPool creates size workers reading frames from store. Workers do not run
// until Start is called.
func NewPool(size int, store imagestore.Store, decoder codec.Decoder, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, dcmerrors.NewArgumentError("workers", fmt.Sprintf("must be at least 1, got %d", size), dcmerrors.ErrMissingArgument)
	}
	if store == nil || decoder == nil {
		return nil, fmt.Errorf("fetch pool requires a store and a decoder")
	}

	p := &Pool{
		workers: make([]*Worker, size),
		ready:   make(chan struct{}, 1),
	}
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:      i,
			store:   store,
			decoder: decoder,
			input:   NewQueue[*Job](),
			output:  NewQueue[Completion](),
			ready:   p.ready,
		}
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, w := range p.workers {
		w.logger = p.logger
	}
	return p, nil
}

// Start launches one goroutine per worker. Canceling ctx has the same effect
// as Stop, except that Stop also waits for the workers to exit.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return dcmerrors.ErrPoolStopped
	}
	if p.cancel != nil {
		return fmt.Errorf("fetch pool already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.run(ctx)
		}(w)
	}

	p.logger.Info("Fetch pool started", "workers", len(p.workers))
	return nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Submit appends job to the input queue of worker index.
func (p *Pool) Submit(job *Job, index int) error {
	if index < 0 || index >= len(p.workers) {
		return fmt.Errorf("worker index %d out of range [0,%d)", index, len(p.workers))
	}

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return dcmerrors.ErrPoolStopped
	}

	p.workers[index].input.Push(job)
	p.logger.Debug("Fetch job submitted",
		"worker", index,
		"frame_id", job.FrameID,
		"sop_instance", job.InstanceUID)
	return nil
}

// Drain pops one completion from the output queue of worker index.
func (p *Pool) Drain(index int) (Completion, bool) {
	if index < 0 || index >= len(p.workers) {
		return Completion{}, false
	}
	return p.workers[index].output.TryPop()
}

// Ready is signaled whenever any worker pushes a completion. A single
// signal may stand for several completions, so consumers should drain every
// worker after receiving it.
func (p *Pool) Ready() <-chan struct{} {
	return p.ready
}

// States returns a snapshot of every worker's state.
func (p *Pool) States() []State {
	states := make([]State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

// Pending returns the number of jobs not yet picked up by any worker.
func (p *Pool) Pending() int {
	pending := 0
	for _, w := range p.workers {
		pending += w.input.Len()
	}
	return pending
}

// Stop signals every worker to exit and waits for them. Workers finish the
// job they are processing first. Stop may be called more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("Fetch pool stopped", "workers", len(p.workers))
}
