// Package pool is a fixed-size work-stealing pool of worker goroutines.
//
// Every worker owns a deque. Work forked by a worker is pushed to the bottom
// of its own deque and popped back LIFO; an idle worker steals from the top of
// a randomly chosen peer. Submissions from goroutines outside the pool go
// through a FIFO injector queue and block the submitter until they finish.
//
// Tasks receive the *Worker executing them and fork nested work through it,
// so submission from inside a task never blocks a worker:
//
//	p.Install(func(w *pool.Worker) {
//	    w.Join(left, right)
//	})
//
// A task may also call Install on its own pool. When every worker is already
// running a task the submitter runs the new task itself, so nesting never
// waits on a queue nobody is left to drain.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// EnvNumWorkers names the environment variable that sets the worker count of
// the global pool.
const EnvNumWorkers = "CAPBENCH_NUM_WORKERS"

// ErrGlobalInitialized is returned by InitGlobal once the global pool exists.
var ErrGlobalInitialized = errors.New("pool: global pool already initialized")

// Config controls pool construction.
type Config struct {
	NumWorkers int // Worker goroutines (default: GOMAXPROCS)
}

// DefaultConfig sizes the pool to the host's usable parallelism.
func DefaultConfig() Config {
	return Config{NumWorkers: runtime.GOMAXPROCS(0)}
}

// ConfigFromEnv returns DefaultConfig overridden by CAPBENCH_NUM_WORKERS.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	raw, ok := os.LookupEnv(EnvNumWorkers)
	if !ok || raw == "" {
		return cfg, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return cfg, fmt.Errorf("pool: parse %s=%q: %w", EnvNumWorkers, raw, err)
	}
	if n < 1 {
		return cfg, fmt.Errorf("pool: %s must be positive, got %d", EnvNumWorkers, n)
	}

	cfg.NumWorkers = n
	return cfg, nil
}

// Validate reports whether the config can build a pool.
func (c Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("pool: worker count must be positive, got %d", c.NumWorkers)
	}
	return nil
}

// Stats are monotonic counters describing pool activity.
type Stats struct {
	Workers  int
	Executed uint64 // Tasks run to completion
	Stolen   uint64 // Tasks taken from a peer's deque
	Injected uint64 // Install calls queued for a worker
	Inline   uint64 // Install calls run by the submitter, every worker busy
}

// Pool schedules tasks over a fixed set of workers.
type Pool struct {
	workers []*Worker

	injectMu sync.Mutex
	injected []*job

	// pending counts queued tasks across all deques and the injector.
	pending  atomic.Int64
	sleepers atomic.Int32
	sleepMu  sync.Mutex
	wake     *sync.Cond
	closed   atomic.Bool

	// busy counts workers currently inside a task.
	busy atomic.Int32

	group errgroup.Group

	executed      atomic.Uint64
	stolen        atomic.Uint64
	injectedTotal atomic.Uint64
	inline        atomic.Uint64
}

// New starts a pool with cfg.NumWorkers workers.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{workers: make([]*Worker, cfg.NumWorkers)}
	p.wake = sync.NewCond(&p.sleepMu)

	for i := range p.workers {
		p.workers[i] = &Worker{
			pool:  p,
			index: i,
			rng:   rand.New(rand.NewPCG(uint64(i)+1, 0x9e3779b97f4a7c15)),
		}
	}
	for _, w := range p.workers {
		p.group.Go(func() error {
			w.loop()
			return nil
		})
	}

	return p, nil
}

// NumWorkers returns the number of workers.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  len(p.workers),
		Executed: p.executed.Load(),
		Stolen:   p.stolen.Load(),
		Injected: p.injectedTotal.Load(),
		Inline:   p.inline.Load(),
	}
}

// Install runs fn on a pool worker and blocks until it returns. A panic in
// fn, or in any task it joined, is re-raised in the caller.
//
// Install may be called from inside a task of p. If every worker is busy at
// submission, the caller runs fn itself on a guest worker whose forks are
// never stolen. Code running on a worker should still prefer forking through
// its *Worker. Install must not race with Close.
func (p *Pool) Install(fn func(w *Worker)) {
	if p.closed.Load() {
		panic("pool: Install on closed pool")
	}

	j := &job{fn: func(w *Worker, _ bool) { fn(w) }}

	// A blocked worker stays busy, so the last worker to nest a submission
	// always sees every worker busy and takes this branch.
	if int(p.busy.Load()) >= len(p.workers) {
		p.inline.Add(1)
		p.guest().execute(j)
		if j.panicked != nil {
			panic(j.panicked)
		}
		return
	}

	j.wait = make(chan struct{})

	p.injectMu.Lock()
	p.injected = append(p.injected, j)
	p.injectMu.Unlock()
	p.injectedTotal.Add(1)
	p.notify()

	<-j.wait
	if j.panicked != nil {
		panic(j.panicked)
	}
}

func (p *Pool) guest() *Worker {
	return &Worker{
		pool:  p,
		index: -1,
		guest: true,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Close stops the workers once the queues drain and waits for them to exit.
// Closing twice is a no-op.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.sleepMu.Lock()
	p.wake.Broadcast()
	p.sleepMu.Unlock()

	return p.group.Wait()
}

// notify records one more queued task and wakes a sleeping worker.
//
// A worker registers as a sleeper before it re-reads pending, and the task
// is counted before sleepers is read here, so one of the two sides always
// observes the other.
func (p *Pool) notify() {
	p.pending.Add(1)
	if p.sleepers.Load() > 0 {
		p.sleepMu.Lock()
		p.wake.Signal()
		p.sleepMu.Unlock()
	}
}

func (p *Pool) popInjected() *job {
	p.injectMu.Lock()
	defer p.injectMu.Unlock()

	if len(p.injected) == 0 {
		return nil
	}
	j := p.injected[0]
	p.injected[0] = nil
	p.injected = p.injected[1:]
	p.pending.Add(-1)
	return j
}

var (
	globalMu   sync.Mutex
	globalPool atomic.Pointer[Pool]
)

// Global returns the process-wide pool, building it on first use from
// ConfigFromEnv. An invalid environment value is logged and ignored.
func Global() *Pool {
	if p := globalPool.Load(); p != nil {
		return p
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if p := globalPool.Load(); p != nil {
		return p
	}

	cfg, err := ConfigFromEnv()
	if err != nil {
		slog.Warn("ignoring worker count from environment", "err", err)
		cfg = DefaultConfig()
	}

	p, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("pool: build global pool: %v", err))
	}
	globalPool.Store(p)
	slog.Debug("global pool started", "workers", p.NumWorkers())
	return p
}

// InitGlobal builds the global pool from cfg. It fails if the pool already
// exists, including when an earlier call to Global built it implicitly.
func InitGlobal(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool.Load() != nil {
		return ErrGlobalInitialized
	}

	p, err := New(cfg)
	if err != nil {
		return err
	}
	globalPool.Store(p)
	return nil
}
