package pool

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
)

type job struct {
	fn    func(w *Worker, migrated bool)
	owner *Worker       // nil for injected tasks
	wait  chan struct{} // closed on completion, injected tasks only

	// panicked is written before done is set.
	panicked any
	done     atomic.Bool
}

// Worker is one pool goroutine, or a guest standing in for one inside a
// nested Install. A *Worker is only valid inside the task it was handed to.
type Worker struct {
	pool  *Pool
	index int
	guest bool
	depth int        // tasks on this goroutine's stack
	rng   *rand.Rand // owned by the worker goroutine

	mu    sync.Mutex
	deque []*job
}

// Index returns the worker's position in the pool, in [0, NumWorkers), or -1
// for a guest.
func (w *Worker) Index() int {
	return w.index
}

// Pool returns the pool the worker belongs to.
func (w *Worker) Pool() *Pool {
	return w.pool
}

// Join runs a and b, potentially in parallel, and returns when both are done.
func (w *Worker) Join(a, b func(w *Worker)) {
	w.JoinContext(
		func(w *Worker, _ bool) { a(w) },
		func(w *Worker, _ bool) { b(w) },
	)
}

// JoinContext is Join with a migrated flag: it is true when the function runs
// on a worker other than the one that forked it, i.e. b was stolen.
//
// b is pushed on the worker's deque and a runs inline. Afterwards b is popped
// back and run inline if no peer took it; otherwise the worker executes other
// queued tasks until the thief finishes b. A panic in either function is
// re-raised after both have completed.
func (w *Worker) JoinContext(a, b func(w *Worker, migrated bool)) {
	jb := &job{fn: b, owner: w}
	w.push(jb)

	panicA := catch(func() { a(w, false) })

	if w.popIf(jb) {
		w.execute(jb)
	} else {
		for !jb.done.Load() {
			if j := w.findWork(); j != nil {
				w.execute(j)
				continue
			}
			runtime.Gosched()
		}
	}

	if panicA != nil {
		panic(panicA)
	}
	if jb.panicked != nil {
		panic(jb.panicked)
	}
}

func (w *Worker) loop() {
	p := w.pool
	for {
		if j := w.findWork(); j != nil {
			w.execute(j)
			continue
		}

		p.sleepMu.Lock()
		p.sleepers.Add(1)
		for p.pending.Load() <= 0 && !p.closed.Load() {
			p.wake.Wait()
		}
		p.sleepers.Add(-1)
		p.sleepMu.Unlock()

		if p.closed.Load() && p.pending.Load() <= 0 {
			return
		}
	}
}

func (w *Worker) execute(j *job) {
	w.enter()
	j.panicked = catch(func() { j.fn(w, j.owner != w) })
	w.leave()
	w.pool.executed.Add(1)
	j.done.Store(true)
	if j.wait != nil {
		close(j.wait)
	}
}

// enter and leave track whether a pool worker is inside a task. They run
// before done is set, so a submitter woken by a finished task sees the
// worker free again.
func (w *Worker) enter() {
	if w.depth++; w.depth == 1 && !w.guest {
		w.pool.busy.Add(1)
	}
}

func (w *Worker) leave() {
	if w.depth--; w.depth == 0 && !w.guest {
		w.pool.busy.Add(-1)
	}
}

// findWork prefers the worker's own newest task, then external submissions,
// then a steal.
func (w *Worker) findWork() *job {
	if j := w.popBottom(); j != nil {
		return j
	}
	if j := w.pool.popInjected(); j != nil {
		return j
	}
	return w.steal()
}

func (w *Worker) push(j *job) {
	w.mu.Lock()
	w.deque = append(w.deque, j)
	w.mu.Unlock()
	if !w.guest {
		w.pool.notify()
	}
}

// taken records that a task left the deque.
func (w *Worker) taken() {
	if !w.guest {
		w.pool.pending.Add(-1)
	}
}

func (w *Worker) popBottom() *job {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.deque)
	if n == 0 {
		return nil
	}
	j := w.deque[n-1]
	w.deque[n-1] = nil
	w.deque = w.deque[:n-1]
	w.taken()
	return j
}

// popIf removes j if it is still the newest entry of the deque.
func (w *Worker) popIf(j *job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.deque)
	if n == 0 || w.deque[n-1] != j {
		return false
	}
	w.deque[n-1] = nil
	w.deque = w.deque[:n-1]
	w.taken()
	return true
}

func (w *Worker) popTop() *job {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.deque) == 0 {
		return nil
	}
	j := w.deque[0]
	w.deque[0] = nil
	w.deque = w.deque[1:]
	w.taken()
	return j
}

func (w *Worker) steal() *job {
	peers := w.pool.workers
	if len(peers) == 1 {
		return nil
	}

	start := w.rng.IntN(len(peers))
	for i := range peers {
		victim := peers[(start+i)%len(peers)]
		if victim == w {
			continue
		}
		if j := victim.popTop(); j != nil {
			w.pool.stolen.Add(1)
			return j
		}
	}
	return nil
}

// catch runs fn and returns the value it panicked with, if any.
func catch(fn func()) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}
