package pool

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()

	p, err := New(Config{NumWorkers: workers})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})
	return p
}

// sum adds lo..hi-1 by recursive forking down to single elements.
func sum(w *Worker, lo, hi int) int {
	if hi-lo == 1 {
		return lo
	}
	mid := lo + (hi-lo)/2
	var left, right int
	w.Join(
		func(w *Worker) { left = sum(w, lo, mid) },
		func(w *Worker) { right = sum(w, mid, hi) },
	)
	return left + right
}

func TestNew_RejectsNonPositiveWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := New(Config{NumWorkers: n})
		assert.Error(t, err, "workers=%d", n)
	}
}

func TestInstall_RunsOnWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, err := New(Config{NumWorkers: 3})
	require.NoError(t, err)

	index := -1
	p.Install(func(w *Worker) {
		index = w.Index()
		assert.Same(t, p, w.Pool())
	})

	assert.GreaterOrEqual(t, index, 0)
	assert.Less(t, index, 3)
	assert.Equal(t, 3, p.NumWorkers())

	require.NoError(t, p.Close())
}

func TestJoin_RecursiveSum(t *testing.T) {
	const n = 1 << 14
	want := n * (n - 1) / 2

	for _, workers := range []int{1, 2, 4, 8} {
		p := newTestPool(t, workers)

		var got int
		p.Install(func(w *Worker) {
			got = sum(w, 0, n)
		})
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestJoin_ReusedAcrossInstalls(t *testing.T) {
	p := newTestPool(t, 4)

	for round := 0; round < 50; round++ {
		var got int
		p.Install(func(w *Worker) {
			got = sum(w, 0, 1000)
		})
		require.Equal(t, 499500, got, "round %d", round)
	}

	stats := p.Stats()
	assert.Equal(t, 4, stats.Workers)
	assert.Equal(t, uint64(50), stats.Injected)
	assert.GreaterOrEqual(t, stats.Executed, uint64(50))
}

func TestJoinContext_MigratedOnlyWhenStolen(t *testing.T) {
	p := newTestPool(t, 1)

	var migrated atomic.Int32
	p.Install(func(w *Worker) {
		w.JoinContext(
			func(_ *Worker, m bool) {
				if m {
					migrated.Add(1)
				}
			},
			func(_ *Worker, m bool) {
				if m {
					migrated.Add(1)
				}
			},
		)
	})

	// A single worker cannot steal from itself.
	assert.Equal(t, int32(0), migrated.Load())
	assert.Equal(t, uint64(0), p.Stats().Stolen)
}

func TestInstall_PropagatesPanicFromForkedTask(t *testing.T) {
	p := newTestPool(t, 2)

	assert.PanicsWithValue(t, "boom", func() {
		p.Install(func(w *Worker) {
			w.Join(
				func(*Worker) {},
				func(*Worker) { panic("boom") },
			)
		})
	})

	// The pool stays usable after a task panicked.
	var got int
	p.Install(func(w *Worker) { got = sum(w, 0, 10) })
	assert.Equal(t, 45, got)
}

// installNested runs sum three Installs deep, starting from outside the pool.
func installNested(p *Pool) <-chan int {
	done := make(chan int, 1)
	go func() {
		var total int
		p.Install(func(*Worker) {
			p.Install(func(*Worker) {
				p.Install(func(w *Worker) { total = sum(w, 0, 1000) })
			})
		})
		done <- total
	}()
	return done
}

func TestInstall_FromInsideTask(t *testing.T) {
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			p, err := New(Config{NumWorkers: workers})
			require.NoError(t, err)

			select {
			case total := <-installNested(p):
				assert.Equal(t, 499500, total)
			case <-time.After(10 * time.Second):
				t.Fatal("nested Install did not return")
			}

			stats := p.Stats()
			assert.NotZero(t, stats.Inline, "innermost Install found every worker busy")
			assert.Equal(t, uint64(3), stats.Injected+stats.Inline)
			require.NoError(t, p.Close())
		})
	}
}

func TestInstall_NestedPanicReachesOuterCaller(t *testing.T) {
	p := newTestPool(t, 1)

	assert.PanicsWithValue(t, "inner", func() {
		p.Install(func(*Worker) {
			p.Install(func(w *Worker) {
				w.Join(func(*Worker) {}, func(*Worker) { panic("inner") })
			})
		})
	})
	assert.Equal(t, uint64(1), p.Stats().Inline)

	// The worker is free again: the next outside call is queued, not inlined.
	var got int
	p.Install(func(w *Worker) { got = sum(w, 0, 10) })
	assert.Equal(t, 45, got)
	assert.Equal(t, uint64(2), p.Stats().Injected)
}

func TestInstall_OnClosedPoolPanics(t *testing.T) {
	p, err := New(Config{NumWorkers: 1})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Panics(t, func() {
		p.Install(func(*Worker) {})
	})
}

func TestClose_StopsAllWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, err := New(Config{NumWorkers: 8})
	require.NoError(t, err)

	var got int
	p.Install(func(w *Worker) { got = sum(w, 0, 4096) })
	require.Equal(t, 4096*4095/2, got)

	require.NoError(t, p.Close())
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("Unset", func(t *testing.T) {
		t.Setenv(EnvNumWorkers, "")
		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("Valid", func(t *testing.T) {
		t.Setenv(EnvNumWorkers, "3")
		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.NumWorkers)
	})

	t.Run("NotANumber", func(t *testing.T) {
		t.Setenv(EnvNumWorkers, "many")
		_, err := ConfigFromEnv()
		assert.ErrorContains(t, err, EnvNumWorkers)
	})

	t.Run("Zero", func(t *testing.T) {
		t.Setenv(EnvNumWorkers, "0")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestGlobal_IsSingleton(t *testing.T) {
	a := Global()
	b := Global()
	require.Same(t, a, b)

	assert.ErrorIs(t, InitGlobal(Config{NumWorkers: 2}), ErrGlobalInitialized)

	var got int
	a.Install(func(w *Worker) { got = sum(w, 0, 100) })
	assert.Equal(t, 4950, got)
}
