package capbench

import (
	"fmt"
	"sync"

	"github.com/alexshd/capbench/pool"
)

// Predicate decides whether a word is capitalized correctly.
type Predicate func(word string) bool

// Kernel is a predicate implementation parameterized by the pool its parallel
// work runs on. Serial kernels ignore the pool.
type Kernel func(p *pool.Pool, word string) bool

// Variant is one named predicate implementation under benchmark.
type Variant struct {
	Name         string // Stable identifier, used on the command line
	Label        string // Prefix of the timing line
	Parallel     bool   // Dispatches long words to the pool
	ShortCircuit bool   // May stop before visiting every character
	Check        Kernel
}

// Bind fixes the pool a variant runs on. A nil pool binds the global pool,
// resolved on the first long word so serial runs never start it.
func (v Variant) Bind(p *pool.Pool) Predicate {
	check := v.Check
	if p != nil || !v.Parallel {
		return func(word string) bool { return check(p, word) }
	}
	return func(word string) bool { return check(pool.Global(), word) }
}

// Registry holds variants in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Variant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Variant)}
}

// Register adds a variant. Names must be unique and non-empty.
func (r *Registry) Register(v Variant) error {
	if v.Name == "" {
		return fmt.Errorf("variant has no name")
	}
	if v.Check == nil {
		return fmt.Errorf("variant %s has no kernel", v.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[v.Name]; dup {
		return fmt.Errorf("variant %s already registered", v.Name)
	}
	if v.Label == "" {
		v.Label = v.Name
	}
	r.byName[v.Name] = v
	r.order = append(r.order, v.Name)
	return nil
}

// Lookup finds a variant by name.
func (r *Registry) Lookup(name string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byName[name]
	return v, ok
}

// Variants returns every variant in registration order.
func (r *Registry) Variants() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Variant, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Select returns the named variants in the order given. No names selects all.
func (r *Registry) Select(names []string) ([]Variant, error) {
	if len(names) == 0 {
		return r.Variants(), nil
	}

	out := make([]Variant, 0, len(names))
	for _, name := range names {
		v, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown variant %q (have: %v)", name, r.names())
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Parallel filters variants down to the ones that use the pool.
func Parallel(variants []Variant) []Variant {
	var out []Variant
	for _, v := range variants {
		if v.Parallel {
			out = append(out, v)
		}
	}
	return out
}

func serialKernel(_ *pool.Pool, word string) bool { return Valid(word) }

// Default registry, in benchmark order.
var defaultRegistry = func() *Registry {
	r := NewRegistry()
	for _, v := range []Variant{
		{Name: "serial", Label: "basic", ShortCircuit: true, Check: serialKernel},
		{Name: "par_all", Label: "parallel all", Parallel: true, ShortCircuit: true, Check: ValidParAll},
		{Name: "par_find_any_false", Label: "parallel rayon_all", Parallel: true, ShortCircuit: true, Check: ValidParFindAnyFalse},
		{Name: "par_map_reduce_and", Label: "parallel map", Parallel: true, Check: ValidParMapReduceAnd},
		{Name: "par_try_fold", Label: "parallel try fold", Parallel: true, ShortCircuit: true, Check: ValidParTryFold},
	} {
		if err := r.Register(v); err != nil {
			panic(err)
		}
	}
	return r
}()

// DefaultVariants returns the built-in variants in benchmark order.
func DefaultVariants() []Variant {
	return defaultRegistry.Variants()
}

// Lookup finds a built-in variant by name.
func Lookup(name string) (Variant, bool) {
	return defaultRegistry.Lookup(name)
}

// Select picks built-in variants by name.
func Select(names []string) ([]Variant, error) {
	return defaultRegistry.Select(names)
}
