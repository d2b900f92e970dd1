package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/RevCBH/berth/internal/workload"
)

// MaxPasses bounds the number of scans over pending workloads.
const MaxPasses = 10

// ContainerQuery reports whether a container with the given name or alias
// is already running outside the current batch.
type ContainerQuery interface {
	HasContainer(ctx context.Context, name string) (bool, error)
}

// QueryFunc adapts a function to ContainerQuery.
type QueryFunc func(ctx context.Context, name string) (bool, error)

// HasContainer calls f.
func (f QueryFunc) HasContainer(ctx context.Context, name string) (bool, error) {
	return f(ctx, name)
}

// Pending is a workload that could not be placed, with the dependency
// names that were still unmet on the final pass.
type Pending struct {
	Workload workload.Workload
	Missing  []string
}

// UnresolvedError indicates some workloads' dependencies could never be
// satisfied. Cycles, typos and absent external containers all end here.
type UnresolvedError struct {
	Pending     []Pending
	Passes      int
	SteadyState bool
}

func (e *UnresolvedError) Error() string {
	var b strings.Builder
	if e.SteadyState {
		fmt.Fprintf(&b, "cannot resolve start order: no progress after %d passes", e.Passes)
	} else {
		fmt.Fprintf(&b, "cannot resolve start order: gave up after %d passes", e.Passes)
	}
	b.WriteString("; unresolved workloads:")
	for _, p := range e.Pending {
		fmt.Fprintf(&b, "\n* %s depends on %s", p.Workload.Key(), strings.Join(p.Missing, ","))
	}
	return b.String()
}

// Resolver computes a start order for a batch of workloads.
type Resolver struct {
	query     ContainerQuery
	maxPasses int
}

// New creates a Resolver. A nil query treats every external lookup as
// "not running".
func New(query ContainerQuery) *Resolver {
	return &Resolver{query: query, maxPasses: MaxPasses}
}

// entry is one slot in the worklist; deps is fixed at construction.
type entry struct {
	w    workload.Workload
	deps []string
}

// Resolve orders workloads so that each dependency is either running
// already or owned by a workload placed earlier. Workloads that become
// resolvable in the same pass keep their input order.
func (r *Resolver) Resolve(ctx context.Context, workloads []workload.Workload) ([]workload.Workload, error) {
	resolved := make([]workload.Workload, 0, len(workloads))
	satisfied := make(map[string]bool)
	place := func(w workload.Workload) {
		resolved = append(resolved, w)
		for _, n := range w.Names() {
			satisfied[n] = true
		}
	}

	// First pass: anything without dependencies goes straight in.
	var pending []entry
	for _, w := range workloads {
		deps := w.Dependencies()
		if len(deps) == 0 {
			place(w)
			continue
		}
		pending = append(pending, entry{w: w, deps: deps})
	}

	passes := 0
	for len(pending) > 0 {
		if passes >= r.maxPasses {
			return nil, r.unresolved(ctx, pending, satisfied, passes, false)
		}
		passes++

		var next []entry
		for _, e := range pending {
			missing, err := r.missing(ctx, e.deps, satisfied)
			if err != nil {
				return nil, err
			}
			if len(missing) == 0 {
				place(e.w)
				continue
			}
			next = append(next, e)
		}

		if len(next) == len(pending) {
			return nil, r.unresolved(ctx, next, satisfied, passes, true)
		}
		pending = next
	}

	return resolved, nil
}

// missing returns the dependencies that are neither satisfied by the batch
// nor running externally.
func (r *Resolver) missing(ctx context.Context, deps []string, satisfied map[string]bool) ([]string, error) {
	var out []string
	for _, d := range deps {
		if satisfied[d] {
			continue
		}
		if r.query != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			running, err := r.query.HasContainer(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("query container %q: %w", d, err)
			}
			if running {
				continue
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Resolver) unresolved(ctx context.Context, pending []entry, satisfied map[string]bool, passes int, steady bool) error {
	uerr := &UnresolvedError{Passes: passes, SteadyState: steady}
	for _, e := range pending {
		missing, err := r.missing(ctx, e.deps, satisfied)
		if err != nil {
			return err
		}
		uerr.Pending = append(uerr.Pending, Pending{Workload: e.w, Missing: missing})
	}
	return uerr
}
