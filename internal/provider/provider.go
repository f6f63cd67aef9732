// Package provider defines the Provider Registry and Provider Contract
// (spec §4.4, §6.3): the engine looks up a provider by CheckSpec.Type and
// never inspects its inner state. Concrete providers live in sibling
// subpackages (command, httpcheck, script, memory, ai, noop, workflow).
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/expr"
)

// Request bundles everything Execute needs (§6.3): the PR/issue context,
// the check's own provider config, the visible dependency results, and the
// shared execution context.
type Request struct {
	PR                expr.PRInfo
	Config            map[string]any
	DependencyResults map[string]any
	Exec              execctx.Context
}

// Result is what Execute produces on success. SessionID is only
// meaningful for AI providers (§6.3 "For AI providers only").
type Result struct {
	OutputValue any
	SessionID   string
}

// Provider is the contract every check type must satisfy (§6.3).
type Provider interface {
	Name() string
	Description() string
	ValidateConfig(config map[string]any) bool
	Execute(ctx context.Context, req Request) (Result, error)
}

// Registry looks up a Provider by CheckType (§4.4).
type Registry struct {
	mu        sync.RWMutex
	providers map[engine.CheckType]Provider
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[engine.CheckType]Provider)}
}

// Register binds a Provider to a CheckType, overwriting any previous
// binding. Intended to be called once per type during engine setup.
func (r *Registry) Register(t engine.CheckType, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[t] = p
}

// Lookup returns the provider bound to t, or an error naming the unknown
// type — the Check Runtime surfaces this as a terminal ProviderTerminal
// failure for the check (§7).
func (r *Registry) Lookup(t engine.CheckType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("no provider registered for check type %q", t)
	}
	return p, nil
}

// Types returns the registered check types in deterministic order, used
// by the CLI harness and diagnostics.
func (r *Registry) Types() []engine.CheckType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]engine.CheckType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
