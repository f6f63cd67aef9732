// Package memory implements the "memory" check type, the full read/write
// surface over internal/memstore's namespaced key/value store (spec §6.2),
// unlike the restricted get/has/list/getAll view internal/expr exposes to
// guard expressions.
package memory

import (
	"context"
	"fmt"

	"github.com/probelabs/visor-sub002/internal/memstore"
	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider performs one memstore operation per check invocation,
// configured by config["op"].
type Provider struct {
	Store *memstore.Store
}

// New constructs a memory Provider bound to store.
func New(store *memstore.Store) *Provider {
	return &Provider{Store: store}
}

func (*Provider) Name() string        { return "memory" }
func (*Provider) Description() string { return "reads or writes the shared memory store" }

var validOps = map[string]bool{
	"get": true, "has": true, "list": true, "getAll": true,
	"set": true, "append": true, "increment": true, "delete": true, "clear": true,
}

// ValidateConfig requires a recognized "op" and, for key-addressed ops, a
// non-empty "key".
func (*Provider) ValidateConfig(config map[string]any) bool {
	op, ok := config["op"].(string)
	if !ok || !validOps[op] {
		return false
	}
	switch op {
	case "list", "getAll", "clear":
		return true
	default:
		key, ok := config["key"].(string)
		return ok && key != ""
	}
}

// Execute dispatches to the configured memstore operation.
func (p *Provider) Execute(_ context.Context, req provider.Request) (provider.Result, error) {
	op, _ := req.Config["op"].(string)
	key, _ := req.Config["key"].(string)
	ns, _ := req.Config["namespace"].(string)

	switch op {
	case "get":
		return provider.Result{OutputValue: p.Store.Get(key, ns)}, nil
	case "has":
		return provider.Result{OutputValue: p.Store.Has(key, ns)}, nil
	case "list":
		return provider.Result{OutputValue: p.Store.List(ns)}, nil
	case "getAll":
		return provider.Result{OutputValue: p.Store.GetAll(ns)}, nil
	case "set":
		if err := p.Store.Set(key, req.Config["value"], ns); err != nil {
			return provider.Result{}, fmt.Errorf("memory: set: %w", err)
		}
		return provider.Result{OutputValue: req.Config["value"]}, nil
	case "append":
		if err := p.Store.Append(key, req.Config["value"], ns); err != nil {
			return provider.Result{}, fmt.Errorf("memory: append: %w", err)
		}
		return provider.Result{OutputValue: p.Store.Get(key, ns)}, nil
	case "increment":
		delta := 1.0
		if d, ok := req.Config["delta"].(float64); ok {
			delta = d
		}
		next, err := p.Store.Increment(key, delta, ns)
		if err != nil {
			return provider.Result{}, fmt.Errorf("memory: increment: %w", err)
		}
		return provider.Result{OutputValue: next}, nil
	case "delete":
		if err := p.Store.Delete(key, ns); err != nil {
			return provider.Result{}, fmt.Errorf("memory: delete: %w", err)
		}
		return provider.Result{OutputValue: nil}, nil
	case "clear":
		p.Store.Clear(ns)
		return provider.Result{OutputValue: nil}, nil
	default:
		return provider.Result{}, fmt.Errorf("memory: unrecognized op %q", op)
	}
}
