// Package noop implements the routing-pivot check type (SPEC_FULL §4):
// a provider that always succeeds with a nil output, useful as a goto
// target that exists purely to branch execution.
package noop

import (
	"context"

	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider always succeeds with OutputValue == nil.
type Provider struct{}

// New constructs a noop Provider.
func New() *Provider { return &Provider{} }

func (*Provider) Name() string        { return "noop" }
func (*Provider) Description() string { return "always-succeeds routing pivot; produces no output" }

func (*Provider) ValidateConfig(map[string]any) bool { return true }

func (*Provider) Execute(context.Context, provider.Request) (provider.Result, error) {
	return provider.Result{OutputValue: nil}, nil
}
