package workflow

import (
	"context"
	"testing"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/eventbus"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/provider"
)

type echoProvider struct{}

func (echoProvider) Name() string                       { return "echo" }
func (echoProvider) Description() string                { return "test fixture" }
func (echoProvider) ValidateConfig(map[string]any) bool { return true }
func (echoProvider) Execute(context.Context, provider.Request) (provider.Result, error) {
	return provider.Result{OutputValue: "ok"}, nil
}

func TestExecuteRunsPrefixScopedSubCatalogToCompletion(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"review.security.scan":   {ID: "review.security.scan", Type: engine.CheckCommand},
		"review.security.report": {ID: "review.security.report", Type: engine.CheckCommand, DependsOn: []engine.DependencyToken{{Alternatives: []string{"review.security.scan"}}}},
		"unrelated":              {ID: "unrelated", Type: engine.CheckCommand},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckCommand, echoProvider{})

	p := New(checks, reg, 0, nil)

	res, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prefix": "review.security."},
		Exec:   execctx.Context{Std: context.Background(), RunID: "run-1", CheckID: "nested"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, ok := res.OutputValue.(map[string]any)
	if !ok {
		t.Fatalf("expected map output, got %T", res.OutputValue)
	}
	if out["finalState"] != "Completed" {
		t.Fatalf("expected Completed, got %v", out["finalState"])
	}
	if out["checksRun"] != 2 {
		t.Fatalf("expected only the two prefixed checks to run, got %+v", out)
	}
}

func TestExecuteRejectsMissingPrefix(t *testing.T) {
	p := New(nil, provider.NewRegistry(), 0, nil)
	_, err := p.Execute(context.Background(), provider.Request{Config: map[string]any{}})
	if err == nil {
		t.Fatal("expected an error for a missing prefix")
	}
}

func TestExecuteBubblesChildEnvelopesToParentChannel(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"wf.a": {ID: "wf.a", Type: engine.CheckCommand},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckCommand, echoProvider{})

	bubble := make(chan eventbus.Envelope, 32)
	p := New(checks, reg, 0, bubble)

	_, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prefix": "wf."},
		Exec:   execctx.Context{Std: context.Background(), RunID: "run-1", CheckID: "nested-wf"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(bubble)

	var sawCompletion bool
	for env := range bubble {
		if env.WorkflowID != "nested-wf" {
			t.Fatalf("expected every bubbled envelope tagged with the owning check id, got %q", env.WorkflowID)
		}
		if env.Kind == eventbus.KindCheckCompleted {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Fatal("expected at least one CheckCompleted envelope to bubble up")
	}
}

func TestExecuteEmptySubCatalogIsANoop(t *testing.T) {
	p := New(map[string]engine.CheckSpec{"a": {ID: "a", Type: engine.CheckCommand}}, provider.NewRegistry(), 0, nil)
	res, err := p.Execute(context.Background(), provider.Request{Config: map[string]any{"prefix": "nomatch."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := res.OutputValue.(map[string]any)
	if out["checksRun"] != 0 {
		t.Fatalf("expected zero checks run for an empty sub-catalog, got %+v", out)
	}
}
