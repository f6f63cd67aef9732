// Package execctx carries the per-check execution context threaded into
// every provider invocation (spec §6.3, §5): scope, cancellation, parent
// references, and the shared AI concurrency limiter. Grounded on the
// teacher's context-plus-config-struct convention (graph/engine.go passes
// a *RunContext alongside context.Context into node functions).
package execctx

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// Context is the runtime-only collaborator object passed to every
// provider's Execute call (§6.3). It is built fresh per check invocation
// and never mutated concurrently by more than one goroutine.
type Context struct {
	// Std is the Go context.Context carrying cancellation/timeout signals
	// (§5 "Cancellation & timeouts").
	Std context.Context

	RunID   string
	CheckID string
	Scope   engine.Scope
	Wave    int
	Attempt int

	// WorkflowDepth is how many nested workflow checks already enclose this
	// invocation: 0 at the top-level run, incremented by one each time a
	// workflow provider descends into a child engine (§5, §9).
	WorkflowDepth int

	// ParentSessionID is set when this check's SessionMode requests reuse
	// of an ancestor's AI conversation handle (§4.5).
	ParentSessionID string
	SessionMode     engine.SessionMode

	// AILimiter bounds in-flight AI calls across the whole run when
	// non-nil (§5 "Bounded concurrency for AI calls"). Providers acquire
	// around their own call and release when done; the runner never
	// holds the permit itself.
	AILimiter *semaphore.Weighted
}

// WithStd returns a shallow copy of c with Std replaced, used when a
// provider needs to narrow the deadline for a sub-call without mutating
// the shared Context.
func (c Context) WithStd(ctx context.Context) Context {
	c.Std = ctx
	return c
}

// AcquireAI blocks until the shared AI limiter grants a slot, or ctx is
// canceled first. A nil limiter means unbounded concurrency and returns
// immediately.
func (c Context) AcquireAI(ctx context.Context) error {
	if c.AILimiter == nil {
		return nil
	}
	return c.AILimiter.Acquire(ctx, 1)
}

// ReleaseAI releases one previously acquired AI slot. No-op when the
// limiter is nil.
func (c Context) ReleaseAI() {
	if c.AILimiter == nil {
		return
	}
	c.AILimiter.Release(1)
}

// NewAILimiter constructs a shared limiter capping in-flight AI calls at
// maxConcurrency across the whole run. maxConcurrency <= 0 means
// unbounded (nil limiter, §6.1 "max_ai_concurrency").
func NewAILimiter(maxConcurrency int) *semaphore.Weighted {
	if maxConcurrency <= 0 {
		return nil
	}
	return semaphore.NewWeighted(int64(maxConcurrency))
}
