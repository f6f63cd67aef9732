package engine

import "errors"

// EngineError is the engine's structured error type, generalizing the
// teacher's graph.EngineError/graph.NodeError pattern to the error
// taxonomy of spec §7.
type EngineError struct {
	Message string
	Code    string
	CheckID string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.CheckID != "" {
		return "check " + e.CheckID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Error kind codes from spec §7's taxonomy table. These populate
// EngineError.Code and EntryError.Kind.
const (
	KindPlanningCycle         = "PlanningCycle"
	KindDependencyUnsatisfied = "DependencyUnsatisfied"
	KindGuardFalse            = "GuardFalse"
	KindTriggerMismatch       = "TriggerMismatch"
	KindProviderTransient     = "ProviderTransient"
	KindProviderTerminal      = "ProviderTerminal"
	KindPredicateTrue         = "PredicateTrue"
	KindRoutingExprError      = "RoutingExprError"
	KindSessionReuseFailed    = "SessionReuseFailed"
	KindDepthLimitExceeded    = "DepthLimitExceeded"
	KindLoopLimitExceeded     = "LoopLimitExceeded"
	KindShutdown              = "Shutdown"
)

// Sentinel errors surfaced by the engine's public API.
var (
	// ErrNilEngine guards against calling methods on a nil *Engine.
	ErrNilEngine = errors.New("engine is nil")
	// ErrNoStartPlan indicates Run was called before a plan was built.
	ErrNoStartPlan = errors.New("no checks configured")
	// ErrCycle indicates the dependency planner could not produce a full
	// topological order (§4.2 step 3, §7 PlanningCycle).
	ErrCycle = errors.New("dependency cycle detected")
	// ErrRoutingTargetNotAncestor rejects a goto/gotoJs directive whose
	// target is not a transitive ancestor of the issuing check (§4.7 rule 2).
	ErrRoutingTargetNotAncestor = errors.New("goto target is not an ancestor of the issuing check")
	// ErrMaxWorkflowDepth guards nested workflow recursion (§5, §9).
	ErrMaxWorkflowDepth = errors.New("maximum workflow depth exceeded")
)

// Retryable is implemented by errors that the Check Runtime should retry
// rather than fail terminally (§4.6 step 4, §7 ProviderTransient).
type Retryable interface {
	Retryable() bool
}

// IsRetryable returns true if err self-identifies as retryable via the
// Retryable interface. Errors with no opinion are treated as terminal,
// matching the teacher's conservative default (graph/policy.go's
// RetryPolicy.Retryable predicate being required, not assumed).
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
