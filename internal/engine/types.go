// Package engine holds the Check Execution Engine's data model and error
// taxonomy shared across the planner, runtime, routing, and journal
// packages. The top-level state-machine runner lives in the runner
// subpackage.
package engine

import "time"

// CheckType enumerates the kinds of work a CheckSpec can describe.
type CheckType string

// Recognized check types.
const (
	CheckAI       CheckType = "ai"
	CheckCommand  CheckType = "command"
	CheckHTTP     CheckType = "http"
	CheckScript   CheckType = "script"
	CheckMemory   CheckType = "memory"
	CheckWorkflow CheckType = "workflow"
	CheckNoop     CheckType = "noop"
)

// SessionMode controls how an AI check reuses a parent's session handle.
type SessionMode string

// Recognized session reuse modes (§4.5).
const (
	SessionClone  SessionMode = "clone"
	SessionAppend SessionMode = "append"
)

// RetryConfig governs the Check Runtime's retry loop (§4.6 step 4).
//
// Zero value means "one attempt, no retry" per spec §3.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64
}

// Attempts returns the effective attempt ceiling, defaulting to 1.
func (r RetryConfig) Attempts() int {
	if r.MaxAttempts <= 0 {
		return 1
	}
	return r.MaxAttempts
}

// DelayFor returns the delay before the given 1-based retry attempt,
// computed as baseDelay * backoff^(attempt-1) per §4.6.
func (r RetryConfig) DelayFor(attempt int) time.Duration {
	if attempt <= 1 || r.BaseDelay <= 0 {
		return 0
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 1
	}
	d := float64(r.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= backoff
	}
	return time.Duration(d)
}

// FailIfExpr is one named predicate inside a CheckSpec's FailIf set.
type FailIfExpr struct {
	Name          string
	Expr          string
	Severity      string
	HaltExecution bool
}

// RoutingDirective bundles the four routing expression slots a
// CheckSpec's onSuccess/onFail directive may populate (§3).
type RoutingDirective struct {
	Goto   string // static ancestor target
	GotoJS string // expression producing a target id or nullish
	Run    []RunTarget
	RunJS  string // expression producing an array of target descriptors
}

// IsEmpty reports whether the directive has nothing to evaluate.
func (r RoutingDirective) IsEmpty() bool {
	return r.Goto == "" && r.GotoJS == "" && len(r.Run) == 0 && r.RunJS == ""
}

// RunTarget is one forward-run target, optionally pinned to a forEach item
// index (§4.7 rule 3).
type RunTarget struct {
	CheckID   string
	ItemIndex *int
}

// OnFinishDirective configures wave-retry of gated checks (§4.8 step 4).
type OnFinishDirective struct {
	Enabled bool
}

// CheckSpec is the immutable, declarative description of one check (§3).
type CheckSpec struct {
	ID             string
	Type           CheckType
	DependsOn      []DependencyToken
	Triggers       map[string]struct{}
	IfExpr         string
	FailIf         []FailIfExpr
	OnSuccess      RoutingDirective
	OnFail         RoutingDirective
	OnFinish       OnFinishDirective
	ForEach        bool
	Group          string
	ProviderConfig map[string]any
	Retry          RetryConfig
	SessionMode    SessionMode
}

// GroupOrID returns Group if set, else the check's own ID, per §6.5.
func (c CheckSpec) GroupOrID() string {
	if c.Group != "" {
		return c.Group
	}
	return c.ID
}

// DependencyToken is either a bare checkId or an "A|B|..." OR-group (§3).
type DependencyToken struct {
	Alternatives []string
}

// IsOr reports whether this token has more than one alternative.
func (d DependencyToken) IsOr() bool { return len(d.Alternatives) > 1 }

// ScopeStep identifies one forEach position: the forEach parent's check id
// and the item index it produced.
type ScopeStep struct {
	CheckID   string
	ItemIndex int
}

// Scope is an ordered sequence of ScopeSteps identifying a position inside
// nested forEach fanouts (§3, GLOSSARY). The empty scope is the root.
type Scope []ScopeStep

// Clone returns an independent copy of the scope.
func (s Scope) Clone() Scope {
	if len(s) == 0 {
		return nil
	}
	out := make(Scope, len(s))
	copy(out, s)
	return out
}

// Extend returns a new scope with one more ScopeStep appended.
func (s Scope) Extend(checkID string, itemIndex int) Scope {
	out := make(Scope, len(s), len(s)+1)
	copy(out, s)
	return append(out, ScopeStep{CheckID: checkID, ItemIndex: itemIndex})
}

// IsPrefixOf reports whether s is a (non-strict) prefix of other — the
// visibility rule of §3 invariant 3 and GLOSSARY "Visibility".
func (s Scope) IsPrefixOf(other Scope) bool {
	if len(s) > len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders a scope as "/checkId[idx]/checkId[idx]" for logging, and
// the root scope as "/".
func (s Scope) String() string {
	if len(s) == 0 {
		return "/"
	}
	out := ""
	for _, step := range s {
		out += "/" + step.CheckID + "[" + itoa(step.ItemIndex) + "]"
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Status is the terminal disposition of one JournalEntry.
type Status string

// Recognized statuses (§3).
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// SkipReason classifies why a check was skipped rather than executed (§3).
type SkipReason string

// Recognized skip reasons.
const (
	SkipIfCondition      SkipReason = "ifCondition"
	SkipDependencyFailed SkipReason = "dependencyFailed"
	SkipTriggerMismatch  SkipReason = "triggerMismatch"
	SkipDepthLimit       SkipReason = "depthLimit"
	SkipRoutingLoopLimit SkipReason = "routingLoopLimit"
)

// EntryError is the structured error carried by a failed JournalEntry.
type EntryError struct {
	Kind    string
	Message string
	Stack   string
}

// JournalEntry is one immutable, append-only execution record (§3).
type JournalEntry struct {
	Seq         uint64
	CheckID     string
	Wave        int
	Scope       Scope
	Attempt     int
	Status      Status
	SkipReason  SkipReason
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMs  int64
	OutputValue any
	Error       *EntryError
	SessionID   string
	DebugInfo   []string
	Group       string
}

// ForwardRunKey is the dedup key for forward-run requests (§3 RunState,
// §4.7 rule 4, §8 boundary invariant).
type ForwardRunKey struct {
	Target string
	Event  string
	Wave   int
	Scope  string // Scope.String(), used as a comparable map key
}

// RunFlags mirrors RunState.flags (§3).
type RunFlags struct {
	FailFastTriggered bool
	ForwardRunActive  bool
	MaxDepth          int
	CurrentDepth      int
}

// CheckStats mirrors RunState.stats per-check counters (§3, §8 invariant).
type CheckStats struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Balance reports whether Total == Succeeded+Failed+Skipped (§8 invariant).
func (c CheckStats) Balance() bool {
	return c.Total == c.Succeeded+c.Failed+c.Skipped
}
