// Package expr implements the Failure-Condition Evaluator (spec §4.3): a
// compile-once, evaluate-many goja sandbox exposing the fixed vocabulary of
// if/fail_if/goto*/run* expressions. Shaped on the teacher pack's only JS
// sandbox, r3e-network-service_layer's system/tee/script_engine.go — a
// fresh goja.Runtime per evaluation, a frozen set of injected globals, and
// safe-default-on-error instead of propagating JS panics into the engine.
package expr

// Issue is one PR/code-review finding visible to hasIssue/countIssues and
// to expressions reading pr.issues directly.
type Issue struct {
	File     string
	Line     int
	Severity string
	Message  string
	RuleID   string
}

// PRInfo is the read-only PR/issue context exposed as the `pr` global
// (§4.3: "pr (PR/issue context)").
type PRInfo struct {
	Number     int
	Title      string
	Author     string
	BaseBranch string
	HeadBranch string
	Files      []string
	Issues     []Issue
	Labels     []string
	// Permission inputs consumed by the isOwner/isMember/hasMinPermission
	// helpers (permissions.go).
	AuthorAssociation string // e.g. "OWNER", "MEMBER", "COLLABORATOR", "NONE"
	AuthorPermission  string // e.g. "admin", "write", "triage", "read", "none"
}

// Context is everything one evaluation call needs. Every field is copied
// into the sandbox as a frozen value or bound helper; nothing here is ever
// mutated by a running expression (§4.3 "deterministic, side-effect free").
type Context struct {
	// Output is the current check's own outputValue, meaningful only for
	// fail_if expressions (§4.3 "output (current check's entry)").
	Output any
	// Outputs is currentValue(depId) for every dependency id reachable
	// from this check, keyed by checkId.
	Outputs map[string]any
	// History is history(depId) for every dependency id, keyed by checkId.
	History map[string][]any
	// Metadata carries issue-severity counts and any other aggregate
	// figures the runtime precomputes per §4.3 "metadata (counts of
	// issues by severity)".
	Metadata map[string]any
	// Env is the whitelisted subset of environment variables the run
	// configuration exposes to expressions (§6.1 env allowlist).
	Env map[string]string
	// Memory is the read-only view over internal/memstore (get/has/list/
	// getAll only, per §6.2 and the package doc in internal/memstore).
	Memory MemoryView
	// PR is the PR/issue context.
	PR PRInfo
}

// MemoryView is the restricted surface internal/memstore.Store exposes to
// expressions — no Set/Append/Increment/Delete/Clear.
type MemoryView interface {
	Get(key, ns string) any
	Has(key, ns string) bool
	List(ns string) []string
	GetAll(ns string) map[string]any
}
