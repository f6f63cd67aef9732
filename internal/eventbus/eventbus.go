// Package eventbus implements the engine's event bus (spec §6.4): a typed
// envelope with a common header and a payload union, published
// fire-and-forget to a pluggable Emitter. Adapted from the teacher's
// graph/emit package, generalizing its flat Event{RunID,Step,NodeID,Msg,
// Meta} shape into the envelope/payload structure §6.4 specifies.
package eventbus

import "time"

// PayloadKind discriminates Envelope.Payload's concrete type.
type PayloadKind string

// Recognized payload kinds (§6.4).
const (
	KindStateTransition     PayloadKind = "StateTransition"
	KindCheckScheduled      PayloadKind = "CheckScheduled"
	KindCheckCompleted      PayloadKind = "CheckCompleted"
	KindCheckErrored        PayloadKind = "CheckErrored"
	KindForwardRunRequested PayloadKind = "ForwardRunRequested"
	KindWaveRetry           PayloadKind = "WaveRetry"
	KindShutdown            PayloadKind = "Shutdown"
)

// StateTransition is the runner's Init/PlanReady/... payload.
type StateTransition struct{ From, To string }

// CheckScheduled marks a check about to execute at scope.
type CheckScheduled struct {
	CheckID string
	Scope   string
}

// CheckCompleted marks a check's terminal journal status.
type CheckCompleted struct {
	CheckID string
	Scope   string
	Status  string
}

// CheckErrored carries a terminal provider/runtime error.
type CheckErrored struct {
	CheckID string
	Scope   string
	Error   string
}

// ForwardRunRequested mirrors a routing directive's emitted request.
type ForwardRunRequested struct {
	Target    string
	GotoEvent string
	Origin    string // "goto" | "run"
	Scope     string
}

// WaveRetry records why the Wave Planner re-queued gated checks.
type WaveRetry struct{ Reason string }

// Shutdown marks cooperative run termination, optionally carrying the
// triggering error.
type Shutdown struct{ Error string }

// Envelope is the common header wrapping every payload (§6.4).
type Envelope struct {
	ID         string
	Version    int
	Timestamp  time.Time
	RunID      string
	WorkflowID string // set only inside a nested workflow (§4.10)
	Wave       int
	Kind       PayloadKind
	Payload    any
}

// Emitter receives envelopes. Implementations must not block the caller
// for more than a bounded time (§6.4 "Back-pressure").
type Emitter interface {
	Emit(env Envelope)
	EmitBatch(envs []Envelope)
	Flush() error
}

// Bus publishes envelopes to one configured Emitter, stamping IDs/
// timestamps/version/RunID so callers only supply WorkflowID/Wave/Kind/
// Payload.
type Bus struct {
	emitter Emitter
	nextID  func() string
	runID   string
}

// New constructs a Bus bound to emitter for one run. nextID generates
// envelope ids (callers typically pass google/uuid's uuid.NewString).
func New(emitter Emitter, runID string, nextID func() string) *Bus {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &Bus{emitter: emitter, nextID: nextID, runID: runID}
}

// Publish emits one envelope of kind carrying payload at the given wave
// (and, for nested workflows, workflowID).
func (b *Bus) Publish(workflowID string, wave int, kind PayloadKind, payload any) {
	b.emitter.Emit(Envelope{
		ID:         b.nextID(),
		Version:    1,
		Timestamp:  time.Now(),
		RunID:      b.runID,
		WorkflowID: workflowID,
		Wave:       wave,
		Kind:       kind,
		Payload:    payload,
	})
}

// Flush delegates to the configured Emitter.
func (b *Bus) Flush() error { return b.emitter.Flush() }

// NoopEmitter discards every envelope; the zero-configuration default.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Envelope)        {}
func (NoopEmitter) EmitBatch([]Envelope) {}
func (NoopEmitter) Flush() error         { return nil }
