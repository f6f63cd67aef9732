package eventbus

import "testing"

type recordingEmitter struct{ envs []Envelope }

func (r *recordingEmitter) Emit(e Envelope)         { r.envs = append(r.envs, e) }
func (r *recordingEmitter) EmitBatch(es []Envelope) { r.envs = append(r.envs, es...) }
func (r *recordingEmitter) Flush() error            { return nil }

func TestBusPublishStampsEnvelope(t *testing.T) {
	rec := &recordingEmitter{}
	i := 0
	bus := New(rec, "run-1", func() string { i++; return "id-" + string(rune('0'+i)) })

	bus.Publish("", 2, KindCheckScheduled, CheckScheduled{CheckID: "lint", Scope: "/"})

	if len(rec.envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(rec.envs))
	}
	env := rec.envs[0]
	if env.RunID != "run-1" || env.Wave != 2 || env.Kind != KindCheckScheduled {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.ID == "" || env.Timestamp.IsZero() {
		t.Fatalf("expected ID and Timestamp to be stamped: %+v", env)
	}
}

func TestBufferedEmitterFlushesAtCapacity(t *testing.T) {
	rec := &recordingEmitter{}
	buf := NewBufferedEmitter(rec, 2)

	buf.Emit(Envelope{Kind: KindWaveRetry})
	if len(rec.envs) != 0 {
		t.Fatalf("expected no flush yet, got %d", len(rec.envs))
	}
	buf.Emit(Envelope{Kind: KindWaveRetry})
	if len(rec.envs) != 2 {
		t.Fatalf("expected flush at capacity, got %d", len(rec.envs))
	}
}

func TestNoopEmitterDiscards(t *testing.T) {
	var e Emitter = NoopEmitter{}
	e.Emit(Envelope{})
	e.EmitBatch([]Envelope{{}})
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
