package eventbus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes envelopes to a writer, one line per envelope, in text
// or JSONL mode. Adapted from the teacher's graph/emit.LogEmitter.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter constructs a LogEmitter. A nil writer defaults to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(env Envelope) {
	if l.jsonMode {
		l.emitJSON(env)
	} else {
		l.emitText(env)
	}
}

func (l *LogEmitter) emitJSON(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal envelope: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(env Envelope) {
	_, _ = fmt.Fprintf(l.writer, "[%s] runID=%s wave=%d workflowID=%s payload=%+v\n",
		env.Kind, env.RunID, env.Wave, env.WorkflowID, env.Payload)
}

func (l *LogEmitter) EmitBatch(envs []Envelope) {
	for _, e := range envs {
		l.Emit(e)
	}
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffer (mirrors graph/emit.LogEmitter.Flush).
func (l *LogEmitter) Flush() error { return nil }
