// Package journal implements the engine's append-only execution log (spec
// §4.1), generalizing the teacher's store.Store[S] step-history pattern
// (graph/store/memory.go) from a single typed state blob to append-only
// JournalEntry records with scope-prefix visibility.
package journal

import (
	"sort"
	"sync"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// Snapshot is an opaque point in the journal's sequence, returned by
// BeginSnapshot and consumed by ReadVisible (§4.1).
type Snapshot uint64

// Journal is the append-only log contract. The engine's runtime and
// routing packages depend only on this interface; InMemory is its
// implementation. journal/sqlstore separately mirrors completed entries to
// SQL for audit trails and does not implement this interface (§1 "durable persistence" is out of scope for in-flight state,
// but completed entries may still be persisted for history).
type Journal interface {
	// Append writes a new entry and returns its monotonic sequence number.
	Append(entry engine.JournalEntry) uint64

	// BeginSnapshot returns a token capturing "now" in the append order.
	BeginSnapshot() Snapshot

	// ReadVisible returns entries visible to a reader at scope, up to the
	// given snapshot, in append order.
	ReadVisible(snapshot Snapshot, scope engine.Scope) []engine.JournalEntry

	// CurrentValue returns the most recent successful outputValue for
	// checkID at scope (or an ancestor scope, per the prefix-visibility
	// rule), and whether one exists.
	CurrentValue(checkID string, scope engine.Scope) (any, bool)

	// History returns every successful outputValue for checkID at scope,
	// oldest first — the carrier for forEach aggregation (§4.1).
	History(checkID string, scope engine.Scope) []any

	// Entries returns every entry ever appended, in append order. Used by
	// result shaping and the CLI's journal export.
	Entries() []engine.JournalEntry

	// LatestFor returns the most recent entry for checkID at scope
	// regardless of status (used to check skip reasons for wave-retry).
	LatestFor(checkID string, scope engine.Scope) (engine.JournalEntry, bool)
}

// InMemory is the default Journal implementation: a single total order
// protected by a mutex, matching the teacher's MemStore concurrency model
// (graph/store/memory.go) but append-only rather than overwrite-by-runID.
type InMemory struct {
	mu      sync.RWMutex
	entries []engine.JournalEntry
}

// NewInMemory constructs an empty in-memory journal.
func NewInMemory() *InMemory {
	return &InMemory{entries: make([]engine.JournalEntry, 0, 64)}
}

// Append implements Journal.
func (j *InMemory) Append(entry engine.JournalEntry) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.Seq = uint64(len(j.entries)) + 1
	j.entries = append(j.entries, entry)
	return entry.Seq
}

// BeginSnapshot implements Journal.
func (j *InMemory) BeginSnapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot(len(j.entries))
}

// ReadVisible implements Journal.
func (j *InMemory) ReadVisible(snapshot Snapshot, scope engine.Scope) []engine.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]engine.JournalEntry, 0)
	limit := uint64(snapshot)
	for _, e := range j.entries {
		if e.Seq > limit {
			continue
		}
		if e.Scope.IsPrefixOf(scope) {
			out = append(out, e)
		}
	}
	return out
}

// CurrentValue implements Journal.
func (j *InMemory) CurrentValue(checkID string, scope engine.Scope) (any, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var latest *engine.JournalEntry
	for i := range j.entries {
		e := &j.entries[i]
		if e.CheckID != checkID || e.Status != engine.StatusSuccess {
			continue
		}
		if !e.Scope.IsPrefixOf(scope) {
			continue
		}
		if latest == nil || e.Seq > latest.Seq {
			latest = e
		}
	}
	if latest == nil {
		return nil, false
	}
	return latest.OutputValue, true
}

// History implements Journal.
func (j *InMemory) History(checkID string, scope engine.Scope) []any {
	j.mu.RLock()
	defer j.mu.RUnlock()

	matches := make([]engine.JournalEntry, 0)
	for _, e := range j.entries {
		if e.CheckID != checkID || e.Status != engine.StatusSuccess {
			continue
		}
		if !e.Scope.IsPrefixOf(scope) {
			continue
		}
		matches = append(matches, e)
	}
	sort.Slice(matches, func(i, k int) bool { return matches[i].Seq < matches[k].Seq })

	out := make([]any, len(matches))
	for i, e := range matches {
		out[i] = e.OutputValue
	}
	return out
}

// Entries implements Journal.
func (j *InMemory) Entries() []engine.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]engine.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// LatestFor implements Journal.
func (j *InMemory) LatestFor(checkID string, scope engine.Scope) (engine.JournalEntry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var latest *engine.JournalEntry
	for i := range j.entries {
		e := &j.entries[i]
		if e.CheckID != checkID {
			continue
		}
		if len(e.Scope) != len(scope) {
			continue
		}
		match := true
		for k := range e.Scope {
			if e.Scope[k] != scope[k] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if latest == nil || e.Seq > latest.Seq {
			latest = e
		}
	}
	if latest == nil {
		return engine.JournalEntry{}, false
	}
	return *latest, true
}
