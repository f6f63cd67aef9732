// Package session implements the AI Session Registry (spec §4.5): an
// in-memory table of opaque conversation handles keyed by session id, with
// clone/append reuse semantics for ai checks that opt into carrying a
// parent's conversation forward. The map+mutex shape follows the teacher's
// graph/store/memory.go in-memory store.
package session

import (
	"fmt"
	"sync"
)

// Handle is an opaque AI provider conversation handle. The registry never
// inspects it; internal/provider/ai supplies the concrete type (typically
// wrapping a chat model's message history).
type Handle any

// ReuseFailedError reports a clone/append call whose parent session id is
// not registered. The Check Runtime surfaces this as a check-level error
// (engine.KindSessionReuseFailed) rather than panicking (§4.5, §7).
type ReuseFailedError struct {
	ParentID string
	Op       string
}

func (e *ReuseFailedError) Error() string {
	return fmt.Sprintf("session %s: no handle registered for parent id %q", e.Op, e.ParentID)
}

type entry struct {
	handle Handle
	// cloneOf records the id this entry was cloned from, for diagnostics
	// only; clones are otherwise fully independent entries.
	cloneOf string
}

// Registry is the process-wide table of session handles for one run. It is
// safe for concurrent use by the Level Dispatcher's parallel check workers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register stores handle under id, called by internal/provider/ai after a
// check's first AI invocation produces a conversation handle (§4.5 step 1:
// "register(id, handle) after first use").
func (r *Registry) Register(id string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry{handle: handle}
}

// Get returns the handle registered under id, if any.
func (r *Registry) Get(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Clone copies parentID's handle into a brand-new, independent entry under
// childID: subsequent appends to childID never affect parentID's history
// (SessionMode "clone", §4.5 step 2).
func (r *Registry) Clone(parentID, childID string, copyHandle func(Handle) Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.entries[parentID]
	if !ok {
		return &ReuseFailedError{ParentID: parentID, Op: "clone"}
	}
	r.entries[childID] = &entry{handle: copyHandle(parent.handle), cloneOf: parentID}
	return nil
}

// Append returns parentID's handle for direct reuse and re-registers it
// under childID as the same underlying handle: subsequent appends from
// either id grow one shared conversation (SessionMode "append", §4.5
// step 3). The caller (internal/provider/ai) is responsible for mutating
// the handle in place (e.g. appending messages) and calling Register again
// if the provider returns a new handle value.
func (r *Registry) Append(parentID, childID string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.entries[parentID]
	if !ok {
		return nil, &ReuseFailedError{ParentID: parentID, Op: "append"}
	}
	if childID != "" && childID != parentID {
		r.entries[childID] = &entry{handle: parent.handle, cloneOf: parentID}
	}
	return parent.handle, nil
}

// Drop removes id's entry, releasing the handle for garbage collection
// (§4.5 step 4, run completion cleanup).
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of live entries, used by tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
