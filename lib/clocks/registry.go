// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"sync"

	"github.com/chime-foundation/chime/lib/ref"
)

// Registry is the process-wide map from a posted message to its live
// surface. It is a cache: a miss is normal (the process restarted, or
// the surface was evicted) and the caller falls back to Rebuild. Safe
// for concurrent use.
type Registry struct {
	mu       sync.Mutex
	surfaces map[registryKey]*Surface
}

type registryKey struct {
	room  ref.RoomID
	event ref.EventID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{surfaces: make(map[registryKey]*Surface)}
}

// Lookup returns the live surface for the message, if any.
func (r *Registry) Lookup(roomID ref.RoomID, eventID ref.EventID) (*Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	surface, ok := r.surfaces[registryKey{roomID, eventID}]
	return surface, ok
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.surfaces)
}

// register binds the message to its surface. Re-registration replaces
// the previous surface, which is what a restart-rebuilt surface wants.
func (r *Registry) register(roomID ref.RoomID, eventID ref.EventID, surface *Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[registryKey{roomID, eventID}] = surface
}

func (r *Registry) unregister(roomID ref.RoomID, eventID ref.EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.surfaces, registryKey{roomID, eventID})
}
