// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"sync"

	"github.com/chime-foundation/chime/lib/ref"
)

// MaxClocksPerOwner is the per-owner capacity cap, enforced at save.
const MaxClocksPerOwner = 40

// Store persists one record per owner holding their full clock
// collection.
//
// Load of an unknown owner returns an empty collection, never an
// error. Save replaces the owner's whole record; saving an empty
// collection removes the record. The cap is enforced at save time
// with a CapacityError.
//
// The store does not serialize concurrent read-modify-write cycles
// for the same owner: two simultaneous ticks on one clock are
// last-writer-wins. The usage pattern is one human pressing controls,
// so the race is accepted rather than locked away.
type Store interface {
	Load(ctx context.Context, owner ref.UserID) (*Collection, error)
	Save(ctx context.Context, owner ref.UserID, collection *Collection) error
}

// ownerRecord is the CBOR shape of one owner's stored record.
type ownerRecord struct {
	Version int     `cbor:"version"`
	Clocks  []Clock `cbor:"clocks"`
}

// recordVersion is bumped if the record shape ever changes.
const recordVersion = 1

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[ref.UserID][]Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[ref.UserID][]Clock)}
}

// Load returns the owner's collection, empty if unknown.
func (s *MemoryStore) Load(_ context.Context, owner ref.UserID) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewCollection(s.records[owner]...), nil
}

// Save replaces the owner's record. Saving an empty collection deletes
// it.
func (s *MemoryStore) Save(_ context.Context, owner ref.UserID, collection *Collection) error {
	if collection.Len() > MaxClocksPerOwner {
		return &CapacityError{Limit: MaxClocksPerOwner}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if collection.Len() == 0 {
		delete(s.records, owner)
		return nil
	}
	s.records[owner] = collection.All()
	return nil
}
