// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"fmt"

	"github.com/chime-foundation/chime/lib/ref"
)

// Service wraps a Store with the per-clock operations the command
// layer and the interaction surface call. Every operation is a full
// load-mutate-save cycle on the owner's record.
type Service struct {
	store Store
}

// NewService creates a service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Add creates a clock for the owner. If a clock with the same
// (normalized) tag already exists, the existing clock is returned
// unchanged with created=false — adding is never an overwrite. A 41st
// clock fails with CapacityError and leaves the existing record
// untouched.
func (s *Service) Add(ctx context.Context, owner ref.UserID, tag, name string, size, position int) (Clock, bool, error) {
	clock, err := New(tag, name, size, position)
	if err != nil {
		return Clock{}, false, err
	}
	collection, err := s.store.Load(ctx, owner)
	if err != nil {
		return Clock{}, false, fmt.Errorf("loading clocks for %s: %w", owner, err)
	}
	if existing, ok := collection.Get(clock.Tag); ok {
		return existing, false, nil
	}
	if collection.Len() >= MaxClocksPerOwner {
		return Clock{}, false, &CapacityError{Limit: MaxClocksPerOwner}
	}
	collection.Put(clock)
	if err := s.store.Save(ctx, owner, collection); err != nil {
		return Clock{}, false, fmt.Errorf("saving clocks for %s: %w", owner, err)
	}
	return clock, true, nil
}

// Get returns the owner's clock by tag.
func (s *Service) Get(ctx context.Context, owner ref.UserID, tag string) (Clock, error) {
	normalized := NormalizeTag(tag)
	collection, err := s.store.Load(ctx, owner)
	if err != nil {
		return Clock{}, fmt.Errorf("loading clocks for %s: %w", owner, err)
	}
	clock, ok := collection.Get(normalized)
	if !ok {
		return Clock{}, &NotFoundError{Tag: normalized}
	}
	return clock, nil
}

// Tick moves the clock by delta under the clamp policy and persists
// the result. Returns the clock after the move.
func (s *Service) Tick(ctx context.Context, owner ref.UserID, tag string, delta int) (Clock, error) {
	normalized := NormalizeTag(tag)
	collection, err := s.store.Load(ctx, owner)
	if err != nil {
		return Clock{}, fmt.Errorf("loading clocks for %s: %w", owner, err)
	}
	clock, ok := collection.Get(normalized)
	if !ok {
		return Clock{}, &NotFoundError{Tag: normalized}
	}
	clock.Tick(delta)
	collection.Put(clock)
	if err := s.store.Save(ctx, owner, collection); err != nil {
		return Clock{}, fmt.Errorf("saving clocks for %s: %w", owner, err)
	}
	return clock, nil
}

// Remove deletes the owner's clock by tag. Removing a clock that does
// not exist returns NotFoundError; the record is unchanged.
func (s *Service) Remove(ctx context.Context, owner ref.UserID, tag string) error {
	normalized := NormalizeTag(tag)
	collection, err := s.store.Load(ctx, owner)
	if err != nil {
		return fmt.Errorf("loading clocks for %s: %w", owner, err)
	}
	if !collection.Remove(normalized) {
		return &NotFoundError{Tag: normalized}
	}
	if err := s.store.Save(ctx, owner, collection); err != nil {
		return fmt.Errorf("saving clocks for %s: %w", owner, err)
	}
	return nil
}

// List returns the owner's clocks in insertion order.
func (s *Service) List(ctx context.Context, owner ref.UserID) ([]Clock, error) {
	collection, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading clocks for %s: %w", owner, err)
	}
	return collection.All(), nil
}
