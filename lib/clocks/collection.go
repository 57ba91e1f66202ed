// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import "slices"

// Collection is one owner's set of clocks, ordered by insertion so
// listings are deterministic. Tags are unique within a collection.
// The zero value is an empty collection ready to use.
type Collection struct {
	clocks []Clock
}

// NewCollection builds a collection from clocks in order. Later
// entries with a duplicate tag replace earlier ones in place.
func NewCollection(clocks ...Clock) *Collection {
	collection := &Collection{}
	for _, clock := range clocks {
		collection.Put(clock)
	}
	return collection
}

// Get returns the clock with the given (already normalized) tag.
func (c *Collection) Get(tag string) (Clock, bool) {
	for _, clock := range c.clocks {
		if clock.Tag == tag {
			return clock, true
		}
	}
	return Clock{}, false
}

// Put inserts the clock, or replaces an existing clock with the same
// tag without changing its place in the listing order.
func (c *Collection) Put(clock Clock) {
	for i := range c.clocks {
		if c.clocks[i].Tag == clock.Tag {
			c.clocks[i] = clock
			return
		}
	}
	c.clocks = append(c.clocks, clock)
}

// Remove deletes the clock with the given tag. Returns false if no
// such clock exists.
func (c *Collection) Remove(tag string) bool {
	for i := range c.clocks {
		if c.clocks[i].Tag == tag {
			c.clocks = slices.Delete(c.clocks, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of clocks.
func (c *Collection) Len() int {
	return len(c.clocks)
}

// All returns the clocks in insertion order. The slice is a copy; the
// Clock values are plain values, so callers can mutate freely and Put
// back.
func (c *Collection) All() []Clock {
	return slices.Clone(c.clocks)
}
