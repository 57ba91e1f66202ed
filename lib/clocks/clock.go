// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTagLength caps normalized tags. Tags appear in message bodies and
// store keys; anything longer is user error.
const MaxTagLength = 32

// Clock is a bounded progress counter. Size is fixed at creation;
// Position moves within [0, Size] under the clamp policy in Tick.
type Clock struct {
	Tag      string `cbor:"tag" json:"tag"`
	Name     string `cbor:"name" json:"name"`
	Size     int    `cbor:"size" json:"size"`
	Position int    `cbor:"position" json:"position"`
}

// NormalizeTag canonicalizes a user-supplied tag: lowercase, trimmed,
// separator characters stripped, length capped at MaxTagLength. The
// result is the store key; two inputs that normalize equal name the
// same clock.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '_', '.', '/', ':':
			return -1
		}
		return r
	}, tag)
	// Truncate on a rune boundary: a byte-index cut can split a
	// multi-byte rune, and the resulting invalid UTF-8 would diverge
	// from the tag once it round-trips through JSON message content.
	for len(tag) > MaxTagLength {
		_, size := utf8.DecodeLastRuneInString(tag)
		tag = tag[:len(tag)-size]
	}
	return tag
}

// New creates a validated clock. The tag is normalized; the starting
// position is clamped into [0, size].
func New(tag, name string, size, position int) (Clock, error) {
	normalized := NormalizeTag(tag)
	if normalized == "" {
		return Clock{}, fmt.Errorf("clock tag %q is empty after normalization", tag)
	}
	if size < 1 {
		return Clock{}, fmt.Errorf("clock size must be at least 1, got %d", size)
	}
	if name == "" {
		name = normalized
	}
	clock := Clock{Tag: normalized, Name: name, Size: size}
	clock.Tick(position)
	return clock, nil
}

// Tick moves the position by delta, clamping the result to [0, Size].
// Ticking past either bound is a no-op at that bound; callers must not
// assume a tick changed the stored value. Persistence is the caller's
// job.
func (c *Clock) Tick(delta int) {
	position := c.Position + delta
	if position < 0 {
		position = 0
	}
	if position > c.Size {
		position = c.Size
	}
	c.Position = position
}

// Full reports whether the clock has reached its size.
func (c Clock) Full() bool {
	return c.Position >= c.Size
}

// String renders the listing form: "name: position/size (tag)".
func (c Clock) String() string {
	return fmt.Sprintf("%s: %d/%d (%s)", c.Name, c.Position, c.Size, c.Tag)
}
