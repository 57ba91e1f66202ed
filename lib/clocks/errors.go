// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"errors"
	"fmt"

	"github.com/chime-foundation/chime/lib/ref"
)

// ErrNoDialImage signals that a clock's size has no precomputed dial
// asset. Callers fall back to the text presentation; this is never a
// user-visible failure.
var ErrNoDialImage = errors.New("clocks: no dial image for size")

// NotFoundError reports that an owner has no clock with the given tag.
type NotFoundError struct {
	Tag string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("clocks: no clock tagged %q", e.Tag)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// CapacityError reports that an owner is at the per-owner clock cap.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("clocks: owner already has %d clocks", e.Limit)
}

// AuthorizationError reports that an actor tried an operation reserved
// for the clock's owner.
type AuthorizationError struct {
	Actor ref.UserID
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("clocks: %s is not the clock's owner", e.Actor)
}
