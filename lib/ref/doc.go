// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for the Matrix identifiers Chime handles: user IDs, room IDs, and
// event IDs.
//
// Chime never constructs these identifiers itself — they arrive from
// the homeserver via login, /sync responses, and send acknowledgements,
// and are parsed into these types at the boundary. Distinct value types
// prevent a room ID from being passed where an event ID is expected at
// compile time.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a ref is immutable. The zero value of
// each type is not valid; use IsZero to check. JSON marshaling uses the
// canonical Matrix string form via encoding.TextMarshaler.
package ref
