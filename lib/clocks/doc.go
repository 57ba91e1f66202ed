// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package clocks implements Chime's progress clocks: the clock entity
// and its tick/clamp arithmetic, the per-owner durable store, the
// dial renderer with its text fallback, and the interaction surface
// state machine that binds a posted message to a clock and routes
// reaction presses through it.
//
// The package is transport-agnostic. It talks to Matrix only through
// the MessageDirectory and MediaUploader capabilities injected into
// the surface and renderer, so every state transition is testable
// against in-memory fakes.
package clocks
