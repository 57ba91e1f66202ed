// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix wire formats Chime speaks: the
// event types it sends and consumes, the clock identity block embedded
// in its own messages, message replacement (edit) relations, and the
// reaction keys that act as clock controls.
//
// The schema is the contract between a running bot and the events it
// finds on the homeserver after a restart. A clock message carries a
// "dev.chime.clock" content block naming the owning user and the clock
// tag; that block is all the bot needs to reattach controls to a
// message it no longer remembers sending. Everything else (the clock's
// current position, its size) lives in the store, keyed by owner and
// tag.
package schema
