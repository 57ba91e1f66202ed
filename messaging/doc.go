// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API
// that Chime needs: login, incremental sync with long-polling, room
// joins, message sends and replacements, redactions, single-event
// fetches, and media upload.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles login, returning authenticated [Session]
// values. Client holds the homeserver URL and HTTP transport, shared
// across all Sessions derived from it.
//
// [Session] wraps a Client with an access token for authenticated
// operations. The access token lives in mmap-backed secret.Buffer
// memory (locked against swap, excluded from core dumps); callers must
// call Session.Close to release it.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters.
package messaging
