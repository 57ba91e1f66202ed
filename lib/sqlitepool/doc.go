// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with
// Chime-standard pragmas (WAL journal, NORMAL synchronous, busy
// timeout). The clock store keeps its per-owner records in a single
// SQLite database opened through this package.
//
// The pool wraps zombiezen.com/go/sqlite/sqlitex with lazy connection
// initialization and an OnConnect hook for schema creation.
package sqlitepool
