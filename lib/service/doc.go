// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the pieces of a long-running Chime bot process
// that are not clock-specific: the Matrix /sync long-poll loop with
// retry backoff, and invite acceptance.
package service
