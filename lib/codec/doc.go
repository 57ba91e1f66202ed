// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Chime's canonical binary serialization:
// deterministic CBOR (RFC 8949 Core Deterministic Encoding).
//
// The clock store encodes each owner's record with this package, and
// snapshot exports reuse it, so identical logical data always produces
// identical bytes. Struct fields use cbor tags for purely-internal
// types and fall back to json tags for types that serve both JSON and
// CBOR (fxamacker's default tag fallback).
package codec
