// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides termplex's CBOR configuration.
//
// termplex uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the WebSocket protocol spoken by
//     browsers, the HTTP status endpoint, and CLI --json output.
//   - CBOR for internal protocols: the datagram protocol between the
//     server and local attach clients.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so
// the same frame always encodes to the same bytes.
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever CBOR. A `json` tag marks
// a type that may be both: fxamacker/cbor reads `json` tags when
// `cbor` tags are absent. Never put both tags on one field.
package codec
