// Package stores provides the Redis-backed device-fingerprint store.
//
// Records use a compact versioned binary encoding (version byte, big-endian
// fixed-width fields, length-prefixed blob). The encoding is append-only:
// new versions add fields, never reinterpret old ones.
package stores
