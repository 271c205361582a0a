// Package transport provides an in-memory loopback network.
//
// Real socket management is out of scope for the core; this package
// exists so the CLI demo and the tests can run multiple participants in
// one process. Delivery is synchronous and preserves per-peer ordering,
// which matches the guarantees the session layer expects from a real
// transport.
package transport
