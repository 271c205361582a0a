// Package transfer chunks file payloads and verifies whole-file integrity.
//
// Every chunk travels as an authenticated CipherFrame, so tampering is
// caught per chunk; the whole-file BLAKE3 digest additionally guards
// against chunk loss, reordering and truncation. Chunks may be submitted
// in any order: a running digest advances over the contiguous prefix and
// the remainder is buffered until its predecessors arrive.
//
// A digest mismatch at finalize discards the partial file; it is never
// silently accepted.
package transfer
