// Package domain defines the data models and interfaces shared across the
// session core: key and frame types, session lifecycle states, and the
// Transport and Events contracts supplied by surrounding code. It holds
// plain types only, no behaviour beyond derivation helpers.
package domain
