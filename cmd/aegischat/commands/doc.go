// Package commands implements the aegischat CLI.
//
// The binary is a thin shell over the secure session core: it can print
// the process identity fingerprint for out-of-band verification and run a
// multi-participant demo over an in-memory transport.
package commands
