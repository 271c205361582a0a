// Package app loads configuration and wires the core components together
// for the CLI.
package app
