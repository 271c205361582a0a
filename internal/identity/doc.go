// Package identity manages the per-process key pair.
//
// Keys are generated fresh on every start and held only in volatile
// memory; there is no load-from-disk path on purpose. Close wipes the
// private half.
package identity
