// Package core provides the domain models, error taxonomy, and events
// shared by the genqueue packages.
//
// Most users should import the root package github.com/mediarelay/genqueue
// which re-exports the public types from this package.
package core
