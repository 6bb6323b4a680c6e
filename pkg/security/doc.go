// Package security provides validation, sanitization, and limits for the
// genqueue packages.
package security
