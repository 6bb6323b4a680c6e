package provider

import (
	"errors"
	"strings"

	"github.com/mediarelay/genqueue/pkg/core"
)

// ErrorClass is the closed classification of provider failures. All string
// matching on provider error text lives in this file.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota

	// ClassNetwork is a network-level failure, retried at the same layer.
	ClassNetwork

	// ClassAuth is an invalid-credential signal; the token is disabled.
	ClassAuth

	// ClassTransient is a provider-side failure worth a bounded retry with
	// a new operation and token.
	ClassTransient

	// ClassTerminal is a provider rejection that must not be retried.
	ClassTerminal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassAuth:
		return "auth"
	case ClassTransient:
		return "transient"
	default:
		return "terminal"
	}
}

// transientMarkers match provider error categories that historically
// resolve on retry. Content-safety soft flags are included: they are
// retried under the same bounded quota.
var transientMarkers = []string{
	"high traffic",
	"timeout",
	"timed out",
	"expired",
	"deadline",
	"resource exhausted",
	"try again",
	"internal error",
	"overloaded",
	"soft flag",
}

// Classify maps an error from Client.Start to its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var authErr *core.AuthenticationError
	if errors.As(err, &authErr) {
		return ClassAuth
	}
	var netErr *core.TransientNetworkError
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	var transientErr *core.ProviderTransientError
	if errors.As(err, &transientErr) {
		return ClassTransient
	}
	return ClassTerminal
}

// ClassifyCategory maps a terminal poll result's error category to
// ClassTransient or ClassTerminal. Categories arrive both as prose and as
// SCREAMING_SNAKE_CASE codes; underscores are treated as spaces.
func ClassifyCategory(category string) ErrorClass {
	lowered := strings.ToLower(strings.ReplaceAll(category, "_", " "))
	for _, marker := range transientMarkers {
		if strings.Contains(lowered, marker) {
			return ClassTransient
		}
	}
	return ClassTerminal
}
