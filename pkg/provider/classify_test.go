package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediarelay/genqueue/pkg/core"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassNone, Classify(nil))
	assert.Equal(t, ClassAuth, Classify(&core.AuthenticationError{Err: errors.New("401")}))
	assert.Equal(t, ClassNetwork, Classify(&core.TransientNetworkError{Err: errors.New("reset")}))
	assert.Equal(t, ClassTransient, Classify(&core.ProviderTransientError{Category: "HIGH_TRAFFIC", Err: errors.New("busy")}))
	assert.Equal(t, ClassTerminal, Classify(errors.New("malformed start response")))
}

func TestClassify_Wrapped(t *testing.T) {
	err := fmt.Errorf("submit: %w", &core.AuthenticationError{Err: errors.New("403")})
	assert.Equal(t, ClassAuth, Classify(err))
}

func TestClassifyCategory_Transient(t *testing.T) {
	transient := []string{
		"HIGH_TRAFFIC",
		"DEADLINE_EXCEEDED",
		"request timed out",
		"operation expired",
		"RESOURCE_EXHAUSTED",
		"please try again later",
		"INTERNAL_ERROR",
		"model overloaded",
		"content soft flag",
	}
	for _, category := range transient {
		assert.Equal(t, ClassTransient, ClassifyCategory(category), "category: %s", category)
	}
}

func TestClassifyCategory_Terminal(t *testing.T) {
	terminal := []string{
		"SAFETY_BLOCK",
		"INVALID_ARGUMENT",
		"UNSUPPORTED_FORMAT",
		"",
	}
	for _, category := range terminal {
		assert.Equal(t, ClassTerminal, ClassifyCategory(category), "category: %s", category)
	}
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "none", ClassNone.String())
	assert.Equal(t, "network", ClassNetwork.String())
	assert.Equal(t, "auth", ClassAuth.String())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "terminal", ClassTerminal.String())
}
