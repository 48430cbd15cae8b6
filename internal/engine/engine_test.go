// File: internal/engine/engine_test.go
package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGuardrail(t *testing.T) {
	guardrail := &GuardrailError{Instruction: "buy it", Reason: "payment flows are blocked"}
	assert.True(t, IsGuardrail(guardrail))
	assert.True(t, IsGuardrail(fmt.Errorf("act failed: %w", guardrail)))
	assert.False(t, IsGuardrail(errors.New("timeout")))
	assert.False(t, IsGuardrail(nil))
	assert.Contains(t, guardrail.Error(), "payment flows are blocked")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("Timeout waiting for selector")))
	assert.True(t, IsTransient(errors.New("navigation to \"https://x\" failed")))
	assert.False(t, IsTransient(errors.New("element not found")))
	assert.False(t, IsTransient(nil))

	// Guardrail refusals are terminal even if the reason mentions a timeout.
	assert.False(t, IsTransient(&GuardrailError{Reason: "timeout policy"}))
}
