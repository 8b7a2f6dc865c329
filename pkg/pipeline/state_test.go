package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_CanTransition(t *testing.T) {
	forward := []State{StateUnauthenticated, StateIdentified, StateTenantBound, StateAuthorized, StateCompleted}
	for i := 0; i < len(forward)-1; i++ {
		assert.True(t, forward[i].CanTransition(forward[i+1]), "%s -> %s", forward[i], forward[i+1])
		assert.True(t, forward[i].CanTransition(StateRejected), "%s -> rejected", forward[i])
		assert.False(t, forward[i+1].CanTransition(forward[i]), "no way back from %s", forward[i+1])
	}

	assert.False(t, StateUnauthenticated.CanTransition(StateAuthorized), "stages cannot be skipped")
	assert.False(t, StateRejected.CanTransition(StateUnauthenticated), "no retry")
	assert.False(t, StateRejected.CanTransition(StateRejected))
	assert.False(t, StateCompleted.CanTransition(StateRejected))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "tenant_bound", StateTenantBound.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateCompleted.Terminal())
	assert.False(t, StateAuthorized.Terminal())
}

func TestRequestContext_Transitions(t *testing.T) {
	rc := newRequestContext(Provenance{}, nil, nil)

	err := rc.transition(StateAuthorized)
	assert.Error(t, err)
	assert.Equal(t, StateUnauthenticated, rc.State)

	assert.NoError(t, rc.transition(StateIdentified))
	rc.reject(assert.AnError)
	assert.Equal(t, StateRejected, rc.State)
	assert.Equal(t, "INTERNAL", string(rc.Rejection.Code))

	first := rc.Rejection
	rc.reject(assert.AnError)
	assert.Same(t, first, rc.Rejection, "first rejection is final")
	assert.Error(t, rc.Complete())
}
