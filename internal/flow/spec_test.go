package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSpecificationIsValid(t *testing.T) {
	spec := Default()
	require.NoError(t, spec.Validate())
}

func TestValidateRejectsMissingInitialState(t *testing.T) {
	spec := Default()
	spec.InitialState = "nowhere"
	err := spec.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidateRejectsDanglingTransition(t *testing.T) {
	spec := Default()
	st := spec.States["greeting"]
	st.Transitions = append(st.Transitions, "mars")
	spec.States["greeting"] = st

	assert.ErrorIs(t, spec.Validate(), ErrConfiguration)
}

func TestValidateRejectsUnreachableState(t *testing.T) {
	spec := Default()
	spec.States["island"] = StateSpec{}

	err := spec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestValidateRejectsBadObjectionPattern(t *testing.T) {
	spec := Default()
	spec.Objections = append(spec.Objections, ObjectionPattern{
		Type:     "broken",
		Patterns: []string{`([`},
	})

	assert.ErrorIs(t, spec.Validate(), ErrConfiguration)
}

func TestValidateRejectsObjectionActionForUnknownType(t *testing.T) {
	spec := Default()
	spec.ObjectionActions["ghost"] = "handle_ghost"

	assert.ErrorIs(t, spec.Validate(), ErrConfiguration)
}

func TestValidateRejectsAllowlistOnNonTerminal(t *testing.T) {
	spec := Default()
	st := spec.States["greeting"]
	st.Allow = []string{"discovery"}
	spec.States["greeting"] = st

	assert.ErrorIs(t, spec.Validate(), ErrConfiguration)
}

func TestParseRoundTrip(t *testing.T) {
	raw := []byte(`
tenant: acme
initial_state: start
default_action: reply
limits:
  max_go_backs: 1
states:
  start:
    transitions: [end]
    rules:
      - intent: bye
        transition: end
  end:
    terminal: true
`)
	spec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "acme", spec.Tenant)
	assert.True(t, spec.AllowsTransition("start", "end"))
	assert.False(t, spec.AllowsTransition("end", "start"))
	require.NotNil(t, spec.RuleFor("start", "bye"))
	assert.Equal(t, "end", spec.RuleFor("start", "bye").Transition)
}

func TestPhaseIndex(t *testing.T) {
	spec := Default()
	assert.Equal(t, 0, spec.PhaseIndex("greeting"))
	assert.Equal(t, 5, spec.PhaseIndex("closing"))
	assert.Equal(t, -1, spec.PhaseIndex("unknown_state"))
}

func TestAllowsTransitionTerminalAllowlist(t *testing.T) {
	spec := Default()
	st := spec.States["payment_ready"]
	st.Allow = []string{"closing"}
	spec.States["payment_ready"] = st
	require.NoError(t, spec.Validate())

	assert.True(t, spec.AllowsTransition("payment_ready", "closing"))
	assert.False(t, spec.AllowsTransition("payment_ready", "greeting"))
}

func TestAllowsTransitionEscalationIsGlobal(t *testing.T) {
	spec := Default()

	// No state lists human_handoff as an edge; it is reachable anyway.
	assert.True(t, spec.AllowsTransition("greeting", "human_handoff"))
	assert.True(t, spec.AllowsTransition("negotiation", "human_handoff"))
	// But not out of a terminal state.
	assert.False(t, spec.AllowsTransition("payment_ready", "human_handoff"))
}

func TestForcedForwardFallsBackToEscalation(t *testing.T) {
	spec := Default()
	spec.ForcedForward = ""
	assert.Equal(t, spec.Escalation.State, spec.ForcedForwardState())
}
