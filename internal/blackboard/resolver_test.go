package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmoralez/rudder/internal/flow"
)

func proposal(source string, priority int, combinable bool) *Proposal {
	return &Proposal{
		SourceID:   source,
		Priority:   priority,
		Combinable: combinable,
	}
}

func TestResolveNoProposalsUsesDefault(t *testing.T) {
	spec := flow.Default()
	d := Resolve(spec, nil)

	assert.Equal(t, spec.DefaultAction, d.FinalAction)
	assert.Equal(t, spec.DefaultTransition, d.FinalTransition)
	assert.True(t, d.HasFlag(FlagDefaulted))
}

func TestResolveBlockingWinsAction(t *testing.T) {
	spec := flow.Default()

	blocking := proposal("guard", 90, false)
	blocking.Action = "handle_price_objection"

	comb := proposal("rules", 95, true)
	comb.Action = "answer_product"
	comb.Transition = "discovery"
	comb.DataUpdates = map[string]string{"topic": "pricing"}
	comb.Flags = []string{"extra"}

	d := Resolve(spec, []*Proposal{blocking, comb})

	// The blocking proposal owns action and transition even at a lower tier
	// than the combinable one.
	assert.Equal(t, "handle_price_objection", d.FinalAction)
	assert.Empty(t, d.FinalTransition)
	// Combinable data and flags still merge in.
	assert.Equal(t, "pricing", d.DataUpdates["topic"])
	assert.True(t, d.HasFlag("extra"))
	assert.ElementsMatch(t, []string{"guard", "rules"}, d.ContributingSources)
}

func TestResolveHighestBlockingWins(t *testing.T) {
	spec := flow.Default()

	low := proposal("low_guard", 10, false)
	low.Action = "low"
	high := proposal("high_guard", 99, false)
	high.Action = "high"

	d := Resolve(spec, []*Proposal{low, high})
	assert.Equal(t, "high", d.FinalAction)
	assert.Contains(t, d.DiscardedSources, "low_guard")
	assert.NotContains(t, d.ContributingSources, "low_guard")
}

func TestResolveCombinableMerge(t *testing.T) {
	spec := flow.Default()

	primary := proposal("transition", 50, true)
	primary.Action = "probe_needs"
	primary.Transition = "qualification"

	extra := proposal("composite", 20, true)
	extra.DataUpdates = map[string]string{"name": "Ada"}
	extra.Flags = []string{FlagComposite}

	d := Resolve(spec, []*Proposal{primary, extra})

	assert.Equal(t, "probe_needs", d.FinalAction)
	assert.Equal(t, "qualification", d.FinalTransition)
	assert.Equal(t, "Ada", d.DataUpdates["name"])
	assert.True(t, d.HasFlag(FlagComposite))
}

func TestResolveDataConflictRecorded(t *testing.T) {
	spec := flow.Default()

	high := proposal("high", 60, true)
	high.Action = "a"
	high.DataUpdates = map[string]string{"contact": "ada@x.io"}

	low := proposal("low", 20, true)
	low.DataUpdates = map[string]string{"contact": "+1 555 0100"}

	d := Resolve(spec, []*Proposal{high, low})

	require.Len(t, d.ConflictsDiscarded, 1)
	c := d.ConflictsDiscarded[0]
	assert.Equal(t, "contact", c.Key)
	assert.Equal(t, "high", c.WinningSource)
	assert.Equal(t, "ada@x.io", c.WinningValue)
	assert.Equal(t, "low", c.LosingSource)
	assert.Equal(t, "ada@x.io", d.DataUpdates["contact"], "higher priority value is kept")
}

func TestResolveIdenticalValuesAreNotConflicts(t *testing.T) {
	spec := flow.Default()

	a := proposal("a", 60, true)
	a.Action = "x"
	a.DataUpdates = map[string]string{"name": "Ada"}
	b := proposal("b", 20, true)
	b.DataUpdates = map[string]string{"name": "Ada"}

	d := Resolve(spec, []*Proposal{a, b})
	assert.Empty(t, d.ConflictsDiscarded)
}

func TestResolveTieBreakByRegistrationOrder(t *testing.T) {
	spec := flow.Default()

	first := proposal("registered_first", 40, true)
	first.Action = "first"
	second := proposal("registered_second", 40, true)
	second.Action = "second"

	d := Resolve(spec, []*Proposal{first, second})
	assert.Equal(t, "first", d.FinalAction)

	// Reversed registration order flips the winner.
	d = Resolve(spec, []*Proposal{second, first})
	assert.Equal(t, "second", d.FinalAction)
}

func TestResolveFlagsUnion(t *testing.T) {
	spec := flow.Default()

	a := proposal("a", 60, true)
	a.Action = "x"
	a.Flags = []string{"one", "shared"}
	b := proposal("b", 20, true)
	b.Flags = []string{"two", "shared"}

	d := Resolve(spec, []*Proposal{a, b})
	assert.Equal(t, []string{"one", "shared", "two"}, d.Flags)
}

func TestResolveEmptyPrimaryActionFallsBack(t *testing.T) {
	spec := flow.Default()

	p := proposal("completeness", 60, true)
	p.Transition = "closing"

	d := Resolve(spec, []*Proposal{p})
	assert.Equal(t, spec.DefaultAction, d.FinalAction)
	assert.Equal(t, "closing", d.FinalTransition)
}

func TestResolveDeterministic(t *testing.T) {
	spec := flow.Default()

	build := func() []*Proposal {
		a := proposal("a", 60, true)
		a.Action = "x"
		a.DataUpdates = map[string]string{"k1": "v1", "k2": "v2"}
		a.Flags = []string{"f2", "f1"}
		b := proposal("b", 60, true)
		b.DataUpdates = map[string]string{"k2": "other", "k3": "v3"}
		c := proposal("c", 90, false)
		c.Action = "blocked"
		return []*Proposal{a, b, c}
	}

	first := Resolve(spec, build())
	for i := 0; i < 25; i++ {
		assert.Equal(t, first, Resolve(spec, build()), "iteration %d", i)
	}
}
