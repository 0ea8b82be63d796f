// Package flowexec executes resolved decisions against the configured flow
// graph. It owns the session's state-machine state and enforces the two hard
// loop guards: the circular-flow (go-back) limit and the objection ceiling.
// Both are applied after arbitration; they override the resolved outcome
// rather than competing inside it.
package flowexec

import (
	"github.com/rs/zerolog"

	"github.com/nmoralez/rudder/internal/blackboard"
	"github.com/nmoralez/rudder/internal/flow"
)

// Anomaly kinds recorded by the executor. None of them abort a turn.
const (
	AnomalyInvalidTransition = "invalid_transition"
	AnomalyGoBackRefused     = "go_back_refused"
	AnomalyObjectionCeiling  = "objection_ceiling"
)

// Flags the executor adds when a guard overrides the decision.
const (
	FlagGoBackLimit    = "go_back_limit_reached"
	FlagObjectionLimit = "objection_limit_reached"
)

// Anomaly is a degraded-but-not-fatal event on the turn path.
type Anomaly struct {
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
	TurnIndex int    `json:"turn_index"`
}

// SessionState is the state-machine side of a session. It is mutated only by
// Apply, one committed decision at a time.
type SessionState struct {
	Current               string
	Visited               []string
	GoBackCount           int
	ConsecutiveObjections int
	TotalObjections       int
	Data                  map[string]string
}

// Executor applies committed decisions for one session.
type Executor struct {
	spec  *flow.Specification
	state SessionState
	log   zerolog.Logger
}

// NewExecutor starts a session at the specification's initial state.
func NewExecutor(spec *flow.Specification, log zerolog.Logger) *Executor {
	return &Executor{
		spec: spec,
		state: SessionState{
			Current: spec.InitialState,
			Visited: []string{spec.InitialState},
			Data:    make(map[string]string),
		},
		log: log.With().Str("component", "flowexec").Logger(),
	}
}

// State returns a copy of the current session state.
func (x *Executor) State() SessionState {
	s := x.state
	s.Visited = append([]string(nil), x.state.Visited...)
	s.Data = make(map[string]string, len(x.state.Data))
	for k, v := range x.state.Data {
		s.Data[k] = v
	}
	return s
}

// View exposes the state as the read-only form snapshots embed.
func (x *Executor) View() blackboard.SessionView {
	s := x.State()
	return blackboard.SessionView{
		CurrentState:          s.Current,
		Visited:               s.Visited,
		GoBackCount:           s.GoBackCount,
		ConsecutiveObjections: s.ConsecutiveObjections,
		TotalObjections:       s.TotalObjections,
		Data:                  s.Data,
	}
}

// Apply executes a resolved decision: objection ceiling first, then the
// transition with its validity and go-back checks, then the data merge. The
// returned decision is the committed form, including any guard overrides; it
// is what the caller hands to the generation layer.
func (x *Executor) Apply(turnIndex int, d *blackboard.ResolvedDecision) (*blackboard.ResolvedDecision, []Anomaly) {
	applied := cloneDecision(d)
	var anomalies []Anomaly

	var forced bool
	forced, anomalies = x.applyObjectionCeiling(turnIndex, applied, anomalies)
	anomalies = x.applyTransition(turnIndex, applied, forced, anomalies)

	for k, v := range applied.DataUpdates {
		x.state.Data[k] = v
	}

	return applied, anomalies
}

// applyObjectionCeiling tracks objection counters and, once either limit is
// exceeded, rewrites the decision into the configured escalation regardless
// of what arbitration resolved. A hard ceiling, not a proposal. The returned
// bool reports whether the decision was rewritten into the escalation jump.
func (x *Executor) applyObjectionCeiling(turnIndex int, d *blackboard.ResolvedDecision, anomalies []Anomaly) (bool, []Anomaly) {
	if !d.HasFlag(blackboard.FlagObjection) {
		x.state.ConsecutiveObjections = 0
		return false, anomalies
	}

	x.state.ConsecutiveObjections++
	x.state.TotalObjections++

	limits := x.spec.Limits
	overConsecutive := limits.MaxConsecutiveObjections > 0 && x.state.ConsecutiveObjections > limits.MaxConsecutiveObjections
	overTotal := limits.MaxTotalObjections > 0 && x.state.TotalObjections > limits.MaxTotalObjections
	if !overConsecutive && !overTotal {
		return false, anomalies
	}

	if x.spec.Escalation.Action != "" {
		d.FinalAction = x.spec.Escalation.Action
	}
	d.FinalTransition = x.spec.Escalation.State
	d.Flags = appendFlag(d.Flags, FlagObjectionLimit)

	x.log.Warn().
		Int("turn", turnIndex).
		Int("consecutive", x.state.ConsecutiveObjections).
		Int("total", x.state.TotalObjections).
		Msg("objection ceiling reached, escalating")

	return true, append(anomalies, Anomaly{
		Kind:      AnomalyObjectionCeiling,
		Detail:    "objection limit exceeded, decision overridden to escalation",
		TurnIndex: turnIndex,
	})
}

// applyTransition validates and commits the decision's transition. Invalid
// targets degrade to a no-op transition with an anomaly record; go-backs past
// the configured limit are replaced by the forced-forward transition. A
// forced decision is an unconditional jump and skips both checks.
func (x *Executor) applyTransition(turnIndex int, d *blackboard.ResolvedDecision, forced bool, anomalies []Anomaly) []Anomaly {
	target := d.FinalTransition
	if target == "" || target == x.state.Current {
		d.FinalTransition = ""
		return anomalies
	}

	if forced {
		x.state.Current = target
		x.state.Visited = append(x.state.Visited, target)
		return anomalies
	}

	if !x.spec.AllowsTransition(x.state.Current, target) {
		x.log.Warn().
			Int("turn", turnIndex).
			Str("from", x.state.Current).
			Str("to", target).
			Msg("transition not allowed, treating as no-op")
		d.FinalTransition = ""
		return append(anomalies, Anomaly{
			Kind:      AnomalyInvalidTransition,
			Detail:    "transition " + x.state.Current + " -> " + target + " not allowed",
			TurnIndex: turnIndex,
		})
	}

	if x.visited(target) {
		x.state.GoBackCount++
		if x.spec.Limits.MaxGoBacks > 0 && x.state.GoBackCount > x.spec.Limits.MaxGoBacks {
			forward := x.spec.ForcedForwardState()
			anomalies = append(anomalies, Anomaly{
				Kind:      AnomalyGoBackRefused,
				Detail:    "go-back to " + target + " refused, forcing " + forward,
				TurnIndex: turnIndex,
			})
			d.Flags = appendFlag(d.Flags, FlagGoBackLimit)
			if forward == "" || forward == x.state.Current {
				d.FinalTransition = ""
				return anomalies
			}
			target = forward
			d.FinalTransition = forward
			if x.spec.Escalation.Action != "" && forward == x.spec.Escalation.State {
				d.FinalAction = x.spec.Escalation.Action
			}
		}
	}

	x.state.Current = target
	x.state.Visited = append(x.state.Visited, target)
	return anomalies
}

func (x *Executor) visited(state string) bool {
	for _, s := range x.state.Visited {
		if s == state {
			return true
		}
	}
	return false
}

func cloneDecision(d *blackboard.ResolvedDecision) *blackboard.ResolvedDecision {
	out := *d
	out.Flags = append([]string(nil), d.Flags...)
	out.ContributingSources = append([]string(nil), d.ContributingSources...)
	out.ConflictsDiscarded = append([]blackboard.Conflict(nil), d.ConflictsDiscarded...)
	out.DiscardedSources = append([]string(nil), d.DiscardedSources...)
	if d.DataUpdates != nil {
		out.DataUpdates = make(map[string]string, len(d.DataUpdates))
		for k, v := range d.DataUpdates {
			out.DataUpdates[k] = v
		}
	}
	return &out
}

func appendFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
