package blackboard

import (
	"github.com/rs/zerolog"

	"github.com/nmoralez/rudder/internal/flow"
)

// Engine runs one arbitration round per turn: it polls every configured
// source against the snapshot and resolves the collected proposals into a
// single decision. The engine holds no per-session state and is safe to share
// across sessions; the session serializes its own turns.
type Engine struct {
	spec    *flow.Specification
	sources []Source
	log     zerolog.Logger
}

// NewEngine builds the engine for one tenant's specification.
func NewEngine(spec *flow.Specification, sources []Source, log zerolog.Logger) *Engine {
	return &Engine{
		spec:    spec,
		sources: sources,
		log:     log.With().Str("component", "blackboard").Logger(),
	}
}

// Arbitrate collects proposals from every eligible source, in registration
// order, and resolves them. It always returns a decision: with every source
// silent the configured default action is used.
func (e *Engine) Arbitrate(snap *Snapshot) *ResolvedDecision {
	proposals := make([]*Proposal, 0, len(e.sources))
	for _, src := range e.sources {
		if !src.ShouldContribute(snap) {
			continue
		}
		p := src.Contribute(snap)
		if p == nil {
			continue
		}
		// The source declaration is authoritative for identity and tier,
		// whatever the proposal carries.
		p.SourceID = src.ID()
		p.Priority = src.Priority()
		p.Combinable = src.Combinable()
		proposals = append(proposals, p)

		e.log.Debug().
			Str("session_id", snap.SessionID).
			Int("turn", snap.TurnIndex).
			Str("source", p.SourceID).
			Str("action", p.Action).
			Str("transition", p.Transition).
			Bool("combinable", p.Combinable).
			Msg("proposal collected")
	}

	decision := Resolve(e.spec, proposals)

	evt := e.log.Debug().
		Str("session_id", snap.SessionID).
		Int("turn", snap.TurnIndex).
		Str("final_action", decision.FinalAction).
		Str("final_transition", decision.FinalTransition).
		Strs("sources", decision.ContributingSources)
	if len(decision.ConflictsDiscarded) > 0 {
		evt = evt.Int("data_conflicts", len(decision.ConflictsDiscarded))
	}
	evt.Msg("turn resolved")

	for _, c := range decision.ConflictsDiscarded {
		e.log.Warn().
			Str("session_id", snap.SessionID).
			Int("turn", snap.TurnIndex).
			Str("key", c.Key).
			Str("winner", c.WinningSource).
			Str("loser", c.LosingSource).
			Msg("data update conflict")
	}

	return decision
}

// Sources returns the configured sources in registration order.
func (e *Engine) Sources() []Source {
	out := make([]Source, len(e.sources))
	copy(out, e.sources)
	return out
}
