// Package blackboard implements the arbitration core: a read-only snapshot of
// the conversation shared with independent knowledge sources, whose proposals
// are resolved into exactly one decision per turn.
package blackboard

import (
	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/knowledge"
	"github.com/nmoralez/rudder/internal/objection"
	"github.com/nmoralez/rudder/internal/window"
)

// SessionView is the point-in-time copy of session state embedded in a
// snapshot. Sources read it; only the flow executor mutates the original.
type SessionView struct {
	CurrentState          string            `json:"current_state"`
	Visited               []string          `json:"visited"`
	GoBackCount           int               `json:"go_back_count"`
	ConsecutiveObjections int               `json:"consecutive_objections"`
	TotalObjections       int               `json:"total_objections"`
	Data                  map[string]string `json:"data"`
}

// HasData reports whether a collected-data key is present and non-empty.
func (v SessionView) HasData(key string) bool {
	return v.Data[key] != ""
}

// Snapshot is the immutable, per-turn view every knowledge source receives.
// It is assembled once per turn and never mutated afterwards; sources must
// treat it as read-only.
type Snapshot struct {
	SessionID        string
	TurnIndex        int
	Message          string
	Intent           string
	IntentConfidence float64
	Objection        objection.Result
	Frustration      window.FrustrationSignal
	Profile          window.ClientProfile
	Recent           []window.Turn
	Session          SessionView
	Spec             *flow.Specification
	Facts            []knowledge.Fact
}

// Proposal is a single source's suggestion for the current turn. A source
// emits at most one per turn; proposals are not persisted beyond the turn.
type Proposal struct {
	SourceID    string            `json:"source_id"`
	Action      string            `json:"action,omitempty"`
	Transition  string            `json:"transition,omitempty"`
	DataUpdates map[string]string `json:"data_updates,omitempty"`
	Flags       []string          `json:"flags,omitempty"`
	Priority    int               `json:"priority"`
	Combinable  bool              `json:"combinable"`
}

// Conflict records two combinable sources writing different values to the
// same data key in one turn. The higher-priority value wins; the collision is
// surfaced, never silently dropped.
type Conflict struct {
	Key           string `json:"key"`
	WinningSource string `json:"winning_source"`
	WinningValue  string `json:"winning_value"`
	LosingSource  string `json:"losing_source"`
	LosingValue   string `json:"losing_value"`
}

// ResolvedDecision is the single arbitration outcome per turn: the sole input
// to the flow executor and to the external generation layer.
type ResolvedDecision struct {
	FinalAction         string            `json:"final_action"`
	FinalTransition     string            `json:"final_transition,omitempty"`
	DataUpdates         map[string]string `json:"data_updates,omitempty"`
	Flags               []string          `json:"flags,omitempty"`
	ContributingSources []string          `json:"contributing_sources,omitempty"`
	ConflictsDiscarded  []Conflict        `json:"conflicts_discarded,omitempty"`
	DiscardedSources    []string          `json:"discarded_sources,omitempty"`
}

// HasFlag reports whether the decision carries the given flag.
func (d *ResolvedDecision) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Source is the uniform knowledge-source contract. ShouldContribute must be a
// cheap, side-effect-free check; Contribute is only called when it returns
// true. Sources are stateless with respect to the session: everything they
// need comes from the snapshot, so one instance serves many sessions.
type Source interface {
	ID() string
	Priority() int
	Combinable() bool
	ShouldContribute(s *Snapshot) bool
	Contribute(s *Snapshot) *Proposal
}

// Flags emitted by the built-in sources.
const (
	FlagObjection       = "objection"
	FlagEscalation      = "escalation"
	FlagDataComplete    = "data_complete"
	FlagPriceQuestion   = "price_question"
	FlagStall           = "stall"
	FlagRepeatedContent = "repeated_content"
	FlagComposite       = "composite_message"
	FlagDefaulted       = "defaulted"
)
