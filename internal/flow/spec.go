// Package flow defines the FlowSpecification: the externally supplied,
// strongly-typed description of a tenant's conversation flow. The engine only
// executes what a specification declares; it carries no embedded business
// states. Specifications are loaded once per tenant, validated at load time,
// and treated as immutable afterwards.
package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Specification is the root of a tenant's flow configuration. All runtime
// behavior of the decision engine (states, rule tables, limits, source
// ordering) comes from here.
type Specification struct {
	// Tenant identifies the owner of this flow.
	Tenant string `mapstructure:"tenant" yaml:"tenant"`

	// InitialState is the state every new session starts in.
	InitialState string `mapstructure:"initial_state" yaml:"initial_state"`

	// DefaultIntent is assigned when the classifier finds no confident match.
	DefaultIntent string `mapstructure:"default_intent" yaml:"default_intent"`

	// DefaultAction is used when no knowledge source contributes a proposal.
	DefaultAction string `mapstructure:"default_action" yaml:"default_action"`

	// DefaultTransition optionally accompanies DefaultAction. Empty means stay.
	DefaultTransition string `mapstructure:"default_transition" yaml:"default_transition"`

	// Escalation names the action and state used when a guard overrides the
	// arbitration outcome (objection ceiling, forced forward).
	Escalation Escalation `mapstructure:"escalation" yaml:"escalation"`

	// ForcedForward is the state a session is pushed to once the go-back limit
	// is exceeded. Falls back to Escalation.State when empty.
	ForcedForward string `mapstructure:"forced_forward" yaml:"forced_forward"`

	// DeflectionActions lists the actions counted as deflections by the
	// context window's frustration signal.
	DeflectionActions []string `mapstructure:"deflection_actions" yaml:"deflection_actions"`

	// Limits holds the anti-looping ceilings.
	Limits Limits `mapstructure:"limits" yaml:"limits"`

	// PhaseOrder is the monotonic ordering of states used for turn typing.
	// States absent from the ordering yield a neutral turn type.
	PhaseOrder []string `mapstructure:"phase_order" yaml:"phase_order"`

	// RequiredFields are the data keys the completeness source watches for.
	RequiredFields []string `mapstructure:"required_fields" yaml:"required_fields"`

	// CompletenessTransition is proposed once every required field is present.
	CompletenessTransition string `mapstructure:"completeness_transition" yaml:"completeness_transition"`

	// States maps state names to their transition sets and rule tables.
	States map[string]StateSpec `mapstructure:"states" yaml:"states"`

	// Sources declares which knowledge sources run and at what priority tier.
	// Slice order is the registration order used for tie-breaking.
	Sources []SourceSpec `mapstructure:"sources" yaml:"sources"`

	// Intents holds the weighted pattern table for intent classification.
	Intents []IntentPattern `mapstructure:"intents" yaml:"intents"`

	// Objections is the two-tier objection lexicon.
	Objections []ObjectionPattern `mapstructure:"objections" yaml:"objections"`

	// ObjectionActions maps a detected objection type to the action the
	// objection guard proposes. Never a hardcoded fact.
	ObjectionActions map[string]string `mapstructure:"objection_actions" yaml:"objection_actions"`
}

// Escalation names the forced action/state pair used by the hard guards.
type Escalation struct {
	Action string `mapstructure:"action" yaml:"action"`
	State  string `mapstructure:"state" yaml:"state"`
}

// Limits holds the loop-prevention ceilings enforced by the flow executor.
type Limits struct {
	// MaxGoBacks is how many returns to a previously visited state are
	// tolerated before further go-backs are refused.
	MaxGoBacks int `mapstructure:"max_go_backs" yaml:"max_go_backs"`

	// MaxConsecutiveObjections bounds back-to-back objection turns.
	MaxConsecutiveObjections int `mapstructure:"max_consecutive_objections" yaml:"max_consecutive_objections"`

	// MaxTotalObjections bounds objection turns over the whole session.
	MaxTotalObjections int `mapstructure:"max_total_objections" yaml:"max_total_objections"`
}

// StateSpec describes a single conversation state.
type StateSpec struct {
	// Transitions is the set of states reachable from this one.
	Transitions []string `mapstructure:"transitions" yaml:"transitions"`

	// Terminal marks a state that refuses transitions outside Allow.
	Terminal bool `mapstructure:"terminal" yaml:"terminal"`

	// Allow is the allowlist of targets still reachable from a terminal state.
	Allow []string `mapstructure:"allow" yaml:"allow,omitempty"`

	// Rules is the intent -> action/transition table evaluated while the
	// session is in this state.
	Rules []Rule `mapstructure:"rules" yaml:"rules,omitempty"`
}

// Rule is one row of a state's intent table.
type Rule struct {
	Intent     string `mapstructure:"intent" yaml:"intent"`
	Action     string `mapstructure:"action" yaml:"action,omitempty"`
	Transition string `mapstructure:"transition" yaml:"transition,omitempty"`
}

// SourceSpec declares one knowledge source. ID must name a registered source
// implementation; Priority is the arbitration tier (higher wins).
type SourceSpec struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Priority int    `mapstructure:"priority" yaml:"priority"`
}

// IntentPattern holds the weighted regex patterns for one intent.
type IntentPattern struct {
	Intent   string            `mapstructure:"intent" yaml:"intent"`
	Patterns []WeightedPattern `mapstructure:"patterns" yaml:"patterns"`
}

// WeightedPattern is a regex with its signal strength.
type WeightedPattern struct {
	Pattern string  `mapstructure:"pattern" yaml:"pattern"`
	Weight  float64 `mapstructure:"weight" yaml:"weight"`
}

// ObjectionPattern is one entry of the objection taxonomy. Patterns feed the
// fast lexical tier; Phrases are the canonical forms the semantic tier
// compares against.
type ObjectionPattern struct {
	Type     string   `mapstructure:"type" yaml:"type"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	Phrases  []string `mapstructure:"phrases" yaml:"phrases"`
}

// Load reads and validates a flow specification from a YAML file.
// A specification that fails validation never reaches the engine.
func Load(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow specification: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a flow specification from YAML bytes.
func Parse(data []byte) (*Specification, error) {
	var spec Specification
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse flow specification: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// PhaseIndex returns the position of a state in the phase ordering, or -1 when
// the state is not part of it.
func (s *Specification) PhaseIndex(state string) int {
	for i, name := range s.PhaseOrder {
		if name == state {
			return i
		}
	}
	return -1
}

// AllowsTransition reports whether target is reachable from state. Terminal
// states consult only their allowlist. The escalation state is reachable from
// every non-terminal state without being listed as an edge.
func (s *Specification) AllowsTransition(state, target string) bool {
	ss, ok := s.States[state]
	if !ok {
		return false
	}
	if ss.Terminal {
		for _, t := range ss.Allow {
			if t == target {
				return true
			}
		}
		return false
	}
	if target == s.Escalation.State && target != "" {
		return true
	}
	for _, t := range ss.Transitions {
		if t == target {
			return true
		}
	}
	return false
}

// RuleFor returns the first rule matching intent in the given state, or nil.
func (s *Specification) RuleFor(state, intent string) *Rule {
	ss, ok := s.States[state]
	if !ok {
		return nil
	}
	for i := range ss.Rules {
		if ss.Rules[i].Intent == intent {
			return &ss.Rules[i]
		}
	}
	return nil
}

// IsDeflection reports whether action is one of the configured deflections.
func (s *Specification) IsDeflection(action string) bool {
	for _, a := range s.DeflectionActions {
		if a == action {
			return true
		}
	}
	return false
}

// ForcedForwardState resolves the state used when the go-back limit trips.
func (s *Specification) ForcedForwardState() string {
	if s.ForcedForward != "" {
		return s.ForcedForward
	}
	return s.Escalation.State
}
