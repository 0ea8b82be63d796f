package flow

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrConfiguration wraps every validation failure. A specification that fails
// validation is fatal for the session: the engine never sees it.
var ErrConfiguration = errors.New("flow configuration error")

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks the specification for the errors that would otherwise only
// surface mid-conversation: dangling transition targets, unreachable states,
// rule rows pointing nowhere, uncompilable patterns, negative limits.
func (s *Specification) Validate() error {
	if s.InitialState == "" {
		return configErrorf("initial_state is required")
	}
	if s.DefaultAction == "" {
		return configErrorf("default_action is required")
	}
	if len(s.States) == 0 {
		return configErrorf("at least one state is required")
	}
	if _, ok := s.States[s.InitialState]; !ok {
		return configErrorf("initial_state %q is not a declared state", s.InitialState)
	}

	for name, state := range s.States {
		for _, target := range state.Transitions {
			if _, ok := s.States[target]; !ok {
				return configErrorf("state %q transitions to undeclared state %q", name, target)
			}
		}
		for _, target := range state.Allow {
			if _, ok := s.States[target]; !ok {
				return configErrorf("terminal state %q allows undeclared state %q", name, target)
			}
		}
		if len(state.Allow) > 0 && !state.Terminal {
			return configErrorf("state %q declares an allowlist but is not terminal", name)
		}
		for _, rule := range state.Rules {
			if rule.Intent == "" {
				return configErrorf("state %q has a rule without an intent", name)
			}
			if rule.Action == "" && rule.Transition == "" {
				return configErrorf("state %q rule for intent %q has neither action nor transition", name, rule.Intent)
			}
			if rule.Transition != "" {
				if _, ok := s.States[rule.Transition]; !ok {
					return configErrorf("state %q rule for intent %q targets undeclared state %q", name, rule.Intent, rule.Transition)
				}
			}
		}
	}

	for _, name := range s.PhaseOrder {
		if _, ok := s.States[name]; !ok {
			return configErrorf("phase_order references undeclared state %q", name)
		}
	}

	if s.Escalation.State != "" {
		if _, ok := s.States[s.Escalation.State]; !ok {
			return configErrorf("escalation state %q is not declared", s.Escalation.State)
		}
	}
	if s.ForcedForward != "" {
		if _, ok := s.States[s.ForcedForward]; !ok {
			return configErrorf("forced_forward state %q is not declared", s.ForcedForward)
		}
	}
	if s.DefaultTransition != "" {
		if _, ok := s.States[s.DefaultTransition]; !ok {
			return configErrorf("default_transition %q is not declared", s.DefaultTransition)
		}
	}
	if s.CompletenessTransition != "" {
		if _, ok := s.States[s.CompletenessTransition]; !ok {
			return configErrorf("completeness_transition %q is not declared", s.CompletenessTransition)
		}
	}

	if s.Limits.MaxGoBacks < 0 || s.Limits.MaxConsecutiveObjections < 0 || s.Limits.MaxTotalObjections < 0 {
		return configErrorf("limits must be non-negative")
	}

	seenSources := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		if src.ID == "" {
			return configErrorf("source entry without an id")
		}
		if seenSources[src.ID] {
			return configErrorf("source %q declared twice", src.ID)
		}
		seenSources[src.ID] = true
	}

	for _, ip := range s.Intents {
		if ip.Intent == "" {
			return configErrorf("intent pattern entry without an intent name")
		}
		for _, wp := range ip.Patterns {
			if _, err := regexp.Compile(wp.Pattern); err != nil {
				return configErrorf("intent %q pattern %q: %v", ip.Intent, wp.Pattern, err)
			}
		}
	}

	objTypes := make(map[string]bool, len(s.Objections))
	for _, op := range s.Objections {
		if op.Type == "" {
			return configErrorf("objection entry without a type")
		}
		objTypes[op.Type] = true
		for _, p := range op.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return configErrorf("objection %q pattern %q: %v", op.Type, p, err)
			}
		}
	}
	for t := range s.ObjectionActions {
		if !objTypes[t] {
			return configErrorf("objection_actions maps unknown objection type %q", t)
		}
	}

	if err := s.checkReachability(); err != nil {
		return err
	}

	return nil
}

// checkReachability walks the transition graph from the initial state and
// rejects specifications with unreachable states. The escalation and forced
// forward states count as roots too, since guards jump to them directly.
func (s *Specification) checkReachability() error {
	reached := make(map[string]bool, len(s.States))
	queue := []string{s.InitialState}
	if s.Escalation.State != "" {
		queue = append(queue, s.Escalation.State)
	}
	if s.ForcedForward != "" {
		queue = append(queue, s.ForcedForward)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if reached[name] {
			continue
		}
		reached[name] = true
		state := s.States[name]
		queue = append(queue, state.Transitions...)
		queue = append(queue, state.Allow...)
		for _, rule := range state.Rules {
			if rule.Transition != "" {
				queue = append(queue, rule.Transition)
			}
		}
	}

	for name := range s.States {
		if !reached[name] {
			return configErrorf("state %q is unreachable from %q", name, s.InitialState)
		}
	}
	return nil
}
