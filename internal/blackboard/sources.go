package blackboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Registered source identifiers. The registry is closed: a flow specification
// may configure any subset of these, at any priority, but cannot invent new
// ones at runtime.
const (
	SourceEscalationTrigger = "escalation_trigger"
	SourceObjectionGuard    = "objection_guard"
	SourceDataCompleteness  = "data_completeness"
	SourcePriceQuestion     = "price_question"
	SourceIntentTransition  = "intent_transition"
	SourceIntentAction      = "intent_action"
	SourceCompositeMessage  = "composite_message"
	SourceStallDetector     = "stall_detector"
	SourceRepetition        = "repetition_detector"
)

// escalationFrustrationThreshold is the frustration delta at which the
// escalation trigger fires even without an explicit human request.
const escalationFrustrationThreshold = 3

type baseSource struct {
	id         string
	priority   int
	combinable bool
}

func (b baseSource) ID() string       { return b.id }
func (b baseSource) Priority() int    { return b.priority }
func (b baseSource) Combinable() bool { return b.combinable }

// ═══════════════════════════════════════════════════════════════════════════════
// ESCALATION TRIGGER
// ═══════════════════════════════════════════════════════════════════════════════

// escalationTrigger is a blocking source: an explicit request for a human or
// a high structural-frustration signal always wins the action.
type escalationTrigger struct {
	baseSource
}

func newEscalationTrigger(priority int) *escalationTrigger {
	return &escalationTrigger{baseSource{SourceEscalationTrigger, priority, false}}
}

func (s *escalationTrigger) ShouldContribute(snap *Snapshot) bool {
	if snap.Spec.Escalation.Action == "" {
		return false
	}
	if snap.Intent == "human_request" {
		return true
	}
	return snap.Frustration.Delta >= escalationFrustrationThreshold
}

func (s *escalationTrigger) Contribute(snap *Snapshot) *Proposal {
	return &Proposal{
		Action:     snap.Spec.Escalation.Action,
		Transition: snap.Spec.Escalation.State,
		Flags:      []string{FlagEscalation},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// OBJECTION GUARD
// ═══════════════════════════════════════════════════════════════════════════════

// objectionGuard consumes the cascade detector's verdict and maps the
// objection type to its configuration-declared action. Blocking: an open
// objection outranks whatever else the message contains.
type objectionGuard struct {
	baseSource
}

func newObjectionGuard(priority int) *objectionGuard {
	return &objectionGuard{baseSource{SourceObjectionGuard, priority, false}}
}

func (s *objectionGuard) ShouldContribute(snap *Snapshot) bool {
	if !snap.Objection.IsObjection {
		return false
	}
	_, ok := snap.Spec.ObjectionActions[snap.Objection.PrimaryType]
	return ok
}

func (s *objectionGuard) Contribute(snap *Snapshot) *Proposal {
	return &Proposal{
		Action: snap.Spec.ObjectionActions[snap.Objection.PrimaryType],
		Flags:  []string{FlagObjection, FlagObjection + ":" + snap.Objection.PrimaryType},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// DATA COMPLETENESS
// ═══════════════════════════════════════════════════════════════════════════════

// dataCompleteness watches the collected-data map and proposes the
// completeness transition once every required field is present. This is the
// precondition keeper for terminal states like payment-ready; the executor
// itself never inspects data.
type dataCompleteness struct {
	baseSource
}

func newDataCompleteness(priority int) *dataCompleteness {
	return &dataCompleteness{baseSource{SourceDataCompleteness, priority, true}}
}

func (s *dataCompleteness) ShouldContribute(snap *Snapshot) bool {
	target := snap.Spec.CompletenessTransition
	if target == "" || len(snap.Spec.RequiredFields) == 0 {
		return false
	}
	if snap.Session.CurrentState == target {
		return false
	}
	for _, field := range snap.Spec.RequiredFields {
		if !snap.Session.HasData(field) {
			return false
		}
	}
	return true
}

func (s *dataCompleteness) Contribute(snap *Snapshot) *Proposal {
	return &Proposal{
		Transition: snap.Spec.CompletenessTransition,
		Flags:      []string{FlagDataComplete},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE QUESTION
// ═══════════════════════════════════════════════════════════════════════════════

// priceQuestion answers pricing intents with the state's configured rule
// action and attaches retrieved facts for the generation layer. The engine
// pre-fetches facts into the snapshot; a failed retrieval just means an empty
// fact list, never a skipped turn.
type priceQuestion struct {
	baseSource
}

func newPriceQuestion(priority int) *priceQuestion {
	return &priceQuestion{baseSource{SourcePriceQuestion, priority, true}}
}

func (s *priceQuestion) ShouldContribute(snap *Snapshot) bool {
	return snap.Intent == "price_question"
}

func (s *priceQuestion) Contribute(snap *Snapshot) *Proposal {
	p := &Proposal{Flags: []string{FlagPriceQuestion}}
	if rule := snap.Spec.RuleFor(snap.Session.CurrentState, snap.Intent); rule != nil {
		p.Action = rule.Action
	}
	for i, fact := range snap.Facts {
		if i >= 2 {
			break
		}
		if p.DataUpdates == nil {
			p.DataUpdates = make(map[string]string)
		}
		p.DataUpdates[fmt.Sprintf("fact.%d", i)] = fact.Content
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENT RULE TABLES
// ═══════════════════════════════════════════════════════════════════════════════

// intentTransition proposes the rule-table transition for the current state
// and intent. It carries the rule's action too, so that when it is selected
// as primary the turn does not fall back to the default action.
type intentTransition struct {
	baseSource
}

func newIntentTransition(priority int) *intentTransition {
	return &intentTransition{baseSource{SourceIntentTransition, priority, true}}
}

func (s *intentTransition) ShouldContribute(snap *Snapshot) bool {
	rule := snap.Spec.RuleFor(snap.Session.CurrentState, snap.Intent)
	return rule != nil && rule.Transition != ""
}

func (s *intentTransition) Contribute(snap *Snapshot) *Proposal {
	rule := snap.Spec.RuleFor(snap.Session.CurrentState, snap.Intent)
	return &Proposal{
		Action:     rule.Action,
		Transition: rule.Transition,
	}
}

// intentAction proposes the plain rule-table action when the rule declares no
// transition.
type intentAction struct {
	baseSource
}

func newIntentAction(priority int) *intentAction {
	return &intentAction{baseSource{SourceIntentAction, priority, true}}
}

func (s *intentAction) ShouldContribute(snap *Snapshot) bool {
	rule := snap.Spec.RuleFor(snap.Session.CurrentState, snap.Intent)
	return rule != nil && rule.Action != "" && rule.Transition == ""
}

func (s *intentAction) Contribute(snap *Snapshot) *Proposal {
	rule := snap.Spec.RuleFor(snap.Session.CurrentState, snap.Intent)
	return &Proposal{Action: rule.Action}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPOSITE MESSAGE
// ═══════════════════════════════════════════════════════════════════════════════

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`)
	namePattern  = regexp.MustCompile(`(?i)\bmy name is ([A-Za-zÀ-ÿ]+)`)
)

// compositeMessage handles messages that carry extractable client data
// alongside something else (a question, an objection). It records the data as
// combinable updates so that whichever source wins the action, the incidental
// data from the same message is not lost.
type compositeMessage struct {
	baseSource
}

func newCompositeMessage(priority int) *compositeMessage {
	return &compositeMessage{baseSource{SourceCompositeMessage, priority, true}}
}

func (s *compositeMessage) ShouldContribute(snap *Snapshot) bool {
	return len(extractClientData(snap.Message)) > 0
}

func (s *compositeMessage) Contribute(snap *Snapshot) *Proposal {
	updates := extractClientData(snap.Message)
	flags := []string{}
	// A message that both provides data and asks something is a composite:
	// flag it so downstream consumers know the reply must acknowledge both.
	if strings.Contains(snap.Message, "?") && snap.Intent != "provide_data" {
		flags = append(flags, FlagComposite)
	}
	return &Proposal{DataUpdates: updates, Flags: flags}
}

// extractClientData pulls the well-known profile fields out of free text.
func extractClientData(message string) map[string]string {
	updates := make(map[string]string)
	if m := namePattern.FindStringSubmatch(message); m != nil {
		updates["name"] = m[1]
	}
	if m := emailPattern.FindString(message); m != "" {
		updates["contact"] = m
	} else if m := phonePattern.FindString(message); m != "" {
		updates["contact"] = strings.TrimSpace(m)
	}
	if len(updates) == 0 {
		return nil
	}
	return updates
}

// ═══════════════════════════════════════════════════════════════════════════════
// STALL DETECTOR
// ═══════════════════════════════════════════════════════════════════════════════

// stallDetector flags a conversation that has not left its state for several
// turns. It never proposes an action; the flag lets the generation layer (or
// a higher-priority source next turn) change tack.
type stallDetector struct {
	baseSource
}

func newStallDetector(priority int) *stallDetector {
	return &stallDetector{baseSource{SourceStallDetector, priority, true}}
}

func (s *stallDetector) ShouldContribute(snap *Snapshot) bool {
	if len(snap.Recent) < 3 {
		return false
	}
	last := snap.Recent[len(snap.Recent)-3:]
	state := last[0].ResultingState
	for _, t := range last[1:] {
		if t.ResultingState != state {
			return false
		}
	}
	return state == snap.Session.CurrentState
}

func (s *stallDetector) Contribute(snap *Snapshot) *Proposal {
	return &Proposal{Flags: []string{FlagStall}}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPETITION DETECTOR
// ═══════════════════════════════════════════════════════════════════════════════

// repetitionDetector flags a message the client has already sent, and counts
// how often. Repeated content is a looping signal the frustration checks do
// not cover (same text, possibly different intents).
type repetitionDetector struct {
	baseSource
}

func newRepetitionDetector(priority int) *repetitionDetector {
	return &repetitionDetector{baseSource{SourceRepetition, priority, true}}
}

func (s *repetitionDetector) ShouldContribute(snap *Snapshot) bool {
	return s.repeatCount(snap) > 0
}

func (s *repetitionDetector) Contribute(snap *Snapshot) *Proposal {
	return &Proposal{
		Flags: []string{FlagRepeatedContent},
		DataUpdates: map[string]string{
			"repeat_count": strconv.Itoa(s.repeatCount(snap)),
		},
	}
}

func (s *repetitionDetector) repeatCount(snap *Snapshot) int {
	current := normalizeContent(snap.Message)
	if current == "" {
		return 0
	}
	n := 0
	for _, t := range snap.Recent {
		if normalizeContent(t.UserMessage) == current {
			n++
		}
	}
	return n
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
