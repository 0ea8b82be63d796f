// Package window maintains the per-session turn history and derives the
// behavioral signals knowledge sources reason over: structural frustration,
// turn typing against the phase ordering, episodic highlights, and a rolling
// client profile. Signal derivation is defensive: malformed turns are skipped
// and an empty or short window yields neutral signals, never an error.
package window

import (
	"time"
	"unicode/utf8"
)

// Turn is one committed conversation turn. Immutable once recorded.
type Turn struct {
	Index          int       `json:"index"`
	UserMessage    string    `json:"user_message"`
	DetectedIntent string    `json:"detected_intent"`
	ChosenAction   string    `json:"chosen_action"`
	ResultingState string    `json:"resulting_state"`
	ObjectionType  string    `json:"objection_type,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TurnType classifies a turn's movement relative to the phase ordering.
type TurnType string

const (
	TurnProgress TurnType = "progress"
	TurnRegress  TurnType = "regress"
	TurnLateral  TurnType = "lateral"
	TurnStuck    TurnType = "stuck"
)

// Named frustration triggers.
const (
	TriggerUnansweredRepeat = "unanswered_repeat"
	TriggerLengthDecrease   = "length_decrease"
	TriggerDeflectionLoop   = "deflection_loop"
)

const shortMessageChars = 20

// FrustrationSignal is the summed output of the independent frustration checks.
type FrustrationSignal struct {
	Delta    int      `json:"delta"`
	Triggers []string `json:"triggers,omitempty"`
}

// Episodes holds the notable moments found by scanning the window. Indexes are
// turn indexes; a nil pointer means the episode has not occurred.
type Episodes struct {
	FirstObjection    *Turn `json:"first_objection,omitempty"`
	FirstBreakthrough *Turn `json:"first_breakthrough,omitempty"`
	TurningPoints     []int `json:"turning_points,omitempty"`
}

// ClientProfile is the rolling aggregate over the whole window, not any
// single turn.
type ClientProfile struct {
	Turns                int            `json:"turns"`
	IntentCounts         map[string]int `json:"intent_counts"`
	DeflectionCount      int            `json:"deflection_count"`
	ObjectionCount       int            `json:"objection_count"`
	RecentMessageLengths []int          `json:"recent_message_lengths"`
	LastIntent           string         `json:"last_intent,omitempty"`
}

// Window is the append-only ordered turn sequence for one session. It is owned
// exclusively by that session and is not safe for concurrent use; the session
// serializes turn processing.
type Window struct {
	turns        []Turn
	maxTurns     int
	isDeflection func(action string) bool
	phaseIndex   func(state string) int
}

// Option configures a Window.
type Option func(*Window)

// WithMaxTurns bounds the window; recording beyond the bound drops the oldest
// turn (FIFO). Zero means unbounded.
func WithMaxTurns(n int) Option {
	return func(w *Window) { w.maxTurns = n }
}

// WithDeflectionClassifier supplies the predicate for deflection actions.
func WithDeflectionClassifier(fn func(action string) bool) Option {
	return func(w *Window) {
		if fn != nil {
			w.isDeflection = fn
		}
	}
}

// WithPhaseIndexer supplies the phase ordering lookup used for turn typing.
// The function must return -1 for states outside the ordering.
func WithPhaseIndexer(fn func(state string) int) Option {
	return func(w *Window) {
		if fn != nil {
			w.phaseIndex = fn
		}
	}
}

// New creates an empty window.
func New(opts ...Option) *Window {
	w := &Window{
		isDeflection: func(string) bool { return false },
		phaseIndex:   func(string) int { return -1 },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends a turn. O(1) amortized; evicts the oldest turn when the
// configured bound is exceeded.
func (w *Window) Record(t Turn) {
	w.turns = append(w.turns, t)
	if w.maxTurns > 0 && len(w.turns) > w.maxTurns {
		w.turns = w.turns[1:]
	}
}

// Len returns the number of retained turns.
func (w *Window) Len() int { return len(w.turns) }

// Turns returns a copy of the retained turns in order.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Last returns a copy of the most recent n turns (fewer if the window is
// shorter).
func (w *Window) Last(n int) []Turn {
	if n <= 0 || len(w.turns) == 0 {
		return nil
	}
	if n > len(w.turns) {
		n = len(w.turns)
	}
	out := make([]Turn, n)
	copy(out, w.turns[len(w.turns)-n:])
	return out
}

// StructuralFrustration sums three independent checks over the window:
// unanswered intent repeats, strictly decreasing message lengths, and a
// deflection loop. Fewer than two turns yields a zero signal.
func (w *Window) StructuralFrustration() FrustrationSignal {
	var sig FrustrationSignal
	if len(w.turns) < 2 {
		return sig
	}

	if delta := w.unansweredRepeatDelta(); delta > 0 {
		sig.Delta += delta
		sig.Triggers = append(sig.Triggers, TriggerUnansweredRepeat)
	}
	if w.lengthDecrease() {
		sig.Delta++
		sig.Triggers = append(sig.Triggers, TriggerLengthDecrease)
	}
	if w.deflectionLoop() {
		sig.Delta++
		sig.Triggers = append(sig.Triggers, TriggerDeflectionLoop)
	}
	return sig
}

// unansweredRepeatDelta scores intents the client keeps raising while every
// repeat was met with a deflection. Each such intent contributes
// min(repeats-1, 3).
func (w *Window) unansweredRepeatDelta() int {
	type tally struct {
		count        int
		repeatsDefl  int
		repeatsTotal int
	}
	tallies := make(map[string]*tally)
	order := make([]string, 0, 4)

	for _, t := range w.turns {
		if t.DetectedIntent == "" {
			continue
		}
		tl, ok := tallies[t.DetectedIntent]
		if !ok {
			tl = &tally{}
			tallies[t.DetectedIntent] = tl
			order = append(order, t.DetectedIntent)
		}
		tl.count++
		if tl.count > 1 {
			tl.repeatsTotal++
			if w.isDeflection(t.ChosenAction) {
				tl.repeatsDefl++
			}
		}
	}

	delta := 0
	for _, intent := range order {
		tl := tallies[intent]
		if tl.count < 2 || tl.repeatsDefl != tl.repeatsTotal {
			continue
		}
		contribution := tl.count - 1
		if contribution > 3 {
			contribution = 3
		}
		delta += contribution
	}
	return delta
}

// lengthDecrease reports whether the last three user messages have strictly
// decreasing character lengths and the final one is short. Turns with empty
// messages are skipped as malformed.
func (w *Window) lengthDecrease() bool {
	lengths := make([]int, 0, 3)
	for i := len(w.turns) - 1; i >= 0 && len(lengths) < 3; i-- {
		if w.turns[i].UserMessage == "" {
			continue
		}
		lengths = append(lengths, utf8.RuneCountInString(w.turns[i].UserMessage))
	}
	if len(lengths) < 3 {
		return false
	}
	// lengths is newest-first.
	return lengths[0] < lengths[1] && lengths[1] < lengths[2] && lengths[0] < shortMessageChars
}

// deflectionLoop reports whether three or more deflection actions appear
// anywhere in the window.
func (w *Window) deflectionLoop() bool {
	n := 0
	for _, t := range w.turns {
		if w.isDeflection(t.ChosenAction) {
			n++
			if n >= 3 {
				return true
			}
		}
	}
	return false
}

// TurnTypeOf classifies a turn relative to its predecessor using the phase
// ordering. Unknown states and the first turn degrade to the neutral lateral
// type.
func (w *Window) TurnTypeOf(t Turn) TurnType {
	pos := -1
	for i := range w.turns {
		if w.turns[i].Index == t.Index {
			pos = i
			break
		}
	}
	if pos <= 0 {
		return TurnLateral
	}
	prev := w.turns[pos-1]
	return w.typeBetween(prev.ResultingState, w.turns[pos].ResultingState)
}

func (w *Window) typeBetween(prevState, curState string) TurnType {
	if prevState == curState {
		return TurnStuck
	}
	prevIdx := w.phaseIndex(prevState)
	curIdx := w.phaseIndex(curState)
	if prevIdx < 0 || curIdx < 0 {
		return TurnLateral
	}
	switch {
	case curIdx > prevIdx:
		return TurnProgress
	case curIdx < prevIdx:
		return TurnRegress
	default:
		return TurnLateral
	}
}

// EpisodicMemory scans the window for notable episodes. It is recomputed on
// demand; the window keeps no incremental episode state.
func (w *Window) EpisodicMemory() Episodes {
	var ep Episodes

	firstObjectionPos := -1
	for i := range w.turns {
		if w.turns[i].ObjectionType != "" {
			turn := w.turns[i]
			ep.FirstObjection = &turn
			firstObjectionPos = i
			break
		}
	}

	prevType := TurnType("")
	for i := 1; i < len(w.turns); i++ {
		curType := w.typeBetween(w.turns[i-1].ResultingState, w.turns[i].ResultingState)

		if ep.FirstBreakthrough == nil && firstObjectionPos >= 0 && i > firstObjectionPos && curType == TurnProgress {
			turn := w.turns[i]
			ep.FirstBreakthrough = &turn
		}

		if prevType != "" && isTurningPoint(prevType, curType) {
			ep.TurningPoints = append(ep.TurningPoints, w.turns[i].Index)
		}
		prevType = curType
	}
	return ep
}

// isTurningPoint reports a direction change between consecutive turn types.
func isTurningPoint(prev, cur TurnType) bool {
	if cur == TurnProgress && (prev == TurnRegress || prev == TurnStuck) {
		return true
	}
	if cur == TurnRegress && prev == TurnProgress {
		return true
	}
	return false
}

// Profile aggregates window-wide signals for downstream consumers.
func (w *Window) Profile() ClientProfile {
	p := ClientProfile{
		Turns:        len(w.turns),
		IntentCounts: make(map[string]int),
	}
	for _, t := range w.turns {
		if t.DetectedIntent != "" {
			p.IntentCounts[t.DetectedIntent]++
			p.LastIntent = t.DetectedIntent
		}
		if w.isDeflection(t.ChosenAction) {
			p.DeflectionCount++
		}
		if t.ObjectionType != "" {
			p.ObjectionCount++
		}
	}
	recent := w.Last(3)
	for _, t := range recent {
		p.RecentMessageLengths = append(p.RecentMessageLengths, utf8.RuneCountInString(t.UserMessage))
	}
	return p
}
