// Package intent classifies user messages against the flow specification's
// weighted pattern tables. Classification is pure regex matching: cheap,
// deterministic, and shared safely across sessions.
package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nmoralez/rudder/internal/flow"
)

// DefaultConfidenceFloor is the confidence reported when nothing matches and
// the classifier falls back to the default intent.
const DefaultConfidenceFloor = 0.3

type weightedRegex struct {
	re     *regexp.Regexp
	weight float64
}

// Classifier scores messages against per-intent weighted patterns. Immutable
// after construction.
type Classifier struct {
	patterns      map[string][]weightedRegex
	order         []string // declaration order, for deterministic ties
	defaultIntent string
}

// NewClassifier compiles the specification's intent table.
func NewClassifier(spec *flow.Specification) (*Classifier, error) {
	c := &Classifier{
		patterns:      make(map[string][]weightedRegex, len(spec.Intents)),
		defaultIntent: spec.DefaultIntent,
	}
	if c.defaultIntent == "" {
		c.defaultIntent = "general"
	}
	for _, entry := range spec.Intents {
		for _, wp := range entry.Patterns {
			re, err := regexp.Compile(`(?i)` + wp.Pattern)
			if err != nil {
				return nil, fmt.Errorf("compile intent pattern %q: %w", wp.Pattern, err)
			}
			weight := wp.Weight
			if weight == 0 {
				weight = 1.0
			}
			c.patterns[entry.Intent] = append(c.patterns[entry.Intent], weightedRegex{re: re, weight: weight})
		}
		c.order = append(c.order, entry.Intent)
	}
	return c, nil
}

// Classify returns the best-scoring intent and a confidence in (0, 1].
// With no match it returns the default intent at the confidence floor.
func (c *Classifier) Classify(message string) (string, float64) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return c.defaultIntent, DefaultConfidenceFloor
	}

	scores := make(map[string]float64)
	var total float64
	for intent, patterns := range c.patterns {
		for _, wp := range patterns {
			if wp.re.MatchString(msg) {
				scores[intent] += wp.weight
				total += wp.weight
			}
		}
	}
	if total == 0 {
		return c.defaultIntent, DefaultConfidenceFloor
	}

	best := ""
	var bestScore float64
	for _, intent := range c.order {
		if s, ok := scores[intent]; ok && s > bestScore {
			best = intent
			bestScore = s
		}
	}

	confidence := bestScore / total
	if len(scores) == 1 {
		confidence = minFloat(confidence+0.2, 1.0)
	}
	return best, confidence
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
