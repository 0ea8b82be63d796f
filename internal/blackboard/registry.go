package blackboard

import (
	"fmt"

	"github.com/nmoralez/rudder/internal/flow"
)

// BuildSources instantiates the configured knowledge sources in declaration
// order. The registry is closed: an unknown source id is a configuration
// error, caught before any session starts.
func BuildSources(spec *flow.Specification) ([]Source, error) {
	sources := make([]Source, 0, len(spec.Sources))
	for _, ss := range spec.Sources {
		src, err := buildSource(ss)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func buildSource(ss flow.SourceSpec) (Source, error) {
	switch ss.ID {
	case SourceEscalationTrigger:
		return newEscalationTrigger(ss.Priority), nil
	case SourceObjectionGuard:
		return newObjectionGuard(ss.Priority), nil
	case SourceDataCompleteness:
		return newDataCompleteness(ss.Priority), nil
	case SourcePriceQuestion:
		return newPriceQuestion(ss.Priority), nil
	case SourceIntentTransition:
		return newIntentTransition(ss.Priority), nil
	case SourceIntentAction:
		return newIntentAction(ss.Priority), nil
	case SourceCompositeMessage:
		return newCompositeMessage(ss.Priority), nil
	case SourceStallDetector:
		return newStallDetector(ss.Priority), nil
	case SourceRepetition:
		return newRepetitionDetector(ss.Priority), nil
	default:
		return nil, fmt.Errorf("%w: unknown knowledge source %q", flow.ErrConfiguration, ss.ID)
	}
}
