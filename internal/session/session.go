// Package session ties the per-turn pipeline together: classification,
// objection detection, fact retrieval, snapshot assembly, arbitration, and
// flow execution, in that order, under one lock per session.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nmoralez/rudder/internal/blackboard"
	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/flowexec"
	"github.com/nmoralez/rudder/internal/intent"
	"github.com/nmoralez/rudder/internal/knowledge"
	"github.com/nmoralez/rudder/internal/objection"
	"github.com/nmoralez/rudder/internal/window"
)

// snapshotTurns bounds how much recent history a snapshot carries. Sources
// that scan history only ever look a few turns back.
const snapshotTurns = 8

// factLimit caps how many knowledge facts are fetched per turn.
const factLimit = 2

// Recorder receives every committed turn for persistence. Implementations
// must tolerate being called from multiple sessions concurrently.
type Recorder interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
}

// nopRecorder drops everything. Used when no store is configured.
type nopRecorder struct{}

func (nopRecorder) RecordTurn(context.Context, TurnRecord) error { return nil }

// TurnRecord is the persisted form of one processed turn.
type TurnRecord struct {
	SessionID   string
	TurnIndex   int
	UserMessage string
	Intent      string
	Confidence  float64
	Objection   objection.Result
	Frustration window.FrustrationSignal
	Decision    *blackboard.ResolvedDecision
	State       string
	Anomalies   []flowexec.Anomaly
	Episodes    window.Episodes
	Timestamp   time.Time
}

// TurnResult is what a caller gets back for one message: the committed
// decision plus the signals that produced it.
type TurnResult struct {
	SessionID   string                       `json:"session_id"`
	TurnIndex   int                          `json:"turn_index"`
	Intent      string                       `json:"intent"`
	Confidence  float64                      `json:"confidence"`
	Objection   objection.Result             `json:"objection"`
	Frustration window.FrustrationSignal     `json:"frustration"`
	Decision    *blackboard.ResolvedDecision `json:"decision"`
	State       string                       `json:"state"`
	Anomalies   []flowexec.Anomaly           `json:"anomalies,omitempty"`
	Episodes    window.Episodes              `json:"episodes"`
}

// Session is one conversation. All turn processing for a session is
// serialized by its mutex; distinct sessions proceed independently.
type Session struct {
	mu sync.Mutex

	id         string
	spec       *flow.Specification
	window     *window.Window
	executor   *flowexec.Executor
	engine     *blackboard.Engine
	classifier *intent.Classifier
	detector   *objection.Detector
	retriever  knowledge.Retriever
	recorder   Recorder
	log        zerolog.Logger

	turnIndex int
	createdAt time.Time
}

func newSession(id string, spec *flow.Specification, deps Deps) (*Session, error) {
	classifier, err := intent.NewClassifier(spec)
	if err != nil {
		return nil, err
	}
	detector, err := objection.NewDetector(spec.Objections)
	if err != nil {
		return nil, err
	}
	sources, err := blackboard.BuildSources(spec)
	if err != nil {
		return nil, err
	}

	retriever := deps.Retriever
	if retriever == nil {
		retriever = knowledge.NullRetriever{}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	log := deps.Logger.With().Str("component", "session").Str("session_id", id).Logger()

	return &Session{
		id:   id,
		spec: spec,
		window: window.New(
			window.WithDeflectionClassifier(spec.IsDeflection),
			window.WithPhaseIndexer(spec.PhaseIndex),
		),
		executor:   flowexec.NewExecutor(spec, deps.Logger),
		engine:     blackboard.NewEngine(spec, sources, deps.Logger),
		classifier: classifier,
		detector:   detector,
		retriever:  retriever,
		recorder:   recorder,
		log:        log,
		createdAt:  time.Now(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns a copy of the current flow state.
func (s *Session) State() flowexec.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executor.State()
}

// ProcessTurn runs one user message through the full pipeline and returns the
// committed outcome. The same message sequence always yields the same
// sequence of results.
func (s *Session) ProcessTurn(ctx context.Context, message string) (*TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turnIndex := s.turnIndex

	detectedIntent, confidence := s.classifier.Classify(message)
	obj := s.detector.Detect(message)
	frustration := s.window.StructuralFrustration()

	facts := s.fetchFacts(ctx, detectedIntent)

	snap := &blackboard.Snapshot{
		SessionID:        s.id,
		TurnIndex:        turnIndex,
		Message:          message,
		Intent:           detectedIntent,
		IntentConfidence: confidence,
		Objection:        obj,
		Frustration:      frustration,
		Profile:          s.window.Profile(),
		Recent:           s.window.Last(snapshotTurns),
		Session:          s.executor.View(),
		Spec:             s.spec,
		Facts:            facts,
	}

	decision := s.engine.Arbitrate(snap)
	applied, anomalies := s.executor.Apply(turnIndex, decision)
	state := s.executor.State().Current

	s.window.Record(window.Turn{
		Index:          turnIndex,
		UserMessage:    message,
		DetectedIntent: detectedIntent,
		ChosenAction:   applied.FinalAction,
		ResultingState: state,
		ObjectionType:  objectionType(obj),
		Timestamp:      time.Now(),
	})
	s.turnIndex++
	episodes := s.window.EpisodicMemory()

	rec := TurnRecord{
		SessionID:   s.id,
		TurnIndex:   turnIndex,
		UserMessage: message,
		Intent:      detectedIntent,
		Confidence:  confidence,
		Objection:   obj,
		Frustration: frustration,
		Decision:    applied,
		State:       state,
		Anomalies:   anomalies,
		Episodes:    episodes,
		Timestamp:   time.Now(),
	}
	if err := s.recorder.RecordTurn(ctx, rec); err != nil {
		// Persistence failure degrades to a log line; the turn itself stands.
		s.log.Error().Err(err).Int("turn", turnIndex).Msg("failed to record turn")
	}

	s.log.Info().
		Int("turn", turnIndex).
		Str("intent", detectedIntent).
		Str("action", applied.FinalAction).
		Str("state", state).
		Int("frustration", frustration.Delta).
		Msg("turn processed")

	return &TurnResult{
		SessionID:   s.id,
		TurnIndex:   turnIndex,
		Intent:      detectedIntent,
		Confidence:  confidence,
		Objection:   obj,
		Frustration: frustration,
		Decision:    applied,
		State:       state,
		Anomalies:   anomalies,
		Episodes:    episodes,
	}, nil
}

// fetchFacts retrieves knowledge for the detected intent. Retrieval errors
// never fail the turn; sources simply see no facts.
func (s *Session) fetchFacts(ctx context.Context, category string) []knowledge.Fact {
	facts, err := s.retriever.Retrieve(ctx, category, factLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("category", category).Msg("fact retrieval failed")
		return nil
	}
	return facts
}

func objectionType(r objection.Result) string {
	if !r.IsObjection {
		return ""
	}
	return strings.TrimSpace(r.PrimaryType)
}
