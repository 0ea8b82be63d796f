package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmoralez/rudder/internal/blackboard"
	"github.com/nmoralez/rudder/internal/flowexec"
	"github.com/nmoralez/rudder/internal/objection"
	"github.com/nmoralez/rudder/internal/session"
	"github.com/nmoralez/rudder/internal/window"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(sessionID string, turn int) session.TurnRecord {
	return session.TurnRecord{
		SessionID:   sessionID,
		TurnIndex:   turn,
		UserMessage: "how much does it cost?",
		Intent:      "price_question",
		Confidence:  0.8,
		Objection:   objection.Result{},
		Frustration: window.FrustrationSignal{Delta: 1, Triggers: []string{"length_decrease"}},
		Decision: &blackboard.ResolvedDecision{
			FinalAction:         "answer_price",
			FinalTransition:     "discovery",
			Flags:               []string{"price_question"},
			ContributingSources: []string{"price_question"},
		},
		State:     "discovery",
		Timestamp: time.Now(),
	}
}

func TestRecordAndReadBack(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(ctx, record("s1", 0)))
	require.NoError(t, store.RecordTurn(ctx, record("s1", 1)))
	require.NoError(t, store.RecordTurn(ctx, record("s2", 0)))

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, 0, turns[0].TurnIndex)
	assert.Equal(t, 1, turns[1].TurnIndex)
	assert.Equal(t, "answer_price", turns[0].FinalAction)
	assert.Equal(t, "discovery", turns[0].ResultingState)
	assert.Equal(t, 1, turns[0].Frustration)
	assert.Contains(t, turns[0].DecisionJSON, `"final_action":"answer_price"`)
}

func TestRecordObjectionFields(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := record("s1", 0)
	rec.Objection = objection.Result{
		IsObjection: true,
		PrimaryType: "price",
		TierUsed:    objection.TierSemantic,
		Confidence:  0.7,
	}
	require.NoError(t, store.RecordTurn(ctx, rec))

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "price", turns[0].ObjectionType)
	assert.Equal(t, objection.TierSemantic, turns[0].ObjectionTier)
}

func TestRecordAnomalies(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := record("s1", 0)
	rec.Anomalies = []flowexec.Anomaly{
		{Kind: flowexec.AnomalyInvalidTransition, Detail: "greeting -> closing not allowed", TurnIndex: 0},
	}
	require.NoError(t, store.RecordTurn(ctx, rec))

	rec2 := record("s1", 1)
	rec2.Anomalies = []flowexec.Anomaly{
		{Kind: flowexec.AnomalyGoBackRefused, Detail: "go-back refused", TurnIndex: 1},
		{Kind: flowexec.AnomalyObjectionCeiling, Detail: "ceiling", TurnIndex: 1},
	}
	require.NoError(t, store.RecordTurn(ctx, rec2))

	anomalies, err := store.Anomalies(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, anomalies, 3)
	assert.Equal(t, flowexec.AnomalyInvalidTransition, anomalies[0].Kind)

	counts, err := store.AnomalyCounts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[flowexec.AnomalyGoBackRefused])
}

func TestRecordEpisodes(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := record("s1", 2)
	rec.Episodes = window.Episodes{
		FirstObjection:    &window.Turn{Index: 1},
		FirstBreakthrough: &window.Turn{Index: 2},
		TurningPoints:     []int{2},
	}
	require.NoError(t, store.RecordTurn(ctx, rec))

	// The window reports the same markers again on the next turn.
	rec2 := record("s1", 3)
	rec2.Episodes = window.Episodes{
		FirstObjection:    &window.Turn{Index: 1},
		FirstBreakthrough: &window.Turn{Index: 2},
		TurningPoints:     []int{2, 3},
	}
	require.NoError(t, store.RecordTurn(ctx, rec2))

	episodes, err := store.Episodes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, episodes, 4, "repeated markers deduplicate")
	assert.Equal(t, EpisodeFirstObjection, episodes[0].Kind)
	assert.Equal(t, 1, episodes[0].TurnIndex)
	assert.Equal(t, EpisodeTurningPoint, episodes[3].Kind)
	assert.Equal(t, 3, episodes[3].TurnIndex)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.migrate())
	require.NoError(t, store.migrate())
	assert.NoError(t, store.Health())
}
