package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/session"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	spec := flow.Default()
	require.NoError(t, spec.Validate())
	manager := session.NewManager(spec, session.Deps{Logger: zerolog.Nop()})

	s := New(manager, "localhost:0", zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc(TurnEndpoint, s.handleTurns)
	mux.HandleFunc(HealthEndpoint, s.handleHealth)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + TurnEndpoint
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTurnRoundTrip(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(TurnRequest{Message: "hello there"}))

	var res session.TurnResult
	require.NoError(t, conn.ReadJSON(&res))
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 0, res.TurnIndex)
	assert.Equal(t, "greeting", res.Intent)
	assert.Equal(t, "greet_back", res.Decision.FinalAction)

	// Second turn on the same session advances the index.
	require.NoError(t, conn.WriteJSON(TurnRequest{SessionID: res.SessionID, Message: "what is this about?"}))
	var res2 session.TurnResult
	require.NoError(t, conn.ReadJSON(&res2))
	assert.Equal(t, res.SessionID, res2.SessionID)
	assert.Equal(t, 1, res2.TurnIndex)
}

func TestEmptyMessageRejected(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(TurnRequest{Message: ""}))

	var errFrame TurnError
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Contains(t, errFrame.Error, "empty")
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + HealthEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "rudder", health.Service)
}
