package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepilot/collab-relay/internal/domain"
	"github.com/codepilot/collab-relay/internal/registry"
	"github.com/codepilot/collab-relay/internal/transport/ws"
)

type stubSuggester struct {
	suggestions []string
	fallback    bool
}

func (s *stubSuggester) Suggest(context.Context, string, string, string) ([]string, bool) {
	return s.suggestions, s.fallback
}

func newTestServer(t *testing.T, reg *registry.Registry, sg Suggester) *httptest.Server {
	t.Helper()
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, ws.NewRouter(reg, hub))
	srv := httptest.NewServer(NewRouter(NewHandler(reg, sg), wsServer, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	reg := registry.New()
	_, err := reg.CreateRoom("AB12CD", domain.Participant{ID: "a", Name: "Alex"}, "", "")
	require.NoError(t, err)
	srv := newTestServer(t, reg, &stubSuggester{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status           string `json:"status"`
		RoomCount        int    `json:"room_count"`
		ParticipantCount int    `json:"participant_count"`
		Timestamp        string `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.RoomCount)
	assert.Equal(t, 1, body.ParticipantCount)
	assert.NotEmpty(t, body.Timestamp)
}

func TestGetRoom(t *testing.T) {
	reg := registry.New()
	_, err := reg.CreateRoom("AB12CD", domain.Participant{ID: "a", Name: "Alex"}, "x=1", "python")
	require.NoError(t, err)
	srv := newTestServer(t, reg, &stubSuggester{})

	resp, err := http.Get(srv.URL + "/rooms/AB12CD")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ID               string `json:"id"`
		ParticipantCount int    `json:"participant_count"`
		LanguageTag      string `json:"language_tag"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "AB12CD", body.ID)
	assert.Equal(t, 1, body.ParticipantCount)
	assert.Equal(t, "python", body.LanguageTag)
}

func TestGetRoomNotFound(t *testing.T) {
	srv := newTestServer(t, registry.New(), &stubSuggester{})

	resp, err := http.Get(srv.URL + "/rooms/NOPE42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSuggestions(t *testing.T) {
	sg := &stubSuggester{suggestions: []string{"add input validation", "name variables meaningfully"}}
	srv := newTestServer(t, registry.New(), sg)

	resp, err := http.Post(srv.URL+"/suggestions", "application/json",
		strings.NewReader(`{"code":"x=1","language":"python"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Suggestions []string `json:"suggestions"`
		Fallback    bool     `json:"fallback"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, sg.suggestions, body.Suggestions)
	assert.False(t, body.Fallback)
}

func TestSuggestionsRequiresCode(t *testing.T) {
	srv := newTestServer(t, registry.New(), &stubSuggester{})

	resp, err := http.Post(srv.URL+"/suggestions", "application/json", strings.NewReader(`{"language":"go"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/suggestions", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
