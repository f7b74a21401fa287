package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvhov/chatrelay/internal/client"
	"github.com/arvhov/chatrelay/internal/config"
	"github.com/arvhov/chatrelay/internal/hub"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	messages, err := store.Open(":memory:")
	require.NoError(t, err)

	cfg := config.NewConfig()
	h := hub.NewHub(hub.NewRooms(), messages, nil, cfg, logger.NewLogger("hub-test"))
	return NewServer(h, messages, nil, cfg, logger.NewLogger("api-test")), messages
}

func TestHistoryNewestFirst(t *testing.T) {
	srv, messages := newTestServer(t)
	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		_, err := messages.Append(ctx, "general", "alice", content)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	srv.handleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/general/messages?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Room     string          `json:"room"`
		Messages []store.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "general", body.Room)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "three", body.Messages[0].Content)
	assert.Equal(t, "two", body.Messages[1].Content)
}

func TestHistoryBadPath(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/rooms/", "/api/rooms/general", "/api/rooms/general/members"} {
		rec := httptest.NewRecorder()
		srv.handleHistory(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %s", path)
	}
}

func TestRoomDirectory(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleRooms(rec, httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"general"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleRooms(rec, httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"general"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleRooms(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rooms []store.Room `json:"rooms"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "general", body.Rooms[0].Name)
}

func TestRoomCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleRooms(rec, httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])
	assert.Equal(t, "disabled", body["archive"])
}

// The client's history fetcher and the server's history endpoint agree
// on the wire format: a reconnecting client sees messages persisted
// while it was offline.
func TestClientFetcherAgainstHistoryEndpoint(t *testing.T) {
	srv, messages := newTestServer(t)
	ctx := context.Background()
	_, err := messages.Append(ctx, "general", "alice", "msg1")
	require.NoError(t, err)
	_, err = messages.Append(ctx, "general", "bob", "msg2")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	fetcher := &client.HTTPFetcher{BaseURL: ts.URL}
	got, err := fetcher.Recent(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "msg2", got[0].Content)
	assert.Equal(t, "msg1", got[1].Content)
	assert.NotEmpty(t, got[0].ID)
}
