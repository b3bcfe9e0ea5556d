/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/corpse/gallery"
	"github.com/Seednode/corpse/game"
)

func testConfig() *Config {
	return &Config{
		logFormat:    "console",
		maxPlayers:   8,
		messageBurst: 100,
		messageRate:  100,
		minPlayers:   2,
		port:         8080,
	}
}

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, gallery.Store) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := gallery.NewMemoryStore(0)

	mux := newRouter(cfg)
	registerCorpseGame(ctx, cfg, "/corpse", mux, store, nil)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestServeStaticPages(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", string(body))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	_, body = get(t, srv.URL+"/version")
	assert.Equal(t, "corpse v"+releaseVersion+"\n", string(body))

	resp, body = get(t, srv.URL+"/robots.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "User-agent: GPTBot")
}

func TestPrefixedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/games"

	srv, _ := newTestServer(t, cfg)

	resp, _ := get(t, srv.URL+"/games/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/games/corpse")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, `^/games/corpse/[A-Za-z0-9]{8}$`, resp.Header.Get("Location"))
}

func TestNewGameRedirect(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, _ := get(t, srv.URL+"/corpse")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, `^/corpse/[A-Za-z0-9]{8}$`, resp.Header.Get("Location"))
}

func TestServeStatusOfUnstartedGame(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/corpse/abcd1234")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status hubStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "abcd1234", status.GameID)
	assert.Equal(t, game.PhaseLobby, status.Phase)
	assert.Empty(t, status.Players)
}

func TestRejectsInvalidGameIDs(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	for _, path := range []string{"/corpse/bad-id", "/corpse/bad-id/qr", "/corpse/bad-id/gallery", "/corpse/bad-id/ws"} {
		resp, _ := get(t, srv.URL+path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestServeQR(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/corpse/abcd1234/qr")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestServeGallery(t *testing.T) {
	srv, store := newTestServer(t, testConfig())

	_, body := get(t, srv.URL+"/corpse/abcd1234/gallery")
	assert.JSONEq(t, `[]`, string(body))

	require.NoError(t, store.Save(context.Background(), gallery.Record{
		GameID:     "abcd1234",
		FinishedAt: time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC),
		Players:    []game.Player{{Slot: 0, IdentityKey: "key-0", DisplayName: "Ada", IsHost: true}},
		Chains:     [][]game.ChainItem{{{Kind: game.KindText, Content: "a cat", OwnerSlot: 0}}},
	}))

	resp, body := get(t, srv.URL+"/corpse/abcd1234/gallery")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var records []gallery.Record
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "a cat", records[0].Chains[0][0].Content)
}

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/corpse/" + gameID + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		var e wireEvent
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == typ {
			return e
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	host := dial(t, srv, "abcd1234")

	var info SessionInfoPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, "sessionInfo").Payload, &info))
	assert.Equal(t, "abcd1234", info.GameID)
	assert.NotEmpty(t, info.ConnID)
	assert.Equal(t, game.PhaseLobby, info.Phase)

	require.NoError(t, host.WriteJSON(map[string]any{"type": "addPlayer", "identityKey": "0xhost", "displayName": "Host"}))

	var joined game.JoinedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, "joined").Payload, &joined))
	assert.Equal(t, 0, joined.Player.Slot)
	assert.True(t, joined.Player.IsHost)

	guest := dial(t, srv, "abcd1234")
	readUntil(t, guest, "sessionInfo")
	require.NoError(t, guest.WriteJSON(map[string]any{"type": "addPlayer", "identityKey": "0xhost"}))

	var rejected RejectedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, "rejected").Payload, &rejected))
	assert.Equal(t, "DUPLICATE_IDENTITY", rejected.Code)

	require.NoError(t, guest.WriteMessage(websocket.TextMessage, []byte("{oops")))
	require.NoError(t, json.Unmarshal(readUntil(t, guest, "rejected").Payload, &rejected))
	assert.Equal(t, "INVALID_MESSAGE", rejected.Code)

	require.NoError(t, guest.WriteJSON(map[string]any{"type": "addPlayer", "identityKey": "0xguest"}))
	readUntil(t, guest, "joined")

	require.NoError(t, host.WriteJSON(map[string]any{"type": "startGame"}))

	var phase game.PhasePayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, "phasePromptStarted").Payload, &phase))
	assert.Equal(t, game.PhasePromptCollection, phase.Phase)
	assert.Equal(t, 2, phase.Seats)

	resp, body := get(t, srv.URL+"/corpse/abcd1234")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status hubStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, game.PhasePromptCollection, status.Phase)
	assert.Equal(t, 2, status.Connected)
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.messageRate = 0.001
	cfg.messageBurst = 1

	srv, _ := newTestServer(t, cfg)

	conn := dial(t, srv, "abcd1234")
	readUntil(t, conn, "sessionInfo")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "getRoster"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "getRoster"}))

	var rejected RejectedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "rejected").Payload, &rejected))
	assert.Equal(t, "RATE_LIMITED", rejected.Code)
}
