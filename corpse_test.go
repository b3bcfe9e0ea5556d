/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Seednode/corpse/gallery"
	"github.com/Seednode/corpse/game"
)

const within = time.Second

type fakeMinter struct {
	url  string
	err  error
	gate chan struct{}
}

func (f *fakeMinter) Mint(ctx context.Context, owner, kind, payload string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return f.url, f.err
}

func testSettings() hubSettings {
	return hubSettings{session: game.Settings{MinPlayers: 2, MaxPlayers: 8}}
}

func startHub(t *testing.T, settings hubSettings, minter Minter, store gallery.Store) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := newHub(ctx, "testgame", settings, minter, store)
	go h.run()

	return h
}

func newTestClient(id string, buffer int) *Client {
	return &Client{
		id:      id,
		send:    make(chan any, buffer),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// recvEvent receives one event with a timeout so tests never hang.
func recvEvent(t *testing.T, c *Client, wait time.Duration) game.Event {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatalf("client %s outbox closed unexpectedly", c.id)
		}
		e, ok := msg.(game.Event)
		require.True(t, ok, "unexpected message %T", msg)
		return e
	case <-time.After(wait):
		t.Fatalf("client %s timed out waiting for an event", c.id)
		return game.Event{}
	}
}

// expectEvent skips events until one of type typ arrives.
func expectEvent(t *testing.T, c *Client, typ game.EventType) game.Event {
	t.Helper()

	deadline := time.Now().Add(within)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			t.Fatalf("client %s never received %s", c.id, typ)
		}

		if e := recvEvent(t, c, wait); e.Type == typ {
			return e
		}
	}
}

func expectNoEvent(t *testing.T, c *Client, typ game.EventType, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if e, ok := msg.(game.Event); ok && e.Type == typ {
				t.Fatalf("client %s received unexpected %s: %+v", c.id, typ, e.Payload)
			}
		case <-timer.C:
			return
		}
	}
}

// settle waits for the hub to finish everything queued so far, then throws
// away whatever the clients were sent.
func settle(t *testing.T, h *Hub, clients ...*Client) {
	t.Helper()

	_, ok := h.report()
	require.True(t, ok)

	for _, c := range clients {
	flush:
		for {
			select {
			case _, ok := <-c.send:
				if !ok {
					break flush
				}
			default:
				break flush
			}
		}
	}
}

func connect(t *testing.T, h *Hub, id string) *Client {
	t.Helper()

	c := newTestClient(id, 256)
	require.True(t, h.join(c))

	info := expectEvent(t, c, msgSessionInfo).Payload.(SessionInfoPayload)
	assert.Equal(t, id, info.ConnID)
	assert.Equal(t, "testgame", info.GameID)

	return c
}

func send(t *testing.T, h *Hub, c *Client, cmd game.Command) {
	t.Helper()

	require.True(t, h.post(inbound{connID: c.id, cmd: cmd}))
}

// seat connects and joins n players, returning them in slot order.
func seat(t *testing.T, h *Hub, n int) []*Client {
	t.Helper()

	clients := make([]*Client, n)
	for i := range clients {
		c := connect(t, h, fmt.Sprintf("conn-%d", i))
		send(t, h, c, game.AddPlayer{IdentityKey: fmt.Sprintf("key-%d", i), DisplayName: fmt.Sprintf("player %d", i)})

		joined := expectEvent(t, c, game.EventJoined).Payload.(game.JoinedPayload)
		require.Equal(t, i, joined.Player.Slot)

		clients[i] = c
	}

	return clients
}

func start(t *testing.T, h *Hub, clients []*Client) {
	t.Helper()

	send(t, h, clients[0], game.StartGame{})
	for _, c := range clients {
		expectEvent(t, c, game.EventPromptStarted)
	}
}

// playThrough runs a full game where every seat submits every round.
func playThrough(t *testing.T, h *Hub, clients []*Client) {
	t.Helper()

	start(t, h, clients)

	for slot, c := range clients {
		send(t, h, c, game.SubmitPrompt{Slot: slot, Content: fmt.Sprintf("prompt %d", slot)})
	}

	for round := 1; round < len(clients); round++ {
		for _, c := range clients {
			expectEvent(t, c, game.EventRoundAdvanced)
		}
		for slot, c := range clients {
			send(t, h, c, game.SubmitRoundInfo{Slot: slot, Content: fmt.Sprintf("round %d by %d", round, slot)})
		}
	}

	for _, c := range clients {
		expectEvent(t, c, game.EventGameFinished)
	}
}

func TestHubPlaysAndArchivesAGame(t *testing.T) {
	store := gallery.NewMemoryStore(0)
	h := startHub(t, testSettings(), nil, store)
	clients := seat(t, h, 3)

	playThrough(t, h, clients)

	send(t, h, clients[2], game.GetAllChains{Slot: 2})
	chains := expectEvent(t, clients[2], game.EventAllChains)
	assert.Equal(t, clients[2].id, chains.To)
	assert.Equal(t, "prompt 2", chains.Payload.(game.AllChainsPayload).Items[0].Content)

	var records []gallery.Record
	require.Eventually(t, func() bool {
		records, _ = store.List(context.Background(), "testgame")
		return len(records) == 1
	}, within, 10*time.Millisecond)

	assert.Len(t, records[0].Players, 3)
	require.Len(t, records[0].Chains, 3)
	for _, chain := range records[0].Chains {
		assert.Len(t, chain, 3)
	}
}

func TestHubRejectsOnlyTheSender(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 2)

	send(t, h, clients[1], game.StartGame{})

	rejected := expectEvent(t, clients[1], msgRejected).Payload.(RejectedPayload)
	assert.Equal(t, "NOT_HOST", rejected.Code)

	expectNoEvent(t, clients[0], msgRejected, 100*time.Millisecond)
}

func TestHubRejectsSubmissionsForAnotherSeat(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 2)
	start(t, h, clients)

	send(t, h, clients[1], game.SubmitPrompt{Slot: 0, Content: "not mine"})

	rejected := expectEvent(t, clients[1], msgRejected).Payload.(RejectedPayload)
	assert.Equal(t, "NOT_YOUR_SLOT", rejected.Code)

	send(t, h, clients[0], game.SubmitPrompt{Slot: 0, Content: "mine"})
	expectNoEvent(t, clients[0], game.EventRoundAdvanced, 100*time.Millisecond)

	send(t, h, clients[1], game.SubmitPrompt{Slot: 1, Content: "also mine"})
	expectEvent(t, clients[0], game.EventRoundAdvanced)
}

func TestHubRejectsDecodeErrors(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	c := connect(t, h, "conn-0")

	require.True(t, h.post(inbound{connID: c.id, err: errRateLimited}))

	rejected := expectEvent(t, c, msgRejected).Payload.(RejectedPayload)
	assert.Equal(t, "RATE_LIMITED", rejected.Code)
}

func TestHubRoutesRepliesToTheAsker(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 2)
	settle(t, h, clients...)

	send(t, h, clients[1], game.GetRoster{})

	roster := expectEvent(t, clients[1], game.EventRosterUpdated)
	assert.Equal(t, clients[1].id, roster.To)
	assert.Len(t, roster.Payload.(game.RosterPayload).Players, 2)
}

func TestHubBroadcastsMintedContent(t *testing.T) {
	minter := &fakeMinter{url: "https://example.com/minted/1"}
	h := startHub(t, testSettings(), minter, nil)
	clients := seat(t, h, 3)
	playThrough(t, h, clients)

	send(t, h, clients[0], game.LikeContent{VoterSlot: 0, TargetSlot: 1})

	for _, c := range clients {
		liked := expectEvent(t, c, game.EventRoundLiked).Payload.(game.LikedPayload)
		assert.Equal(t, 1, liked.TotalLikesSoFar)

		minted := expectEvent(t, c, game.EventBestContentMinted).Payload.(game.MintedPayload)
		assert.Equal(t, 1, minted.TargetSlot)
		assert.Equal(t, "https://example.com/minted/1", minted.MintURL)
	}
}

func TestHubMintFailureKeepsTheLike(t *testing.T) {
	minter := &fakeMinter{err: errors.New("chain congested")}
	h := startHub(t, testSettings(), minter, nil)
	clients := seat(t, h, 2)
	playThrough(t, h, clients)

	send(t, h, clients[1], game.LikeContent{VoterSlot: 1, TargetSlot: 0})

	board := expectEvent(t, clients[0], game.EventLeaderboardUpdated).Payload.(game.LeaderboardPayload)
	assert.Equal(t, "key-0", board.Entries[0].IdentityKey)
	assert.Equal(t, 1, board.Entries[0].Likes)

	expectNoEvent(t, clients[0], game.EventBestContentMinted, 150*time.Millisecond)
}

func TestHubDropsMintResultsFromBeforeAReset(t *testing.T) {
	minter := &fakeMinter{url: "https://example.com/late", gate: make(chan struct{})}
	h := startHub(t, testSettings(), minter, nil)
	clients := seat(t, h, 2)
	playThrough(t, h, clients)

	send(t, h, clients[1], game.LikeContent{VoterSlot: 1, TargetSlot: 0})
	expectEvent(t, clients[0], game.EventRoundLiked)

	send(t, h, clients[0], game.ResetToLobby{})
	expectEvent(t, clients[0], game.EventBackToLobby)

	close(minter.gate)

	expectNoEvent(t, clients[0], game.EventBestContentMinted, 150*time.Millisecond)
}

func TestHubRoundTimeoutFillsMissingSlots(t *testing.T) {
	settings := testSettings()
	settings.roundTimeout = 100 * time.Millisecond
	settings.timeoutContent = "(nothing)"

	h := startHub(t, settings, nil, nil)
	clients := seat(t, h, 3)
	start(t, h, clients)

	send(t, h, clients[0], game.SubmitPrompt{Slot: 0, Content: "a"})
	send(t, h, clients[1], game.SubmitPrompt{Slot: 1, Content: "b"})

	expectEvent(t, clients[0], game.EventRoundAdvanced)

	send(t, h, clients[0], game.GetRoundInfo{Slot: 0})
	info := expectEvent(t, clients[0], game.EventRoundInfo).Payload.(game.RoundInfoPayload)
	assert.Equal(t, "(nothing)", info.Content)

	// Nobody answers, so the remaining rounds time out as well.
	expectEvent(t, clients[1], game.EventGameFinished)
}

func TestHubIgnoresStaleDeadlines(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 2)
	start(t, h, clients)

	h.deadlines <- deadline{generation: 41, round: 0}

	expectNoEvent(t, clients[0], game.EventRoundAdvanced, 100*time.Millisecond)

	status, ok := h.report()
	require.True(t, ok)
	assert.Equal(t, game.PhasePromptCollection, status.Phase)
}

func TestHubDisconnectUpdatesRoster(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 3)
	settle(t, h, clients...)

	h.leave(clients[2])

	roster := expectEvent(t, clients[0], game.EventRosterUpdated).Payload.(game.RosterPayload)
	assert.Len(t, roster.Players, 2)

	_, ok := <-drain(clients[2])
	assert.False(t, ok, "departed client outbox is closed")
}

func TestHubHostDisconnectReturnsToLobby(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	clients := seat(t, h, 3)
	start(t, h, clients)

	h.leave(clients[0])

	expectEvent(t, clients[1], game.EventBackToLobby)
	roster := expectEvent(t, clients[1], game.EventRosterUpdated).Payload.(game.RosterPayload)
	require.Len(t, roster.Players, 2)
	assert.True(t, roster.Players[0].IsHost)
	assert.Equal(t, "key-1", roster.Players[0].IdentityKey)
}

func TestHubDropsSlowClients(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)

	slow := newTestClient("slow", 1)
	require.True(t, h.join(slow))

	fast := connect(t, h, "fast")
	send(t, h, fast, game.AddPlayer{IdentityKey: "k"})
	expectEvent(t, fast, game.EventJoined)

	status, ok := h.report()
	require.True(t, ok)
	assert.Equal(t, 1, status.Connected)
	assert.Len(t, status.Players, 1)

	_, ok = <-drain(slow)
	assert.False(t, ok)
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	h := startHub(t, testSettings(), nil, nil)
	c := connect(t, h, "conn-0")

	h.cancel()

	_, ok := <-drain(c)
	assert.False(t, ok)
	assert.False(t, h.join(newTestClient("late", 1)))
	assert.False(t, h.post(inbound{connID: "late", cmd: game.GetRoster{}}))
}

// drain discards buffered messages and returns the outbox once it has nothing
// left to give, so a receive reports whether it was closed.
func drain(c *Client) <-chan any {
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return c.send
			}
		case <-deadline:
			return c.send
		}
	}
}

func TestGameManagerReusesAndReapsHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gm := newGameManager(ctx, 0, testSettings(), nil, nil)

	a := gm.getHub("abcd1234")
	assert.Same(t, a, gm.getHub("abcd1234"))
	assert.NotSame(t, a, gm.getHub("efgh5678"))

	assert.Equal(t, 0, gm.reap(time.Now().Add(-time.Hour)))
	assert.Equal(t, 2, gm.reap(time.Now().Add(time.Hour)))

	_, ok := gm.lookup("abcd1234")
	assert.False(t, ok)

	select {
	case <-a.ctx.Done():
	case <-time.After(within):
		t.Fatal("reaped hub was not stopped")
	}
}

func TestNewGameID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gm := newGameManager(ctx, 0, testSettings(), nil, nil)

	id := gm.newGameID()
	assert.Len(t, id, gameIDLength)
	assert.True(t, validGameID(id))
}

func TestValidGameID(t *testing.T) {
	cases := map[string]bool{
		"abcd1234":                          true,
		"X":                                 true,
		"":                                  false,
		"bad-id":                            false,
		"../etc":                            false,
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": false,
	}

	for id, want := range cases {
		assert.Equal(t, want, validGameID(id), "%q", id)
	}
}
