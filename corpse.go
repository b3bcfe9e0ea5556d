/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Exquisite corpse
//
// Every player writes a prompt. Each round the table passes its work one seat
// along and answers what it was handed: prompts become drawings, drawings
// become captions, and so on until every chain has visited every seat. At
// the end the chains are revealed and players like their favorite piece,
// which is sent off to be minted on behalf of its author.
//
// Features:
// - WebSockets per game ID: /corpse/:gameid/ws
// - One dispatcher goroutine per game, commands are applied one at a time
// - The first player to join hosts; only the host can start or reset a game
// - Optional round timeout fills in missing submissions
// - Finished games are archived to an in-memory or redis-backed gallery
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - QR code of the join URL, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/Seednode/corpse/gallery"
	"github.com/Seednode/corpse/game"
	"github.com/Seednode/corpse/mint"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Drawings arrive as data URLs.
	maxMessageSize = 2 << 20

	sendBufferSize = 64
	archiveTimeout = 10 * time.Second
	gameIDLength   = 8
	maxGameID      = 32
)

const gameIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Minter turns liked content into an artifact owned by owner.
type Minter interface {
	Mint(ctx context.Context, owner, kind, payload string) (string, error)
}

type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan any
	limiter *rate.Limiter
}

func newClient(cfg *Config, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan any, sendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.messageRate), cfg.messageBurst),
	}
}

// inbound is a command waiting for the dispatcher. A non-nil err is rejected
// without reaching the session.
type inbound struct {
	connID string
	cmd    game.Command
	err    error
}

// deadline identifies the round a timer was armed for.
type deadline struct {
	generation int
	round      int
}

type hubStatus struct {
	GameID     string        `json:"gameId"`
	Phase      game.Phase    `json:"phase"`
	Round      int           `json:"round"`
	Seats      int           `json:"seats"`
	Players    []game.Player `json:"players"`
	Connected  int           `json:"connected"`
	CreatedAt  time.Time     `json:"createdAt"`
	LastActive time.Time     `json:"lastActive"`
}

type hubSettings struct {
	session        game.Settings
	roundTimeout   time.Duration
	timeoutContent string
}

func newHubSettings(cfg *Config) hubSettings {
	return hubSettings{
		session: game.Settings{
			MinPlayers: cfg.minPlayers,
			MaxPlayers: cfg.maxPlayers,
		},
		roundTimeout:   cfg.roundTimeout,
		timeoutContent: cfg.timeoutContent,
	}
}

// Hub owns one game. Only run touches session and clients.
type Hub struct {
	id       string
	settings hubSettings
	session  *game.Session
	clients  map[string]*Client

	register  chan *Client
	unreg     chan *Client
	inbox     chan inbound
	deadlines chan deadline
	status    chan chan hubStatus

	minter Minter
	store  gallery.Store
	timer  *time.Timer
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         deadlock.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newHub(ctx context.Context, gameID string, settings hubSettings, minter Minter, store gallery.Store) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	now := time.Now()

	return &Hub{
		id:         gameID,
		settings:   settings,
		session:    game.NewSession(settings.session),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbox:      make(chan inbound, 16),
		deadlines:  make(chan deadline),
		status:     make(chan chan hubStatus),
		minter:     minter,
		store:      store,
		log:        log.With().Str("game", gameID).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run() {
	defer h.shutdown()

	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.touch()
			h.clients[c.id] = c
			h.log.Debug().Str("conn", c.id).Msg("client connected")

			h.sendTo(c, game.Event{Type: msgSessionInfo, Payload: h.sessionInfo(c.id)})

		case c := <-h.unreg:
			h.touch()
			h.drop(c)
			h.log.Debug().Str("conn", c.id).Msg("client disconnected")

			h.dispatch(c.id, game.Disconnect{})

		case in := <-h.inbox:
			h.touch()
			if in.err != nil {
				h.reject(in.connID, in.err)
				continue
			}

			h.dispatch(in.connID, in.cmd)

		case d := <-h.deadlines:
			h.expire(d)

		case reply := <-h.status:
			reply <- h.snapshot()
		}
	}
}

// join hands c to the dispatcher. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) post(in inbound) bool {
	if h.ctx.Err() != nil {
		return false
	}

	select {
	case h.inbox <- in:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) report() (hubStatus, bool) {
	reply := make(chan hubStatus, 1)

	select {
	case h.status <- reply:
		return <-reply, true
	case <-h.ctx.Done():
		return hubStatus{}, false
	}
}

// dispatch applies cmd and carries out everything the outcome asks for.
func (h *Hub) dispatch(connID string, cmd game.Command) {
	out, err := h.session.Handle(connID, cmd)
	if err != nil {
		h.reject(connID, err)

		return
	}

	h.deliver(out.Events)

	if out.Mint != nil && h.minter != nil {
		go h.mint(*out.Mint)
	}

	for _, e := range out.Events {
		switch e.Type {
		case game.EventPromptStarted, game.EventRoundAdvanced:
			h.log.Info().Int("round", h.session.Round()).Int("seats", h.session.Seats()).Msg("round started")
			h.armDeadline()
		case game.EventGameFinished:
			h.log.Info().Int("seats", h.session.Seats()).Msg("game finished")
			h.stopDeadline()
			h.archive()
		case game.EventBackToLobby:
			h.log.Info().Msg("back to lobby")
			h.stopDeadline()
		case game.EventJoined:
			h.log.Info().Str("conn", connID).Msg("player joined")
		}
	}
}

func (h *Hub) reject(connID string, err error) {
	h.log.Debug().Err(err).Str("conn", connID).Msg("command rejected")

	if c, ok := h.clients[connID]; ok {
		h.sendTo(c, rejection(err))
	}
}

func (h *Hub) deliver(events []game.Event) {
	for _, e := range events {
		if e.Broadcast() {
			for _, c := range h.clients {
				h.sendTo(c, e)
			}

			continue
		}

		if c, ok := h.clients[e.To]; ok {
			h.sendTo(c, e)
		}
	}
}

// sendTo queues msg for c, dropping c if it has fallen too far behind.
func (h *Hub) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn().Str("conn", c.id).Msg("dropping slow client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *Hub) shutdown() {
	h.stopDeadline()

	for _, c := range h.clients {
		h.drop(c)
	}

	h.log.Info().Msg("game closed")
}

func (h *Hub) mint(req game.MintRequest) {
	url, err := h.minter.Mint(h.ctx, req.IdentityKey, string(req.Kind), req.Content)
	switch {
	case errors.Is(err, mint.ErrDisabled):
		return
	case err != nil:
		h.log.Warn().Err(err).Int("slot", req.TargetSlot).Msg("mint failed")

		return
	}

	h.post(inbound{cmd: game.MintCompleted{
		Generation: req.Generation,
		TargetSlot: req.TargetSlot,
		URL:        url,
	}})
}

func (h *Hub) armDeadline() {
	h.stopDeadline()

	if h.settings.roundTimeout <= 0 {
		return
	}

	d := deadline{generation: h.session.Generation(), round: h.session.Round()}

	h.timer = time.AfterFunc(h.settings.roundTimeout, func() {
		select {
		case h.deadlines <- d:
		case <-h.ctx.Done():
		}
	})
}

func (h *Hub) stopDeadline() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// expire fills in every missing submission of the round d was armed for.
func (h *Hub) expire(d deadline) {
	if d.generation != h.session.Generation() || d.round != h.session.Round() {
		return
	}

	phase := h.session.Phase()
	missing := h.session.Missing()
	if len(missing) == 0 {
		return
	}

	h.log.Info().Int("round", d.round).Ints("slots", missing).Msg("round timed out")

	for _, slot := range missing {
		var cmd game.Command = game.SubmitRoundInfo{Slot: slot, Content: h.settings.timeoutContent}
		if phase == game.PhasePromptCollection {
			cmd = game.SubmitPrompt{Slot: slot, Content: h.settings.timeoutContent}
		}

		h.dispatch("", cmd)
	}
}

func (h *Hub) archive() {
	if h.store == nil {
		return
	}

	rec := gallery.Record{
		GameID:     h.id,
		FinishedAt: time.Now().UTC(),
		Players:    h.session.Players(),
		Chains:     h.session.Chains(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if err := h.store.Save(ctx, rec); err != nil {
			h.log.Warn().Err(err).Msg("failed to archive game")
		}
	}()
}

func (h *Hub) sessionInfo(connID string) SessionInfoPayload {
	return SessionInfoPayload{
		GameID:      h.id,
		ConnID:      connID,
		Phase:       h.session.Phase(),
		Round:       h.session.Round(),
		Seats:       h.session.Seats(),
		Players:     h.session.Players(),
		Leaderboard: h.session.Leaderboard(),
	}
}

func (h *Hub) snapshot() hubStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return hubStatus{
		GameID:     h.id,
		Phase:      h.session.Phase(),
		Round:      h.session.Round(),
		Seats:      h.session.Seats(),
		Players:    h.session.Players(),
		Connected:  len(h.clients),
		CreatedAt:  h.createdAt,
		LastActive: h.lastActive,
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameManager holds a set of hubs keyed by game ID, so each /corpse/:gameid
// is its own isolated session.
type GameManager struct {
	mu          deadlock.Mutex
	ctx         context.Context
	hubs        map[string]*Hub
	idleTimeout time.Duration
	settings    hubSettings
	minter      Minter
	store       gallery.Store
}

func newGameManager(ctx context.Context, idleTimeout time.Duration, settings hubSettings, minter Minter, store gallery.Store) *GameManager {
	gm := &GameManager{
		ctx:         ctx,
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		settings:    settings,
		minter:      minter,
		store:       store,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.ctx, gameID, gm.settings, gm.minter, gm.store)
	gm.hubs[gameID] = hub
	go hub.run()

	log.Debug().Str("game", gameID).Msg("game started")

	return hub
}

func (gm *GameManager) lookup(gameID string) (*Hub, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	hub, ok := gm.hubs[gameID]

	return hub, ok
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	for {
		buf := make([]byte, gameIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, gameIDLength)
		for i := range out {
			out[i] = gameIDLetters[int(buf[i])%len(gameIDLetters)]
		}
		id := string(out)

		if _, exists := gm.lookup(id); !exists {
			return id
		}
	}
}

func validGameID(id string) bool {
	if id == "" || len(id) > maxGameID {
		return false
	}

	for _, r := range id {
		if !strings.ContainsRune(gameIDLetters, r) {
			return false
		}
	}

	return true
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.ctx.Done():
			return
		case now := <-ticker.C:
			gm.reap(now.Add(-gm.idleTimeout))
		}
	}
}

// reap stops every hub idle since before cutoff and returns how many it stopped.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.cancel()
			reaped++

			log.Info().Str("game", id).Msg("reaped idle game")
		}
	}

	return reaped
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if !validGameID(gameID) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("ip", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := newClient(cfg, conn)

		if !hub.join(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("conn", c.id).Msg("websocket read failed")
			}
			return
		}

		in := inbound{connID: c.id}
		if c.limiter.Allow() {
			in.cmd, in.err = decodeMessage(data)
		} else {
			in.err = errRateLimited
		}

		if !h.post(in) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validGameID(ps.ByName("gameid")) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, v any) (int, error) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)

	return w.Write(body)
}

// serveGallery lists the archived games played under :gameid.
func serveGallery(cfg *Config, store gallery.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		gameID := ps.ByName("gameid")
		if !validGameID(gameID) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		records, err := store.List(r.Context(), gameID)
		if err != nil {
			log.Warn().Err(err).Str("game", gameID).Msg("failed to list gallery")
			http.Error(w, "gallery unavailable", http.StatusServiceUnavailable)
			return
		}

		written, err := writeJSON(cfg, w, records)
		if err != nil {
			return
		}

		log.Debug().
			Str("game", gameID).
			Str("size", humanReadableSize(int64(written))).
			Str("ip", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("served gallery")
	}
}

// serveStatus reports the state of a game without joining it.
func serveStatus(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if !validGameID(gameID) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		status := hubStatus{GameID: gameID, Phase: game.PhaseLobby, Players: []game.Player{}}
		if hub, ok := gm.lookup(gameID); ok {
			if s, running := hub.report(); running {
				status = s
			}
		}

		_, _ = writeJSON(cfg, w, status)
	}
}

// redirectNewGame handles GET /corpse by generating a new random game ID
// (with server-side collision detection) and redirecting to /corpse/:gameid.
func redirectNewGame(path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		log.Debug().Str("game", gameID).Msg("created game id")
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerCorpseGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → JSON status of that game
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
//   - $path/:gameid/gallery  → archived chains of finished games
func registerCorpseGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, store gallery.Store, minter Minter) *GameManager {
	gm := newGameManager(ctx, cfg.sessionTimeout, newHubSettings(cfg), minter, store)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg.prefix+path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveStatus(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/gallery", serveGallery(cfg, store))

	return gm
}
