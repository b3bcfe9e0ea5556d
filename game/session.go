/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package game implements the rotation engine of an exquisite corpse party
// game: players hand prompts and drawings to their neighbor every round until
// each chain has passed through every seat, then vote on the results.
package game

type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhasePromptCollection Phase = "promptCollection"
	PhaseDrawRotation     Phase = "drawRotation"
	PhaseResults          Phase = "results"
)

// minSeats is the smallest table the rotation makes sense for.
const minSeats = 2

type Settings struct {
	MinPlayers int
	MaxPlayers int
}

func DefaultSettings() Settings {
	return Settings{
		MinPlayers: 3,
		MaxPlayers: 8,
	}
}

// Session is the authoritative state of one game. It is not safe for
// concurrent use; a single dispatcher must feed it commands one at a time.
type Session struct {
	settings Settings

	phase Phase
	round int

	// seats is the player count frozen when the game starts.
	seats int

	// generation changes on every reset so late mint results can be told apart.
	generation int

	roster   *Roster
	rounds   *RoundStore
	assigned ContentMap
	board    *Leaderboard
}

func NewSession(settings Settings) *Session {
	return &Session{
		settings: settings,
		phase:    PhaseLobby,
		roster:   NewRoster(),
		rounds:   NewRoundStore(),
		board:    NewLeaderboard(),
	}
}

func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Round() int { return s.round }
func (s *Session) Seats() int { return s.seats }
func (s *Session) Generation() int { return s.generation }
func (s *Session) Players() []Player { return s.roster.Snapshot() }

func (s *Session) Leaderboard() []LeaderboardEntry {
	return s.board.Snapshot()
}

// Handle applies cmd on behalf of the connection conn.
func (s *Session) Handle(conn string, cmd Command) (Outcome, error) {
	switch c := cmd.(type) {
	case AddPlayer:
		return s.addPlayer(conn, c)
	case Disconnect:
		return s.disconnect(conn)
	case StartGame:
		return s.startGame(conn)
	case SubmitPrompt:
		return s.submitPrompt(conn, c)
	case GetRoundInfo:
		return s.getRoundInfo(conn, c)
	case SubmitRoundInfo:
		return s.submitRoundInfo(conn, c)
	case GetAllChains:
		return s.getAllChains(conn, c)
	case LikeContent:
		return s.likeContent(conn, c)
	case ResetToLobby:
		return s.resetToLobby(conn)
	case GetRoster:
		var out Outcome
		out.reply(conn, EventRosterUpdated, s.rosterPayload())
		out.reply(conn, EventLeaderboardUpdated, s.leaderboardPayload())
		return out, nil
	case MintCompleted:
		return s.mintCompleted(c)
	default:
		return Outcome{}, ErrUnknownCommand
	}
}

// Missing lists the seats that have not submitted for the round being
// collected.
func (s *Session) Missing() []int {
	switch s.phase {
	case PhasePromptCollection, PhaseDrawRotation:
		return s.rounds.Missing(s.round, s.seats)
	default:
		return nil
	}
}

// Chains returns every chain, indexed by the slot it started from. It is only
// available once the game has finished.
func (s *Session) Chains() [][]ChainItem {
	if s.phase != PhaseResults {
		return nil
	}

	chains := make([][]ChainItem, 0, s.seats)
	for origin := 0; origin < s.seats; origin++ {
		chains = append(chains, s.chain(origin))
	}

	return chains
}

func (s *Session) addPlayer(conn string, c AddPlayer) (Outcome, error) {
	var out Outcome

	if s.phase != PhaseLobby {
		return out, ErrAlreadyStarted
	}

	if s.settings.MaxPlayers > 0 && s.roster.Len() >= s.settings.MaxPlayers {
		return out, ErrGameFull
	}

	p, err := s.roster.Add(conn, c.IdentityKey, c.DisplayName, c.AvatarRef)
	if err != nil {
		return out, err
	}
	s.board.Add(p.IdentityKey)

	out.reply(conn, EventJoined, JoinedPayload{Player: *p})
	s.broadcastRoster(&out)

	return out, nil
}

func (s *Session) disconnect(conn string) (Outcome, error) {
	var out Outcome

	p, err := s.roster.Remove(conn)
	if err != nil {
		return out, err
	}
	s.board.Remove(p.IdentityKey)

	switch {
	case p.IsHost:
		inGame := s.phase != PhaseLobby
		s.reset()
		if inGame {
			out.broadcast(EventBackToLobby, s.phasePayload())
		}
	case s.phase == PhaseLobby:
		s.roster.Compact()
	}

	s.broadcastRoster(&out)

	return out, nil
}

func (s *Session) startGame(conn string) (Outcome, error) {
	var out Outcome

	if !s.isHost(conn) {
		return out, ErrNotHost
	}

	if s.phase != PhaseLobby {
		return out, ErrAlreadyStarted
	}

	n := s.roster.Len()
	if n < minSeats || n < s.settings.MinPlayers {
		return out, ErrNotEnoughPlayers
	}

	s.seats = n
	s.round = 0
	s.rounds.Clear()
	s.assigned = nil
	s.phase = PhasePromptCollection

	out.broadcast(EventPromptStarted, s.phasePayload())

	return out, nil
}

func (s *Session) submitPrompt(conn string, c SubmitPrompt) (Outcome, error) {
	var out Outcome

	if s.phase != PhasePromptCollection {
		return out, ErrOutOfPhase
	}

	if err := s.actsFor(conn, c.Slot); err != nil {
		return out, err
	}

	if s.rounds.Put(0, c.Slot, c.Content) < s.seats {
		return out, nil
	}

	s.advance(&out)

	return out, nil
}

func (s *Session) getRoundInfo(conn string, c GetRoundInfo) (Outcome, error) {
	var out Outcome

	if s.phase != PhaseDrawRotation {
		return out, ErrOutOfPhase
	}

	content, ok := s.assigned[c.Slot]
	if !ok {
		return out, ErrUnknownSlot
	}

	out.reply(conn, EventRoundInfo, RoundInfoPayload{
		Round:   s.round,
		Kind:    contentKind(s.round - 1),
		Produce: contentKind(s.round),
		Content: content,
	})

	return out, nil
}

func (s *Session) submitRoundInfo(conn string, c SubmitRoundInfo) (Outcome, error) {
	var out Outcome

	if s.phase != PhaseDrawRotation {
		return out, ErrOutOfPhase
	}

	if err := s.actsFor(conn, c.Slot); err != nil {
		return out, err
	}

	if s.rounds.Put(s.round, c.Slot, c.Content) < s.seats {
		return out, nil
	}

	if s.round+1 == s.seats {
		s.phase = PhaseResults
		s.assigned = nil
		out.broadcast(EventGameFinished, s.phasePayload())

		return out, nil
	}

	s.advance(&out)

	return out, nil
}

// advance rotates the sealed current round into the next one.
func (s *Session) advance(out *Outcome) {
	s.assigned = Rotate(s.rounds.Round(s.round))
	s.round++
	s.phase = PhaseDrawRotation

	out.broadcast(EventRoundAdvanced, s.phasePayload())
}

func (s *Session) getAllChains(conn string, c GetAllChains) (Outcome, error) {
	var out Outcome

	if s.phase != PhaseResults {
		return out, ErrOutOfPhase
	}

	if !s.seated(c.Slot) {
		return out, ErrUnknownSlot
	}

	offset := c.RotationOffset
	if offset < 0 {
		offset = 0
	}
	offset %= s.seats

	origin := (c.Slot + offset) % s.seats
	next := offset + 1

	out.reply(conn, EventAllChains, AllChainsPayload{
		Items:      s.chain(origin),
		NextOffset: next,
		Done:       next >= s.seats,
	})

	return out, nil
}

func (s *Session) chain(origin int) []ChainItem {
	items := make([]ChainItem, 0, s.rounds.Len())
	for i := 0; i < s.rounds.Len(); i++ {
		owner := chainOwner(origin, i, s.seats)
		content, _ := s.rounds.Get(i, owner)
		items = append(items, ChainItem{
			Kind:      contentKind(i),
			Content:   content,
			OwnerSlot: owner,
		})
	}

	return items
}

func (s *Session) likeContent(conn string, c LikeContent) (Outcome, error) {
	var out Outcome

	if s.phase != PhaseResults {
		return out, ErrOutOfPhase
	}

	if err := s.actsFor(conn, c.VoterSlot); err != nil {
		return out, err
	}

	target, ok := s.roster.BySlot(c.TargetSlot)
	if !ok {
		return out, ErrUnknownSlot
	}

	round := likedRound(c.VoterSlot, c.TargetSlot, s.seats)
	content, _ := s.rounds.Get(round, c.TargetSlot)

	total, err := s.board.Like(c.VoterSlot, target.IdentityKey)
	if err != nil {
		return out, err
	}

	out.broadcast(EventLeaderboardUpdated, s.leaderboardPayload())
	out.broadcast(EventRoundLiked, LikedPayload{TotalLikesSoFar: total})
	if total == s.roster.Len() {
		out.broadcast(EventLikingComplete, LikedPayload{TotalLikesSoFar: total})
	}

	out.Mint = &MintRequest{
		Generation:  s.generation,
		TargetSlot:  c.TargetSlot,
		IdentityKey: target.IdentityKey,
		Kind:        contentKind(round),
		Content:     content,
	}

	return out, nil
}

func (s *Session) resetToLobby(conn string) (Outcome, error) {
	var out Outcome

	if !s.isHost(conn) {
		return out, ErrNotHost
	}

	s.reset()

	out.broadcast(EventBackToLobby, s.phasePayload())
	s.broadcastRoster(&out)

	return out, nil
}

func (s *Session) mintCompleted(c MintCompleted) (Outcome, error) {
	var out Outcome

	if c.Generation != s.generation {
		return out, nil
	}

	out.broadcast(EventBestContentMinted, MintedPayload{
		TargetSlot: c.TargetSlot,
		MintURL:    c.URL,
	})

	return out, nil
}

// reset returns to an un-started lobby. Players keep their seats.
func (s *Session) reset() {
	s.phase = PhaseLobby
	s.round = 0
	s.seats = 0
	s.assigned = nil
	s.rounds.Clear()
	s.board.Reset()
	s.roster.Compact()
	s.generation++
}

func (s *Session) isHost(conn string) bool {
	p, ok := s.roster.ByConn(conn)

	return ok && p.IsHost
}

func (s *Session) seated(slot int) bool {
	return slot >= 0 && slot < s.seats
}

// actsFor checks that conn holds slot. An empty conn is the server acting
// for a seat, e.g. filling it when a round times out.
func (s *Session) actsFor(conn string, slot int) error {
	if !s.seated(slot) {
		return ErrUnknownSlot
	}

	if conn == "" {
		return nil
	}

	p, ok := s.roster.ByConn(conn)
	if !ok || p.Slot != slot {
		return ErrNotYourSlot
	}

	return nil
}

func (s *Session) broadcastRoster(out *Outcome) {
	out.broadcast(EventRosterUpdated, s.rosterPayload())
	out.broadcast(EventLeaderboardUpdated, s.leaderboardPayload())
}

func (s *Session) rosterPayload() RosterPayload {
	return RosterPayload{Players: s.roster.Snapshot()}
}

func (s *Session) leaderboardPayload() LeaderboardPayload {
	return LeaderboardPayload{Entries: s.board.Snapshot()}
}

func (s *Session) phasePayload() PhasePayload {
	return PhasePayload{
		Phase: s.phase,
		Round: s.round,
		Seats: s.seats,
	}
}
