/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Command is an inbound request handled by Session.Handle. The set of
// commands is closed: only types in this package implement it.
type Command interface{ isCommand() }

type AddPlayer struct {
	IdentityKey string
	DisplayName string
	AvatarRef   string
}

// Disconnect is issued by the transport when a connection goes away.
type Disconnect struct{}

type StartGame struct{}

type SubmitPrompt struct {
	Slot    int
	Content string
}

type GetRoundInfo struct {
	Slot int
}

type SubmitRoundInfo struct {
	Slot    int
	Content string
}

type GetAllChains struct {
	Slot           int
	RotationOffset int
}

type LikeContent struct {
	VoterSlot  int
	TargetSlot int
}

type ResetToLobby struct{}

type GetRoster struct{}

// MintCompleted reports the result of a MintRequest. Generation must match the
// session generation the request was issued in.
type MintCompleted struct {
	Generation int
	TargetSlot int
	URL        string
}

func (AddPlayer) isCommand()       {}
func (Disconnect) isCommand()      {}
func (StartGame) isCommand()       {}
func (SubmitPrompt) isCommand()    {}
func (GetRoundInfo) isCommand()    {}
func (SubmitRoundInfo) isCommand() {}
func (GetAllChains) isCommand()    {}
func (LikeContent) isCommand()     {}
func (ResetToLobby) isCommand()    {}
func (GetRoster) isCommand()       {}
func (MintCompleted) isCommand()   {}

type EventType string

const (
	EventRosterUpdated      EventType = "rosterUpdated"
	EventLeaderboardUpdated EventType = "leaderboardUpdated"
	EventPromptStarted      EventType = "phasePromptStarted"
	EventRoundAdvanced      EventType = "phaseRoundAdvanced"
	EventGameFinished       EventType = "gameFinished"
	EventBackToLobby        EventType = "backToLobby"
	EventBestContentMinted  EventType = "bestContentMinted"
	EventRoundLiked         EventType = "roundLiked"
	EventLikingComplete     EventType = "likingComplete"

	// Sent only to the connection that asked.
	EventJoined    EventType = "joined"
	EventRoundInfo EventType = "roundInfo"
	EventAllChains EventType = "allChains"
)

// Event is an outbound message. An empty To means every connection.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
	To      string    `json:"-"`
}

func (e Event) Broadcast() bool {
	return e.To == ""
}

// MintRequest asks the caller to mint content on behalf of its owner.
type MintRequest struct {
	Generation  int
	TargetSlot  int
	IdentityKey string
	Kind        ContentKind
	Content     string
}

// Outcome is everything a handled command produced.
type Outcome struct {
	Events []Event
	Mint   *MintRequest
}

func (o *Outcome) broadcast(t EventType, payload any) {
	o.Events = append(o.Events, Event{Type: t, Payload: payload})
}

func (o *Outcome) reply(conn string, t EventType, payload any) {
	o.Events = append(o.Events, Event{Type: t, Payload: payload, To: conn})
}

type RosterPayload struct {
	Players []Player `json:"players"`
}

type LeaderboardPayload struct {
	Entries []LeaderboardEntry `json:"entries"`
}

type JoinedPayload struct {
	Player Player `json:"player"`
}

type PhasePayload struct {
	Phase Phase `json:"phase"`
	Round int   `json:"round"`
	Seats int   `json:"seats"`
}

type RoundInfoPayload struct {
	Round   int         `json:"round"`
	Kind    ContentKind `json:"kind"`
	Produce ContentKind `json:"produce"`
	Content string      `json:"content"`
}

type ChainItem struct {
	Kind      ContentKind `json:"kind"`
	Content   string      `json:"content"`
	OwnerSlot int         `json:"ownerSlot"`
}

type AllChainsPayload struct {
	Items      []ChainItem `json:"items"`
	NextOffset int         `json:"nextOffset"`
	Done       bool        `json:"done"`
}

type MintedPayload struct {
	TargetSlot int    `json:"targetSlot"`
	MintURL    string `json:"mintUrl"`
}

type LikedPayload struct {
	TotalLikesSoFar int `json:"totalLikesSoFar"`
}
