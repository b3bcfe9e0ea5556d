/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Seednode/corpse/game"
)

var (
	errInvalidMessage = errors.New("invalid message")
	errRateLimited    = errors.New("too many messages, slow down")
)

// Messages coming from clients
type ClientMessage struct {
	Type           string `json:"type"`
	IdentityKey    string `json:"identityKey,omitempty"`    // addPlayer
	DisplayName    string `json:"displayName,omitempty"`    // addPlayer
	AvatarRef      string `json:"avatarRef,omitempty"`      // addPlayer
	Slot           *int   `json:"slot,omitempty"`           // submitPrompt, getRoundInfo, submitRoundInfo, getAllChains
	Content        string `json:"content,omitempty"`        // submitPrompt, submitRoundInfo
	RotationOffset int    `json:"rotationOffset,omitempty"` // getAllChains
	VoterSlot      *int   `json:"voterSlot,omitempty"`      // likeContent
	TargetSlot     *int   `json:"targetSlot,omitempty"`     // likeContent
}

// Sent only by the transport, never by the session itself.
const (
	msgSessionInfo game.EventType = "sessionInfo"
	msgRejected    game.EventType = "rejected"
)

// SessionInfoPayload is sent immediately on connect so the client can render
// whatever phase it walked into.
type SessionInfoPayload struct {
	GameID      string                  `json:"gameId"`
	ConnID      string                  `json:"connId"`
	Phase       game.Phase              `json:"phase"`
	Round       int                     `json:"round"`
	Seats       int                     `json:"seats"`
	Players     []game.Player           `json:"players"`
	Leaderboard []game.LeaderboardEntry `json:"leaderboard"`
}

type RejectedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeMessage(data []byte) (game.Command, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidMessage, err)
	}

	return msg.command()
}

func (m ClientMessage) command() (game.Command, error) {
	switch m.Type {
	case "addPlayer":
		return game.AddPlayer{
			IdentityKey: m.IdentityKey,
			DisplayName: m.DisplayName,
			AvatarRef:   m.AvatarRef,
		}, nil
	case "startGame":
		return game.StartGame{}, nil
	case "resetToLobby":
		return game.ResetToLobby{}, nil
	case "getRoster":
		return game.GetRoster{}, nil
	case "submitPrompt", "getRoundInfo", "submitRoundInfo", "getAllChains":
		if m.Slot == nil {
			return nil, fmt.Errorf("%w: %s requires a slot", errInvalidMessage, m.Type)
		}
		return m.slotCommand(*m.Slot), nil
	case "likeContent":
		if m.VoterSlot == nil || m.TargetSlot == nil {
			return nil, fmt.Errorf("%w: likeContent requires voterSlot and targetSlot", errInvalidMessage)
		}
		return game.LikeContent{VoterSlot: *m.VoterSlot, TargetSlot: *m.TargetSlot}, nil
	default:
		return nil, fmt.Errorf("%w: %q", game.ErrUnknownCommand, m.Type)
	}
}

func (m ClientMessage) slotCommand(slot int) game.Command {
	switch m.Type {
	case "submitPrompt":
		return game.SubmitPrompt{Slot: slot, Content: m.Content}
	case "getRoundInfo":
		return game.GetRoundInfo{Slot: slot}
	case "submitRoundInfo":
		return game.SubmitRoundInfo{Slot: slot, Content: m.Content}
	default:
		return game.GetAllChains{Slot: slot, RotationOffset: m.RotationOffset}
	}
}

// rejectionCode maps err to the stable code clients switch on.
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, game.ErrDuplicateIdentity):
		return "DUPLICATE_IDENTITY"
	case errors.Is(err, game.ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case errors.Is(err, game.ErrMissingIdentity):
		return "MISSING_IDENTITY"
	case errors.Is(err, game.ErrGameFull):
		return "GAME_FULL"
	case errors.Is(err, game.ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, game.ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, game.ErrOutOfPhase):
		return "OUT_OF_PHASE"
	case errors.Is(err, game.ErrUnknownSlot):
		return "UNKNOWN_SLOT"
	case errors.Is(err, game.ErrNotYourSlot):
		return "NOT_YOUR_SLOT"
	case errors.Is(err, game.ErrAlreadyLiked):
		return "ALREADY_LIKED"
	case errors.Is(err, game.ErrUnknownCommand):
		return "UNKNOWN_COMMAND"
	case errors.Is(err, errInvalidMessage):
		return "INVALID_MESSAGE"
	case errors.Is(err, errRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

func rejection(err error) game.Event {
	return game.Event{
		Type: msgRejected,
		Payload: RejectedPayload{
			Code:    rejectionCode(err),
			Message: err.Error(),
		},
	}
}
