/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "errors"

var (
	ErrDuplicateIdentity = errors.New("identity key already in use")
	ErrAlreadyJoined     = errors.New("connection already has a seat")
	ErrMissingIdentity   = errors.New("identity key is required")
	ErrGameFull          = errors.New("session is full")
	ErrAlreadyStarted    = errors.New("game already started")
	ErrNotEnoughPlayers  = errors.New("not enough players to start")
	ErrNotHost           = errors.New("only the host can do that")
	ErrOutOfPhase        = errors.New("not allowed in the current phase")
	ErrUnknownSlot       = errors.New("no player holds that slot")
	ErrNotYourSlot       = errors.New("slot belongs to another player")
	ErrAlreadyLiked      = errors.New("already liked this game")
	ErrUnknownCommand    = errors.New("unknown command")
)
