/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package gallery archives finished games so their chains can be browsed
// after the session has moved on.
package gallery

import (
	"context"
	"time"

	"github.com/Seednode/corpse/game"
)

type Record struct {
	GameID     string             `json:"gameId"`
	FinishedAt time.Time          `json:"finishedAt"`
	Players    []game.Player      `json:"players"`
	Chains     [][]game.ChainItem `json:"chains"`
}

type Store interface {
	Save(ctx context.Context, r Record) error
	// List returns the records of gameID, oldest first.
	List(ctx context.Context, gameID string) ([]Record, error)
	Close() error
}
