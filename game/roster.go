/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Player is a seated participant. Conn is the opaque connection reference
// supplied by the transport.
type Player struct {
	Slot        int    `json:"slot"`
	IdentityKey string `json:"identityKey"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	IsHost      bool   `json:"isHost"`
	Conn        string `json:"-"`
}

// Roster keeps players in join order.
type Roster struct {
	players  []*Player
	nextSlot int
}

func NewRoster() *Roster {
	return &Roster{}
}

func (r *Roster) Len() int {
	return len(r.players)
}

// Add seats a new player at the next free slot. The first player becomes host.
func (r *Roster) Add(conn, identityKey, displayName, avatarRef string) (*Player, error) {
	if identityKey == "" {
		return nil, ErrMissingIdentity
	}

	for _, p := range r.players {
		if p.IdentityKey == identityKey {
			return nil, ErrDuplicateIdentity
		}
		if p.Conn == conn {
			return nil, ErrAlreadyJoined
		}
	}

	p := &Player{
		Slot:        r.nextSlot,
		IdentityKey: identityKey,
		DisplayName: displayName,
		AvatarRef:   avatarRef,
		IsHost:      len(r.players) == 0,
		Conn:        conn,
	}
	r.nextSlot++
	r.players = append(r.players, p)

	return p, nil
}

// Remove drops the player owning conn and returns it.
func (r *Roster) Remove(conn string) (*Player, error) {
	for i, p := range r.players {
		if p.Conn != conn {
			continue
		}

		r.players = append(r.players[:i], r.players[i+1:]...)

		return p, nil
	}

	return nil, ErrUnknownSlot
}

func (r *Roster) ByConn(conn string) (*Player, bool) {
	for _, p := range r.players {
		if p.Conn == conn {
			return p, true
		}
	}

	return nil, false
}

func (r *Roster) BySlot(slot int) (*Player, bool) {
	for _, p := range r.players {
		if p.Slot == slot {
			return p, true
		}
	}

	return nil, false
}

func (r *Roster) Host() (*Player, bool) {
	for _, p := range r.players {
		if p.IsHost {
			return p, true
		}
	}

	return nil, false
}

// Compact reassigns slots 0..n-1 in join order and makes sure exactly one
// player is host. Only valid while no game is running. Clients learn their
// new slot from the rosterUpdated broadcast that follows.
func (r *Roster) Compact() {
	hasHost := false
	for i, p := range r.players {
		p.Slot = i
		if p.IsHost {
			if hasHost {
				p.IsHost = false
			}
			hasHost = true
		}
	}

	if !hasHost && len(r.players) > 0 {
		r.players[0].IsHost = true
	}

	r.nextSlot = len(r.players)
}

// Snapshot returns copies of every player, in join order.
func (r *Roster) Snapshot() []Player {
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}

	return out
}
