/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "sort"

type LeaderboardEntry struct {
	IdentityKey string `json:"identityKey"`
	Likes       int    `json:"likes"`
}

// Leaderboard tallies likes per identity key. Entries keep insertion order so
// ties sort by who joined first.
type Leaderboard struct {
	entries []LeaderboardEntry

	// voters and total count likes cast in the current results phase.
	voters map[int]bool
	total  int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{voters: make(map[int]bool)}
}

func (l *Leaderboard) Add(identityKey string) {
	for _, e := range l.entries {
		if e.IdentityKey == identityKey {
			return
		}
	}

	l.entries = append(l.entries, LeaderboardEntry{IdentityKey: identityKey})
}

func (l *Leaderboard) Remove(identityKey string) {
	for i, e := range l.entries {
		if e.IdentityKey == identityKey {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Like credits identityKey with one like from voter and returns the number of
// likes cast so far in this results phase.
func (l *Leaderboard) Like(voter int, identityKey string) (int, error) {
	if l.voters[voter] {
		return l.total, ErrAlreadyLiked
	}

	idx := -1
	for i, e := range l.entries {
		if e.IdentityKey == identityKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return l.total, ErrUnknownSlot
	}

	l.entries[idx].Likes++
	l.voters[voter] = true
	l.total++

	return l.total, nil
}

// Total returns the likes cast so far in this results phase.
func (l *Leaderboard) Total() int {
	return l.total
}

// Reset zeroes every tally and forgets who voted. Entries stay.
func (l *Leaderboard) Reset() {
	for i := range l.entries {
		l.entries[i].Likes = 0
	}

	l.voters = make(map[int]bool)
	l.total = 0
}

// Snapshot returns the entries sorted by likes, highest first.
func (l *Leaderboard) Snapshot() []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(l.entries))
	copy(out, l.entries)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Likes > out[j].Likes
	})

	return out
}
