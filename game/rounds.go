/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// RoundStore holds one ContentMap per round, in round order.
type RoundStore struct {
	rounds []ContentMap
}

func NewRoundStore() *RoundStore {
	return &RoundStore{}
}

// Put records content for slot in round, opening rounds as needed. A later
// write for the same slot replaces the earlier one.
func (s *RoundStore) Put(round, slot int, content string) int {
	for len(s.rounds) <= round {
		s.rounds = append(s.rounds, ContentMap{})
	}

	s.rounds[round][slot] = content

	return len(s.rounds[round])
}

// Round returns the map for round, or nil if it has not been opened.
func (s *RoundStore) Round(round int) ContentMap {
	if round < 0 || round >= len(s.rounds) {
		return nil
	}

	return s.rounds[round]
}

func (s *RoundStore) Get(round, slot int) (string, bool) {
	m := s.Round(round)
	if m == nil {
		return "", false
	}

	content, ok := m[slot]

	return content, ok
}

// Sealed reports whether round holds exactly one entry per seat.
func (s *RoundStore) Sealed(round, seats int) bool {
	return seats > 0 && len(s.Round(round)) == seats
}

// Missing lists the slots in 0..seats-1 with no entry for round.
func (s *RoundStore) Missing(round, seats int) []int {
	m := s.Round(round)

	var missing []int
	for slot := 0; slot < seats; slot++ {
		if _, ok := m[slot]; !ok {
			missing = append(missing, slot)
		}
	}

	return missing
}

func (s *RoundStore) Len() int {
	return len(s.rounds)
}

func (s *RoundStore) Clear() {
	s.rounds = nil
}
