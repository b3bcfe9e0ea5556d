/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// ContentKind tells clients how to render a piece of content.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// ContentMap maps a slot to the content held for that slot in one round.
type ContentMap map[int]string

// contentKind derives what a round holds from its number. Even rounds hold
// prompts and stories, odd rounds hold image references.
func contentKind(round int) ContentKind {
	if round%2 == 0 {
		return KindText
	}

	return KindImage
}

// Rotate hands every piece of content to the next slot. The content held for
// the highest slot wraps to slot 0, every other slot k moves to k+1.
//
// The map must be sealed (one entry per seat); a gap in the slots produces a
// rotation with a missing destination.
func Rotate(m ContentMap) ContentMap {
	maxSlot := -1
	for slot := range m {
		if slot > maxSlot {
			maxSlot = slot
		}
	}

	rotated := make(ContentMap, len(m))
	for slot, content := range m {
		if slot == maxSlot {
			rotated[0] = content
			continue
		}
		rotated[slot+1] = content
	}

	return rotated
}

// chainOwner returns the slot whose content belongs, in round i, to the chain
// that starts at origin.
func chainOwner(origin, round, seats int) int {
	return (origin + round) % seats
}

// likedRound returns the round in which the content a voter likes at target
// was produced, mirroring the chain offsets.
func likedRound(voter, target, seats int) int {
	d := target - voter
	if d < 0 {
		d = -d
	}

	return d % seats
}
