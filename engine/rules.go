package engine

// DeckSize is the number of cards in a standard deck without jokers.
const DeckSize = 52

// Rules holds the configurable round schedule.
type Rules struct {
	Rounds      int // number of rounds in a game
	MaxHandSize int // cards dealt in round 1
	MinPlayers  int
	MaxPlayers  int
}

// DefaultRules returns the standard ten-round descending schedule.
func DefaultRules() Rules {
	return Rules{
		Rounds:      10,
		MaxHandSize: 10,
		MinPlayers:  2,
		MaxPlayers:  10,
	}
}

// TricksForRound returns the hand size (and so the number of tricks) for round r
// with n players. The schedule descends by one card per round and is capped so
// that at least one card is left over to turn up as trump.
func (r Rules) TricksForRound(round, n int) int {
	if round < 1 {
		return 0
	}
	size := r.MaxHandSize - round + 1
	if n > 0 {
		if limit := (DeckSize - 1) / n; size > limit {
			size = limit
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}

// TricksForRound applies DefaultRules.
func TricksForRound(round, n int) int {
	return DefaultRules().TricksForRound(round, n)
}
