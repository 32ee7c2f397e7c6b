package engine

// BaseScore is the flat award for hitting (or penalty for missing) a bid.
const BaseScore = 5

// RoundDelta returns the score change for one player in one round:
// +(5+bid) when the bid was made exactly, -(5+bid) otherwise.
func RoundDelta(bid int, made bool) int {
	if made {
		return BaseScore + bid
	}
	return -(BaseScore + bid)
}

// MadeBid reports whether a player who bid bid and took tricks tricks made it.
func MadeBid(bid, tricks int) bool { return bid == tricks }
