package engine

// LedSuit returns the suit of the first card in the trick.
func LedSuit(plays []Play) (Suit, bool) {
	if len(plays) == 0 {
		return "", false
	}
	return plays[0].Card.Suit, true
}

// LegalPlays returns the cards from hand that may be played onto the current trick.
//
//   - Following: a player holding the led suit must play it; otherwise any card.
//   - Leading: trump may not be led until it is broken, unless the hand is all trump.
func LegalPlays(hand []Card, plays []Play, trump Suit, trumpBroken bool) []Card {
	if len(hand) == 0 {
		return nil
	}
	if led, ok := LedSuit(plays); ok {
		if HasSuit(hand, led) {
			return filterSuit(hand, led, true)
		}
		return append([]Card(nil), hand...)
	}
	if trumpBroken || CountSuit(hand, trump) == len(hand) {
		return append([]Card(nil), hand...)
	}
	return filterSuit(hand, trump, false)
}

// IsLegalPlay reports whether card is in hand and allowed onto the trick.
func IsLegalPlay(hand []Card, plays []Play, trump Suit, trumpBroken bool, card Card) bool {
	return IndexOf(LegalPlays(hand, plays, trump, trumpBroken), card) >= 0
}

// BreaksTrump reports whether playing card onto plays breaks trump: a trump
// discarded onto a trick led in another suit, which is only legal when the player
// cannot follow.
func BreaksTrump(plays []Play, trump Suit, card Card) bool {
	led, ok := LedSuit(plays)
	return ok && card.Suit == trump && led != trump
}

func filterSuit(hand []Card, s Suit, keep bool) []Card {
	var out []Card
	for _, c := range hand {
		if (c.Suit == s) == keep {
			out = append(out, c)
		}
	}
	return out
}
