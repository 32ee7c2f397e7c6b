package engine

// Beats reports whether card a beats card b in a trick led with led under trump.
// Any trump beats any non-trump; otherwise only led-suit cards can win and the
// higher rank takes it.
func Beats(a, b Card, led, trump Suit) bool {
	aTrump, bTrump := a.Suit == trump, b.Suit == trump
	switch {
	case aTrump && !bTrump:
		return true
	case bTrump && !aTrump:
		return false
	case aTrump && bTrump:
		return a.Rank > b.Rank
	}
	aLed, bLed := a.Suit == led, b.Suit == led
	switch {
	case aLed && !bLed:
		return true
	case bLed && !aLed:
		return false
	case aLed && bLed:
		return a.Rank > b.Rank
	}
	return false
}

// WinningPlay returns the player who wins the trick. It depends only on the led
// suit, trump and the cards played. An empty trick has no winner.
func WinningPlay(led, trump Suit, plays []Play) string {
	if len(plays) == 0 {
		return ""
	}
	best := 0
	for i := 1; i < len(plays); i++ {
		if Beats(plays[i].Card, plays[best].Card, led, trump) {
			best = i
		}
	}
	return plays[best].PlayerID
}

// TrickWinner derives the led suit from the first play and resolves the trick.
func TrickWinner(trump Suit, plays []Play) string {
	led, ok := LedSuit(plays)
	if !ok {
		return ""
	}
	return WinningPlay(led, trump, plays)
}

// CurrentWinningCard returns the card presently winning an incomplete trick.
func CurrentWinningCard(trump Suit, plays []Play) (Card, bool) {
	led, ok := LedSuit(plays)
	if !ok {
		return Card{}, false
	}
	best := plays[0].Card
	for _, p := range plays[1:] {
		if Beats(p.Card, best, led, trump) {
			best = p.Card
		}
	}
	return best, true
}
