package engine

import "sort"

// Style biases how a bot bids and how readily it spends trump.
type Style string

const (
	StyleCautious   Style = "cautious"
	StyleBalanced   Style = "balanced"
	StyleAggressive Style = "aggressive"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	switch s {
	case StyleCautious, StyleBalanced, StyleAggressive:
		return true
	}
	return false
}

// Tuning holds the knobs behind a Style.
type Tuning struct {
	ZeroBidChance float64 // chance of declaring zero whatever the hand holds
	HighBidChance float64 // chance of bidding one or two above the estimate
	Bias          float64 // added to the estimated trick count before rounding
	TrumpAppetite float64 // chance of ruffing when void and still short of the bid
}

// Tunings maps each style to its weights.
var Tunings = map[Style]Tuning{
	StyleCautious: {
		ZeroBidChance: 0.18,
		HighBidChance: 0.02,
		Bias:          -0.45,
		TrumpAppetite: 0.35,
	},
	StyleBalanced: {
		ZeroBidChance: 0.08,
		HighBidChance: 0.08,
		Bias:          0,
		TrumpAppetite: 0.7,
	},
	StyleAggressive: {
		ZeroBidChance: 0.03,
		HighBidChance: 0.25,
		Bias:          0.45,
		TrumpAppetite: 0.95,
	},
}

// TuningFor returns the tuning for s, falling back to balanced.
func TuningFor(s Style) Tuning {
	if t, ok := Tunings[s]; ok {
		return t
	}
	return Tunings[StyleBalanced]
}

// ---------------------------------------------------------------------------
// Bidding
// ---------------------------------------------------------------------------

// BidContext is what a bot knows when it declares a bid.
type BidContext struct {
	Trump      Suit
	HandSize   int
	NumPlayers int
	Style      Style
	BidsSoFar  []int
}

// EstimateTricks scores a hand by honours and trump length.
func EstimateTricks(hand []Card, trump Suit, numPlayers int) float64 {
	crowd := 1.0
	if numPlayers > 4 {
		crowd = 0.8
	}
	trumps := CountSuit(hand, trump)
	est := 0.0
	for _, c := range hand {
		if c.Suit == trump {
			switch c.Rank {
			case RankAce:
				est += 1.0
			case RankKing:
				est += 0.9
			case RankQueen:
				est += 0.75
			case RankJack:
				est += 0.6
			default:
				est += 0.35
			}
			continue
		}
		length := CountSuit(hand, c.Suit)
		switch c.Rank {
		case RankAce:
			est += 0.85 * crowd
		case RankKing:
			if length <= 3 {
				est += 0.55 * crowd
			} else {
				est += 0.3 * crowd
			}
		case RankQueen:
			if length <= 2 {
				est += 0.25 * crowd
			}
		}
	}
	// Long trump wins extra tricks once the other suits run out.
	if len(hand) > 0 && trumps*4 > len(hand)+4 {
		est += 0.5
	}
	return est
}

// BotBid picks a bid in 0..HandSize for hand.
func BotBid(hand []Card, ctx BidContext, rng *Rand) int {
	size := ctx.HandSize
	if size <= 0 {
		size = len(hand)
	}
	t := TuningFor(ctx.Style)
	est := EstimateTricks(hand, ctx.Trump, ctx.NumPlayers) + t.Bias
	base := int(est + 0.5)

	bid := base
	u := rng.Float64()
	switch {
	case u < t.ZeroBidChance:
		bid = 0
	case u < t.ZeroBidChance+t.HighBidChance:
		bid = base + 1 + rng.Intn(2)
	}
	return clamp(bid, 0, size)
}

// ---------------------------------------------------------------------------
// Card play
// ---------------------------------------------------------------------------

// PlayContext is what a bot knows when it must play to a trick.
type PlayContext struct {
	Trump       Suit
	TrumpBroken bool
	Plays       []Play // cards already on the table this trick
	Bid         int
	TricksWon   int
	Style       Style
}

// BotPlay returns a legal card from hand. It returns the zero Card only for an
// empty hand.
func BotPlay(hand []Card, ctx PlayContext, rng *Rand) Card {
	legal := LegalPlays(hand, ctx.Plays, ctx.Trump, ctx.TrumpBroken)
	if len(legal) == 0 {
		return Card{}
	}
	if len(legal) == 1 {
		return legal[0]
	}
	sortByStrength(legal, ctx.Trump)
	t := TuningFor(ctx.Style)
	wantTricks := ctx.TricksWon < ctx.Bid

	if len(ctx.Plays) == 0 {
		return lead(legal, ctx.Trump, wantTricks, t, rng)
	}

	led, _ := LedSuit(ctx.Plays)
	best, _ := CurrentWinningCard(ctx.Trump, ctx.Plays)
	var winners, losers []Card
	for _, c := range legal {
		if Beats(c, best, led, ctx.Trump) {
			winners = append(winners, c)
		} else {
			losers = append(losers, c)
		}
	}

	if wantTricks {
		for _, c := range winners {
			if c.Suit != ctx.Trump {
				return c
			}
		}
		if len(winners) > 0 && rng.Float64() < t.TrumpAppetite {
			return winners[0]
		}
		if len(losers) > 0 {
			return losers[0]
		}
		return winners[0]
	}

	if len(losers) > 0 {
		return losers[len(losers)-1]
	}
	return winners[0]
}

func lead(legal []Card, trump Suit, wantTricks bool, t Tuning, rng *Rand) Card {
	if !wantTricks {
		return legal[0]
	}
	var topTrump, topSide Card
	for _, c := range legal {
		if c.Suit == trump {
			topTrump = c
		} else {
			topSide = c
		}
	}
	if !topTrump.IsZero() && rng.Float64() < t.TrumpAppetite/2 {
		return topTrump
	}
	if !topSide.IsZero() {
		return topSide
	}
	return legal[len(legal)-1]
}

// sortByStrength orders cards weakest first: non-trump before trump, then by rank.
func sortByStrength(cards []Card, trump Suit) {
	sort.SliceStable(cards, func(i, j int) bool {
		ti, tj := cards[i].Suit == trump, cards[j].Suit == trump
		if ti != tj {
			return !ti
		}
		if cards[i].Rank != cards[j].Rank {
			return cards[i].Rank < cards[j].Rank
		}
		return cards[i].Suit < cards[j].Suit
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
