// Package engine implements the rules of the single-player trick-taking game.
//
// Everything here is a pure function of its inputs: dealing, legality and bot
// decisions draw randomness only from an explicitly seeded Rand, so any round can
// be reproduced from (session seed, round, player).
package engine

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

// Rand is a small deterministic xorshift64 generator.
type Rand struct {
	state uint64
}

// NewRand returns a generator seeded with seed. A zero seed is corrected to 1
// because xorshift cannot leave the all-zero state.
func NewRand(seed uint64) *Rand {
	if seed == 0 {
		seed = 1
	}
	return &Rand{state: seed}
}

// Uint64 returns the next raw value.
func (r *Rand) Uint64() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return x
}

// Intn returns a value in [0, n). n <= 0 returns 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// splitmix64 finalizer, used to decorrelate derived seeds.
func mix(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// DeriveSeed combines a session seed with a round, a player position and a salt
// (e.g. trick number) into an independent generator seed.
func DeriveSeed(sessionSeed int64, round, player, salt int) uint64 {
	h := mix(uint64(sessionSeed))
	h = mix(h ^ uint64(round))
	h = mix(h ^ uint64(player+1)<<20)
	h = mix(h ^ uint64(salt+1)<<40)
	return h
}

// ---------------------------------------------------------------------------
// Deck and Deal
// ---------------------------------------------------------------------------

// NewDeck returns the 52 cards in suit-major order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for r := RankTwo; r <= RankAce; r++ {
			deck = append(deck, NewCard(s, r))
		}
	}
	return deck
}

// Shuffle performs an in-place Fisher-Yates shuffle.
func Shuffle(deck []Card, rng *Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// Deal is the outcome of dealing one round.
type Deal struct {
	Round     int               `json:"roundNo"`
	DealerID  string            `json:"dealerId"`
	LeaderID  string            `json:"leaderId"`
	Order     []string          `json:"order"`
	Trump     Suit              `json:"trump"`
	TrumpCard Card              `json:"trumpCard"`
	Hands     map[string][]Card `json:"hands"`
}

// ErrPlayerCount is returned when the seat count is outside the rules.
var ErrPlayerCount = errors.New("unsupported number of players")

// DealRound shuffles a fresh deck with a generator derived from (seed, round),
// deals TricksForRound cards to every player starting left of the dealer and turns
// the next card up to fix trump.
func (r Rules) DealRound(seed int64, round int, order []string, dealerID string) (Deal, error) {
	n := len(order)
	if n < r.MinPlayers || n > r.MaxPlayers {
		return Deal{}, fmt.Errorf("%w: %d (want %d-%d)", ErrPlayerCount, n, r.MinPlayers, r.MaxPlayers)
	}
	dealerIdx := indexOfID(order, dealerID)
	if dealerIdx < 0 {
		return Deal{}, fmt.Errorf("dealer %q is not seated", dealerID)
	}
	if round < 1 || round > r.Rounds {
		return Deal{}, fmt.Errorf("round %d out of range 1-%d", round, r.Rounds)
	}

	deck := NewDeck()
	Shuffle(deck, NewRand(DeriveSeed(seed, round, -1, 0)))

	size := r.TricksForRound(round, n)
	hands := make(map[string][]Card, n)
	next := 0
	for c := 0; c < size; c++ {
		for k := 1; k <= n; k++ {
			id := order[(dealerIdx+k)%n]
			hands[id] = append(hands[id], deck[next])
			next++
		}
	}
	trumpCard := deck[next]

	return Deal{
		Round:     round,
		DealerID:  dealerID,
		LeaderID:  order[(dealerIdx+1)%n],
		Order:     append([]string(nil), order...),
		Trump:     trumpCard.Suit,
		TrumpCard: trumpCard,
		Hands:     hands,
	}, nil
}

// DealRound applies DefaultRules.
func DealRound(seed int64, round int, order []string, dealerID string) (Deal, error) {
	return DefaultRules().DealRound(seed, round, order, dealerID)
}

// DealerForRound rotates the deal one seat per round starting from first.
func DealerForRound(order []string, first string, round int) string {
	idx := indexOfID(order, first)
	if idx < 0 || len(order) == 0 {
		return ""
	}
	return order[(idx+round-1)%len(order)]
}

// NextSeat returns the player seated after id, wrapping around.
func NextSeat(order []string, id string) string {
	idx := indexOfID(order, id)
	if idx < 0 {
		return ""
	}
	return order[(idx+1)%len(order)]
}

// SeatIndex returns the position of id in order, or -1.
func SeatIndex(order []string, id string) int { return indexOfID(order, id) }

func indexOfID(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
