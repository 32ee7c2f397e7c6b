package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Suit is one of the four French suits.
type Suit string

const (
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Hearts   Suit = "hearts"
	Spades   Suit = "spades"
)

// Suits lists every suit in deck order.
var Suits = [4]Suit{Clubs, Diamonds, Hearts, Spades}

// Valid reports whether s is one of the four suits.
func (s Suit) Valid() bool {
	switch s {
	case Clubs, Diamonds, Hearts, Spades:
		return true
	}
	return false
}

// Rank is a card rank from Two (2) to Ace (14). Aces are high.
type Rank int

const (
	RankTwo   Rank = 2
	RankThree Rank = 3
	RankFour  Rank = 4
	RankFive  Rank = 5
	RankSix   Rank = 6
	RankSeven Rank = 7
	RankEight Rank = 8
	RankNine  Rank = 9
	RankTen   Rank = 10
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
	RankAce   Rank = 14
)

// Valid reports whether r is within Two..Ace.
func (r Rank) Valid() bool { return r >= RankTwo && r <= RankAce }

var rankNames = map[Rank]string{
	RankJack:  "jack",
	RankQueen: "queen",
	RankKing:  "king",
	RankAce:   "ace",
}

// String returns "2".."10" for pip cards and the lower-case name for court cards.
func (r Rank) String() string {
	if name, ok := rankNames[r]; ok {
		return name
	}
	return strconv.Itoa(int(r))
}

// Card is a single playing card.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard constructs a Card from suit and rank.
func NewCard(suit Suit, rank Rank) Card { return Card{Suit: suit, Rank: rank} }

// Valid reports whether both suit and rank are in range.
func (c Card) Valid() bool { return c.Suit.Valid() && c.Rank.Valid() }

// IsZero reports whether c is the zero Card (no card).
func (c Card) IsZero() bool { return c == Card{} }

// String formats the card as "<suit>-<rank>", e.g. "hearts-9" or "spades-king".
func (c Card) String() string { return string(c.Suit) + "-" + c.Rank.String() }

// ParseCard parses the String form. Rank names and single letters (J, Q, K, A)
// are accepted case-insensitively.
func ParseCard(s string) (Card, error) {
	suitPart, rankPart, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	if !ok {
		return Card{}, fmt.Errorf("card %q: expected <suit>-<rank>", s)
	}
	suit := Suit(suitPart)
	if !suit.Valid() {
		return Card{}, fmt.Errorf("card %q: unknown suit %q", s, suitPart)
	}
	rank, err := parseRank(rankPart)
	if err != nil {
		return Card{}, fmt.Errorf("card %q: %w", s, err)
	}
	return NewCard(suit, rank), nil
}

func parseRank(s string) (Rank, error) {
	switch s {
	case "j", "jack":
		return RankJack, nil
	case "q", "queen":
		return RankQueen, nil
	case "k", "king":
		return RankKing, nil
	case "a", "ace":
		return RankAce, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Rank(n).Valid() {
		return 0, fmt.Errorf("unknown rank %q", s)
	}
	return Rank(n), nil
}

// UnmarshalJSON accepts both the object form {"suit":..,"rank":..} and the
// string form "hearts-9".
func (c *Card) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseCard(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type plain Card
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Card(p)
	return nil
}

// ---------------------------------------------------------------------------
// Hand helpers
// ---------------------------------------------------------------------------

// IndexOf returns the position of card in hand, or -1.
func IndexOf(hand []Card, card Card) int {
	for i, c := range hand {
		if c == card {
			return i
		}
	}
	return -1
}

// Without returns a copy of hand with the first occurrence of card removed.
func Without(hand []Card, card Card) []Card {
	out := make([]Card, 0, len(hand))
	removed := false
	for _, c := range hand {
		if !removed && c == card {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

// HasSuit reports whether hand holds at least one card of suit s.
func HasSuit(hand []Card, s Suit) bool {
	for _, c := range hand {
		if c.Suit == s {
			return true
		}
	}
	return false
}

// CountSuit returns the number of cards of suit s in hand.
func CountSuit(hand []Card, s Suit) int {
	n := 0
	for _, c := range hand {
		if c.Suit == s {
			n++
		}
	}
	return n
}

// Play is one card played into a trick.
type Play struct {
	PlayerID string `json:"playerId"`
	Card     Card   `json:"card"`
}
