package engine

import "testing"

var allStyles = []Style{StyleCautious, StyleBalanced, StyleAggressive}

// TestBotPlayAlwaysLegal plays whole rounds with bots of every style and checks
// each card against LegalPlays.
func TestBotPlayAlwaysLegal(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		for round := 1; round <= 10; round++ {
			d, err := DealRound(seed, round, fourSeats, fourSeats[round%4])
			if err != nil {
				t.Fatal(err)
			}
			hands := d.Hands
			leader := d.LeaderID
			broken := false
			for trick := 0; trick < TricksForRound(round, 4); trick++ {
				var plays []Play
				for k := 0; k < 4; k++ {
					id := fourSeats[(SeatIndex(fourSeats, leader)+k)%4]
					style := allStyles[(k+trick)%3]
					rng := NewRand(DeriveSeed(seed, round, k, trick))
					card := BotPlay(hands[id], PlayContext{
						Trump:       d.Trump,
						TrumpBroken: broken,
						Plays:       plays,
						Bid:         1,
						TricksWon:   0,
						Style:       style,
					}, rng)
					if !IsLegalPlay(hands[id], plays, d.Trump, broken, card) {
						t.Fatalf("seed %d round %d trick %d: %s (%s) played illegal %v from %v",
							seed, round, trick, id, style, card, hands[id])
					}
					if BreaksTrump(plays, d.Trump, card) {
						broken = true
					}
					plays = append(plays, Play{PlayerID: id, Card: card})
					hands[id] = Without(hands[id], card)
				}
				leader = TrickWinner(d.Trump, plays)
			}
			for id, h := range hands {
				if len(h) != 0 {
					t.Errorf("seed %d round %d: %s still holds %v", seed, round, id, h)
				}
			}
		}
	}
}

// TestBotBidRange verifies bids stay within 0..hand size.
func TestBotBidRange(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		d, err := DealRound(seed, 1, fourSeats, "p1")
		if err != nil {
			t.Fatal(err)
		}
		for i, id := range fourSeats {
			for _, style := range allStyles {
				bid := BotBid(d.Hands[id], BidContext{Trump: d.Trump, HandSize: 10, NumPlayers: 4, Style: style},
					NewRand(DeriveSeed(seed, 1, i, 0)))
				if bid < 0 || bid > 10 {
					t.Errorf("bid %d out of range for %s", bid, style)
				}
			}
		}
	}
}

// TestBotBidStylesDiffer verifies zero and high bids appear with style-dependent
// frequency rather than uniformly.
func TestBotBidStylesDiffer(t *testing.T) {
	zeros := map[Style]int{}
	totals := map[Style]int{}
	for seed := int64(1); seed <= 400; seed++ {
		d, err := DealRound(seed, 3, fourSeats, "p1")
		if err != nil {
			t.Fatal(err)
		}
		hand := d.Hands["p2"]
		for _, style := range allStyles {
			bid := BotBid(hand, BidContext{Trump: d.Trump, HandSize: 8, NumPlayers: 4, Style: style},
				NewRand(DeriveSeed(seed, 3, 1, 0)))
			if bid == 0 {
				zeros[style]++
			}
			totals[style] += bid
		}
	}
	if zeros[StyleCautious] <= zeros[StyleAggressive] {
		t.Errorf("cautious zero bids %d, aggressive %d: want cautious > aggressive",
			zeros[StyleCautious], zeros[StyleAggressive])
	}
	if zeros[StyleAggressive] == 0 {
		t.Error("aggressive style never produced a zero bid")
	}
	if totals[StyleAggressive] <= totals[StyleCautious] {
		t.Errorf("aggressive total %d not above cautious %d", totals[StyleAggressive], totals[StyleCautious])
	}
}

// TestBotDeterministic verifies the same generator state yields the same choices.
func TestBotDeterministic(t *testing.T) {
	d, err := DealRound(5, 2, fourSeats, "p1")
	if err != nil {
		t.Fatal(err)
	}
	ctx := BidContext{Trump: d.Trump, HandSize: 9, NumPlayers: 4, Style: StyleBalanced}
	a := BotBid(d.Hands["p3"], ctx, NewRand(DeriveSeed(5, 2, 2, 0)))
	b := BotBid(d.Hands["p3"], ctx, NewRand(DeriveSeed(5, 2, 2, 0)))
	if a != b {
		t.Errorf("bids differ for identical seeds: %d vs %d", a, b)
	}
}

// TestBotPlayDucksWhenMade verifies a bot that has its tricks sheds a losing card.
func TestBotPlayDucksWhenMade(t *testing.T) {
	hand := cards("hearts-ace", "hearts-3", "hearts-10")
	plays := []Play{{PlayerID: "p1", Card: c("hearts-queen")}}
	got := BotPlay(hand, PlayContext{Trump: Spades, Plays: plays, Bid: 0, TricksWon: 0, Style: StyleBalanced}, NewRand(1))
	if got != c("hearts-10") {
		t.Errorf("BotPlay = %v, want hearts-10 (highest loser)", got)
	}
}

// TestBotPlayTakesWhenShort verifies a bot short of its bid wins cheaply.
func TestBotPlayTakesWhenShort(t *testing.T) {
	hand := cards("hearts-ace", "hearts-king", "hearts-3")
	plays := []Play{{PlayerID: "p1", Card: c("hearts-queen")}}
	got := BotPlay(hand, PlayContext{Trump: Spades, Plays: plays, Bid: 2, TricksWon: 0, Style: StyleCautious}, NewRand(1))
	if got != c("hearts-king") {
		t.Errorf("BotPlay = %v, want hearts-king (cheapest winner)", got)
	}
}
