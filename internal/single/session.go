// Package single drives a single-player trick-taking session: it reads the
// live state, decides what happens next, and appends the resulting events as
// one batch per action.
package single

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/game"
	"github.com/jason-s-yu/scorecard/internal/state"
)

var (
	ErrNotYourTurn    = errors.New("single: not your turn")
	ErrWrongPhase     = errors.New("single: action not allowed in this phase")
	ErrIllegalPlay    = errors.New("single: illegal play")
	ErrInvalidBid     = errors.New("single: bid out of range")
	ErrGameInProgress = errors.New("single: scored rounds exist; archive the game first")
	ErrGameOver       = errors.New("single: no rounds left")
	ErrBadSetup       = errors.New("single: invalid setup")
)

// Log is the subset of game.Store a session reads and writes through.
type Log interface {
	State() (state.AppState, int64, error)
	AppendMany(ctx context.Context, evs []event.Event) (game.Result, error)
}

// Seat is one player at the table.
type Seat struct {
	ID    string
	Name  string
	Bot   bool
	Style engine.Style
}

// Setup describes a new session.
type Setup struct {
	Seats []Seat // table order
	Seed  int64
	// HumanID is the seat the local user plays. Empty means all bots.
	HumanID string
	// DealerID deals round 1. Defaults to the first seat.
	DealerID   string
	RosterName string
}

// Session drives one table. Methods are safe for concurrent use; each action
// reads the state and appends its batch under Mu.
type Session struct {
	log   Log
	rules engine.Rules
	lg    logrus.FieldLogger
	clock func() time.Time

	Mu     sync.Mutex
	styles map[string]engine.Style
}

// Options configures a Session.
type Options struct {
	Rules  engine.Rules
	Logger logrus.FieldLogger
	Clock  func() time.Time
	// Styles overrides the bot styles recorded on players, by player id.
	Styles map[string]engine.Style
}

// New returns a session writing through l.
func New(l Log, opts Options) *Session {
	rules := opts.Rules
	if rules.Rounds == 0 {
		rules = engine.DefaultRules()
	}
	lg := opts.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	styles := make(map[string]engine.Style, len(opts.Styles))
	for id, st := range opts.Styles {
		styles[id] = st
	}
	return &Session{log: l, rules: rules, lg: lg, clock: clock, styles: styles}
}

// Rules returns the round schedule in use.
func (s *Session) Rules() engine.Rules { return s.rules }

func (s *Session) validateSetup(st state.AppState, setup Setup) error {
	n := len(setup.Seats)
	if n < s.rules.MinPlayers || n > s.rules.MaxPlayers {
		return fmt.Errorf("%w: %d seats (want %d-%d)", ErrBadSetup, n, s.rules.MinPlayers, s.rules.MaxPlayers)
	}
	seen := make(map[string]bool, n)
	for _, seat := range setup.Seats {
		if seat.ID == "" || seat.Name == "" {
			return fmt.Errorf("%w: seat needs an id and a name", ErrBadSetup)
		}
		if seen[seat.ID] {
			return fmt.Errorf("%w: seat %s listed twice", ErrBadSetup, seat.ID)
		}
		if seat.Style != "" && !seat.Style.Valid() {
			return fmt.Errorf("%w: unknown style %q", ErrBadSetup, seat.Style)
		}
		seen[seat.ID] = true
	}
	if setup.HumanID != "" && !seen[setup.HumanID] {
		return fmt.Errorf("%w: human %s is not seated", ErrBadSetup, setup.HumanID)
	}
	if setup.DealerID != "" && !seen[setup.DealerID] {
		return fmt.Errorf("%w: dealer %s is not seated", ErrBadSetup, setup.DealerID)
	}
	if state.RoundsScored(st) > 0 {
		return ErrGameInProgress
	}
	if rd, ok := st.Rounds[1]; ok && rd.State != event.RoundLocked && rd.State != event.RoundBidding {
		return fmt.Errorf("%w: round 1 is %s", ErrGameInProgress, rd.State)
	}
	return nil
}

// Start resets the session, registers the seats, creates and activates a
// single-player roster, records the seed and deals round 1, all in one batch.
func (s *Session) Start(ctx context.Context, setup Setup) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	if err := s.validateSetup(st, setup); err != nil {
		return game.Result{}, err
	}

	order := make([]string, 0, len(setup.Seats))
	evs := []event.Event{event.New(event.SPSessionReset{})}
	for _, seat := range setup.Seats {
		order = append(order, seat.ID)
		kind := event.PlayerHuman
		var style engine.Style
		if seat.Bot {
			kind = event.PlayerBot
			style = seat.Style
			if style == "" {
				style = engine.StyleBalanced
			}
		}
		name, known := st.Players[seat.ID]
		switch {
		case !known:
			evs = append(evs, event.New(event.PlayerAdded{ID: seat.ID, Name: seat.Name, Kind: kind, Style: style}))
		default:
			if name != seat.Name {
				evs = append(evs, event.New(event.PlayerRenamed{ID: seat.ID, Name: seat.Name}))
			}
			if st.PlayerTypes[seat.ID] != kind || st.PlayerStyles[seat.ID] != style {
				evs = append(evs, event.New(event.PlayerTypeSet{ID: seat.ID, Kind: kind, Style: style}))
			}
		}
	}

	rosterName := setup.RosterName
	if rosterName == "" {
		rosterName = "Single-player table"
	}
	rosterID := uuid.NewString()
	evs = append(evs,
		event.New(event.RosterCreated{RosterID: rosterID, Name: rosterName, Kind: event.RosterSingle, PlayerIDs: order}),
		event.New(event.RosterActivated{RosterID: rosterID, Mode: event.RosterSingle}),
		event.New(event.SPSeedSet{Seed: setup.Seed}),
	)
	if setup.HumanID != "" {
		evs = append(evs, event.New(event.SPHumanSet{ID: setup.HumanID}))
	}

	dealer := setup.DealerID
	if dealer == "" {
		dealer = order[0]
	}
	deal, err := s.rules.DealRound(setup.Seed, 1, order, dealer)
	if err != nil {
		return game.Result{}, fmt.Errorf("%w: %v", ErrBadSetup, err)
	}
	evs = append(evs, dealEvent(deal))

	res, err := s.log.AppendMany(ctx, evs)
	if err != nil {
		return game.Result{}, err
	}
	s.lg.WithFields(logrus.Fields{"seats": len(order), "seed": setup.Seed, "height": res.Height}).Info("single-player session started")
	return res, nil
}

func dealEvent(d engine.Deal) event.Event {
	return event.New(event.SPDeal{
		RoundNo:   d.Round,
		DealerID:  d.DealerID,
		Order:     d.Order,
		Trump:     d.Trump,
		TrumpCard: d.TrumpCard,
		Hands:     d.Hands,
	})
}

// Bid declares playerID's bid for the current round. The last bid of the round
// also moves the session into play.
func (s *Session) Bid(ctx context.Context, playerID string, bid int) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	evs, err := s.bidEvents(st, playerID, bid)
	if err != nil {
		return game.Result{}, err
	}
	return s.log.AppendMany(ctx, evs)
}

// bidEvents builds the batch for a bid. Assumes lock is held by caller.
func (s *Session) bidEvents(st state.AppState, playerID string, bid int) ([]event.Event, error) {
	sp := st.SP
	if sp.Phase != event.PhaseBidding {
		return nil, ErrWrongPhase
	}
	if state.SPCurrentBidder(st) != playerID {
		return nil, ErrNotYourTurn
	}
	if bid < 0 || bid > len(sp.Hands[playerID]) {
		return nil, fmt.Errorf("%w: %d (hand holds %d)", ErrInvalidBid, bid, len(sp.Hands[playerID]))
	}

	mark := event.New(event.BidSet{Round: sp.RoundNo, PlayerID: playerID, Bid: bid})
	evs := []event.Event{mark}
	if state.SPCurrentBidder(state.Reduce(st, mark)) == "" {
		evs = append(evs,
			event.New(event.RoundStateSet{Round: sp.RoundNo, State: event.RoundPlaying}),
			event.New(event.SPPhaseSet{Phase: event.PhasePlaying}),
		)
	}
	return evs, nil
}

// Play puts card from playerID's hand on the table.
func (s *Session) Play(ctx context.Context, playerID string, card engine.Card) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	if err := checkPlay(st, playerID, card); err != nil {
		return game.Result{}, err
	}
	return s.log.AppendMany(ctx, []event.Event{event.New(event.SPTrickPlayed{PlayerID: playerID, Card: card})})
}

func checkPlay(st state.AppState, playerID string, card engine.Card) error {
	sp := st.SP
	if sp.Phase != event.PhasePlaying || sp.Reveal != nil {
		return ErrWrongPhase
	}
	if state.SPCurrentPlayer(st) != playerID {
		return ErrNotYourTurn
	}
	if !engine.IsLegalPlay(sp.Hands[playerID], sp.TrickPlays, sp.Trump, sp.TrumpBroken, card) {
		return fmt.Errorf("%w: %s", ErrIllegalPlay, card)
	}
	return nil
}

// ResolveTrick clears the revealed trick and hands the lead to its winner. On
// the round's last trick the same batch records the tallies, marks every bid
// made or missed, finalizes the round and enters the summary.
func (s *Session) ResolveTrick(ctx context.Context) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	evs, err := s.resolveEvents(st)
	if err != nil {
		return game.Result{}, err
	}
	return s.log.AppendMany(ctx, evs)
}

// resolveEvents builds the trick resolution batch. Assumes lock is held by
// caller.
func (s *Session) resolveEvents(st state.AppState) ([]event.Event, error) {
	sp := st.SP
	if sp.Phase != event.PhasePlaying || sp.Reveal == nil || !state.SPTrickComplete(st) {
		return nil, ErrWrongPhase
	}
	winner := sp.Reveal.WinnerID
	evs := []event.Event{
		event.New(event.SPTrickCleared{WinnerID: winner}),
		event.New(event.SPTrickRevealClear{}),
		event.New(event.SPLeaderSet{LeaderID: winner}),
	}
	if !state.SPLastTrick(st) {
		return evs, nil
	}

	round := sp.RoundNo
	tallies := make(map[string]int, len(sp.Order))
	for _, id := range sp.Order {
		tallies[id] = sp.TrickCounts[id]
	}
	tallies[winner]++

	evs = append(evs,
		event.New(event.SPRoundTallySet{RoundNo: round, Tallies: tallies}),
		event.New(event.RoundStateSet{Round: round, State: event.RoundComplete}),
	)
	bids := st.Rounds[round].Bids
	for _, id := range sp.Order {
		made := engine.MadeBid(bids[id], tallies[id])
		evs = append(evs, event.New(event.MadeSet{Round: round, PlayerID: id, Made: &made}))
	}
	phase := event.PhaseSummary
	if round >= s.rules.Rounds {
		phase = event.PhaseDone
	}
	at := s.clock().UnixMilli()
	evs = append(evs,
		event.New(event.RoundFinalize{Round: round}),
		event.New(event.SPPhaseSet{Phase: phase}),
		event.New(event.SPSummaryEnteredSet{At: &at}),
	)
	return evs, nil
}

// NextRound deals the next round with the deal passing one seat left.
func (s *Session) NextRound(ctx context.Context) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	sp := st.SP
	if sp.Phase == event.PhaseDone || sp.RoundNo >= s.rules.Rounds {
		return game.Result{}, ErrGameOver
	}
	if sp.Phase != event.PhaseSummary {
		return game.Result{}, ErrWrongPhase
	}
	deal, err := s.rules.DealRound(sp.Seed, sp.RoundNo+1, sp.Order, engine.NextSeat(sp.Order, sp.DealerID))
	if err != nil {
		return game.Result{}, err
	}
	res, err := s.log.AppendMany(ctx, []event.Event{dealEvent(deal)})
	if err != nil {
		return game.Result{}, err
	}
	s.lg.WithFields(logrus.Fields{"round": deal.Round, "dealer": deal.DealerID, "trump": deal.Trump}).Debug("round dealt")
	return res, nil
}

// ReplayRound reverts the score of the round just finished and deals it again
// with the same dealer.
func (s *Session) ReplayRound(ctx context.Context) (game.Result, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return game.Result{}, err
	}
	sp := st.SP
	if sp.Phase != event.PhaseSummary && sp.Phase != event.PhaseDone {
		return game.Result{}, ErrWrongPhase
	}
	deal, err := s.rules.DealRound(sp.Seed, sp.RoundNo, sp.Order, sp.DealerID)
	if err != nil {
		return game.Result{}, err
	}
	return s.log.AppendMany(ctx, []event.Event{
		event.New(event.RoundStateSet{Round: sp.RoundNo, State: event.RoundBidding}),
		dealEvent(deal),
	})
}

// Step performs one automatic action: a bot bid, a bot play or resolving a
// revealed trick. It reports false when the table waits on a human or on
// NextRound.
func (s *Session) Step(ctx context.Context) (bool, error) {
	return s.step(ctx, false)
}

// step is Step; autopilot also plays human seats with the balanced style.
func (s *Session) step(ctx context.Context, autopilot bool) (bool, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st, _, err := s.log.State()
	if err != nil {
		return false, err
	}

	var evs []event.Event
	sp := st.SP
	switch sp.Phase {
	case event.PhaseBidding:
		id := state.SPCurrentBidder(st)
		if id == "" || !s.automated(st, id, autopilot) {
			return false, nil
		}
		bid := s.botBid(st, id)
		if evs, err = s.bidEvents(st, id, bid); err != nil {
			return false, err
		}
	case event.PhasePlaying:
		if sp.Reveal != nil {
			if evs, err = s.resolveEvents(st); err != nil {
				return false, err
			}
			break
		}
		id := state.SPCurrentPlayer(st)
		if id == "" || !s.automated(st, id, autopilot) {
			return false, nil
		}
		card := s.botPlay(st, id)
		if err := checkPlay(st, id, card); err != nil {
			return false, err
		}
		evs = []event.Event{event.New(event.SPTrickPlayed{PlayerID: id, Card: card})}
	default:
		return false, nil
	}

	if _, err := s.log.AppendMany(ctx, evs); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) automated(st state.AppState, id string, autopilot bool) bool {
	return autopilot || st.PlayerTypes[id] == event.PlayerBot
}

// styleFor prefers an override from Options, then the style recorded on the
// player, so any session over the same log plays the same bots.
func (s *Session) styleFor(st state.AppState, id string) engine.Style {
	if style, ok := s.styles[id]; ok {
		return style
	}
	if style, ok := st.PlayerStyles[id]; ok {
		return style
	}
	return engine.StyleBalanced
}

// botRand seeds a bot decision from the session seed, the round, the seat and
// the trick, so replaying a session repeats every choice.
func botRand(st state.AppState, id string, salt int) *engine.Rand {
	seat := engine.SeatIndex(st.SP.Order, id)
	return engine.NewRand(engine.DeriveSeed(st.SP.Seed, st.SP.RoundNo, seat, salt))
}

func (s *Session) botBid(st state.AppState, id string) int {
	sp := st.SP
	rd := st.Rounds[sp.RoundNo]
	var so []int
	start := engine.SeatIndex(sp.Order, sp.DealerID) + 1
	for k := 0; k < len(sp.Order); k++ {
		if b, ok := rd.Bids[sp.Order[(start+k)%len(sp.Order)]]; ok {
			so = append(so, b)
		}
	}
	return engine.BotBid(sp.Hands[id], engine.BidContext{
		Trump:      sp.Trump,
		HandSize:   len(sp.Hands[id]),
		NumPlayers: len(sp.Order),
		Style:      s.styleFor(st, id),
		BidsSoFar:  so,
	}, botRand(st, id, 0))
}

func (s *Session) botPlay(st state.AppState, id string) engine.Card {
	sp := st.SP
	return engine.BotPlay(sp.Hands[id], engine.PlayContext{
		Trump:       sp.Trump,
		TrumpBroken: sp.TrumpBroken,
		Plays:       slices.Clone(sp.TrickPlays),
		Bid:         st.Rounds[sp.RoundNo].Bids[id],
		TricksWon:   sp.TrickCounts[id],
		Style:       s.styleFor(st, id),
	}, botRand(st, id, state.SPTricksPlayed(st)+1))
}

// RunBots steps until the table waits on a human or on NextRound and returns
// the number of actions taken.
func (s *Session) RunBots(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		acted, err := s.step(ctx, false)
		if err != nil || !acted {
			return n, err
		}
		n++
	}
}

// PlayOut plays every remaining round to the end, deciding for human seats
// too, and returns the final state.
func (s *Session) PlayOut(ctx context.Context) (state.AppState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return state.AppState{}, err
		}
		acted, err := s.step(ctx, true)
		if err != nil {
			return state.AppState{}, err
		}
		if acted {
			continue
		}
		st, _, err := s.log.State()
		if err != nil {
			return state.AppState{}, err
		}
		switch st.SP.Phase {
		case event.PhaseDone:
			return st, nil
		case event.PhaseSummary:
			if _, err := s.NextRound(ctx); err != nil {
				return state.AppState{}, err
			}
		default:
			return state.AppState{}, fmt.Errorf("single: table stuck in %s", st.SP.Phase)
		}
	}
}
