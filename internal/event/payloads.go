package event

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/scorecard/engine"
)

// Payload is implemented only by the payload structs in this package, so a type
// switch over it is exhaustive.
type Payload interface {
	Type() Type
	validate() error
}

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// RoundState is the lifecycle state of one scorecard round.
type RoundState string

const (
	RoundLocked   RoundState = "locked"
	RoundBidding  RoundState = "bidding"
	RoundPlaying  RoundState = "playing"
	RoundComplete RoundState = "complete"
	RoundScored   RoundState = "scored"
)

// Rank orders round states along the lifecycle.
func (s RoundState) Rank() int {
	switch s {
	case RoundLocked:
		return 0
	case RoundBidding:
		return 1
	case RoundPlaying:
		return 2
	case RoundComplete:
		return 3
	case RoundScored:
		return 4
	}
	return -1
}

// Valid reports whether s is a known round state.
func (s RoundState) Valid() bool { return s.Rank() >= 0 }

// Phase is the single-player session phase.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseBidding Phase = "bidding"
	PhasePlaying Phase = "playing"
	PhaseSummary Phase = "summary"
	PhaseDone    Phase = "done"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseSetup, PhaseBidding, PhasePlaying, PhaseSummary, PhaseDone:
		return true
	}
	return false
}

// PlayerType tells humans from bots.
type PlayerType string

const (
	PlayerHuman PlayerType = "human"
	PlayerBot   PlayerType = "bot"
)

// Valid reports whether t is human or bot.
func (t PlayerType) Valid() bool { return t == PlayerHuman || t == PlayerBot }

// RosterType scopes a roster to the scorecard grid or single-player mode.
type RosterType string

const (
	RosterScorecard RosterType = "scorecard"
	RosterSingle    RosterType = "single"
)

// Valid reports whether t is a known roster type.
func (t RosterType) Valid() bool { return t == RosterScorecard || t == RosterSingle }

// ---------------------------------------------------------------------------
// Player payloads
// ---------------------------------------------------------------------------

type PlayerAdded struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Kind  PlayerType   `json:"type,omitempty"`
	Style engine.Style `json:"style,omitempty"`
}

type PlayerRenamed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayerTypeSet changes a player's type. Style is the bot style and is only
// kept for bots.
type PlayerTypeSet struct {
	ID    string       `json:"id"`
	Kind  PlayerType   `json:"type"`
	Style engine.Style `json:"style,omitempty"`
}

type PlayerDropped struct {
	ID        string `json:"id"`
	FromRound int    `json:"fromRound"`
}

type PlayerResumed struct {
	ID        string `json:"id"`
	FromRound int    `json:"fromRound"`
}

type PlayerRemoved struct {
	ID string `json:"id"`
}

type PlayersReordered struct {
	Order []string `json:"order"`
}

func (PlayerAdded) Type() Type      { return TypePlayerAdded }
func (PlayerRenamed) Type() Type    { return TypePlayerRenamed }
func (PlayerTypeSet) Type() Type    { return TypePlayerTypeSet }
func (PlayerDropped) Type() Type    { return TypePlayerDropped }
func (PlayerResumed) Type() Type    { return TypePlayerResumed }
func (PlayerRemoved) Type() Type    { return TypePlayerRemoved }
func (PlayersReordered) Type() Type { return TypePlayersReordered }

func (p PlayerAdded) validate() error {
	if err := requireID("id", p.ID); err != nil {
		return err
	}
	if err := requireName("name", p.Name); err != nil {
		return err
	}
	if p.Kind != "" && !p.Kind.Valid() {
		return fieldErr("type", "must be human or bot")
	}
	return validStyle(p.Style)
}

func (p PlayerRenamed) validate() error {
	if err := requireID("id", p.ID); err != nil {
		return err
	}
	return requireName("name", p.Name)
}

func (p PlayerTypeSet) validate() error {
	if err := requireID("id", p.ID); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return fieldErr("type", "must be human or bot")
	}
	return validStyle(p.Style)
}

func validStyle(s engine.Style) error {
	if s != "" && !s.Valid() {
		return fieldErr("style", "must be cautious, balanced or aggressive")
	}
	return nil
}

func (p PlayerDropped) validate() error {
	if err := requireID("id", p.ID); err != nil {
		return err
	}
	return requireRound("fromRound", p.FromRound)
}

func (p PlayerResumed) validate() error {
	if err := requireID("id", p.ID); err != nil {
		return err
	}
	return requireRound("fromRound", p.FromRound)
}

func (p PlayerRemoved) validate() error { return requireID("id", p.ID) }

func (p PlayersReordered) validate() error { return requireIDList("order", p.Order, false) }

// ---------------------------------------------------------------------------
// Round payloads
// ---------------------------------------------------------------------------

type BidSet struct {
	Round    int    `json:"round"`
	PlayerID string `json:"playerId"`
	Bid      int    `json:"bid"`
}

// MadeSet records whether a player made their bid. A nil Made clears the entry.
type MadeSet struct {
	Round    int    `json:"round"`
	PlayerID string `json:"playerId"`
	Made     *bool  `json:"made"`
}

type RoundStateSet struct {
	Round int        `json:"round"`
	State RoundState `json:"state"`
}

type RoundFinalize struct {
	Round int `json:"round"`
}

// ScoreAdded is a manual, additive score adjustment.
type ScoreAdded struct {
	PlayerID string `json:"playerId"`
	Delta    int    `json:"delta"`
}

func (BidSet) Type() Type        { return TypeBidSet }
func (MadeSet) Type() Type       { return TypeMadeSet }
func (RoundStateSet) Type() Type { return TypeRoundStateSet }
func (RoundFinalize) Type() Type { return TypeRoundFinalize }
func (ScoreAdded) Type() Type    { return TypeScoreAdded }

func (p BidSet) validate() error {
	if err := requireRound("round", p.Round); err != nil {
		return err
	}
	if err := requireID("playerId", p.PlayerID); err != nil {
		return err
	}
	if p.Bid < 0 {
		return fieldErr("bid", "must not be negative")
	}
	return nil
}

func (p MadeSet) validate() error {
	if err := requireRound("round", p.Round); err != nil {
		return err
	}
	return requireID("playerId", p.PlayerID)
}

func (p RoundStateSet) validate() error {
	if err := requireRound("round", p.Round); err != nil {
		return err
	}
	if !p.State.Valid() {
		return fieldErr("state", fmt.Sprintf("unknown round state %q", p.State))
	}
	return nil
}

func (p RoundFinalize) validate() error { return requireRound("round", p.Round) }

func (p ScoreAdded) validate() error { return requireID("playerId", p.PlayerID) }

// ---------------------------------------------------------------------------
// Roster payloads
// ---------------------------------------------------------------------------

type RosterCreated struct {
	RosterID  string     `json:"rosterId"`
	Name      string     `json:"name"`
	Kind      RosterType `json:"type"`
	PlayerIDs []string   `json:"playerIds,omitempty"`
}

// RosterPlayerAdded derives NewRosterID from RosterID plus one player.
type RosterPlayerAdded struct {
	RosterID    string `json:"rosterId"`
	NewRosterID string `json:"newRosterId"`
	PlayerID    string `json:"playerId"`
}

type RosterPlayersReordered struct {
	RosterID    string   `json:"rosterId"`
	NewRosterID string   `json:"newRosterId"`
	Order       []string `json:"order"`
}

type RosterRenamed struct {
	RosterID string `json:"rosterId"`
	Name     string `json:"name"`
}

// RosterReset derives an empty NewRosterID from RosterID.
type RosterReset struct {
	RosterID    string `json:"rosterId"`
	NewRosterID string `json:"newRosterId"`
}

type RosterActivated struct {
	RosterID string     `json:"rosterId"`
	Mode     RosterType `json:"mode"`
}

type RosterArchived struct {
	RosterID string `json:"rosterId"`
}

type RosterRestored struct {
	RosterID string `json:"rosterId"`
}

type RosterDeleted struct {
	RosterID string `json:"rosterId"`
}

func (RosterCreated) Type() Type          { return TypeRosterCreated }
func (RosterPlayerAdded) Type() Type      { return TypeRosterPlayerAdded }
func (RosterPlayersReordered) Type() Type { return TypeRosterPlayersReordered }
func (RosterRenamed) Type() Type          { return TypeRosterRenamed }
func (RosterReset) Type() Type            { return TypeRosterReset }
func (RosterActivated) Type() Type        { return TypeRosterActivated }
func (RosterArchived) Type() Type         { return TypeRosterArchived }
func (RosterRestored) Type() Type         { return TypeRosterRestored }
func (RosterDeleted) Type() Type          { return TypeRosterDeleted }

func (p RosterCreated) validate() error {
	if err := requireID("rosterId", p.RosterID); err != nil {
		return err
	}
	if err := requireName("name", p.Name); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return fieldErr("type", "must be scorecard or single")
	}
	return requireIDList("playerIds", p.PlayerIDs, true)
}

func (p RosterPlayerAdded) validate() error {
	if err := requireDerived(p.RosterID, p.NewRosterID); err != nil {
		return err
	}
	return requireID("playerId", p.PlayerID)
}

func (p RosterPlayersReordered) validate() error {
	if err := requireDerived(p.RosterID, p.NewRosterID); err != nil {
		return err
	}
	return requireIDList("order", p.Order, true)
}

func (p RosterRenamed) validate() error {
	if err := requireID("rosterId", p.RosterID); err != nil {
		return err
	}
	return requireName("name", p.Name)
}

func (p RosterReset) validate() error { return requireDerived(p.RosterID, p.NewRosterID) }

func (p RosterActivated) validate() error {
	if err := requireID("rosterId", p.RosterID); err != nil {
		return err
	}
	if !p.Mode.Valid() {
		return fieldErr("mode", "must be scorecard or single")
	}
	return nil
}

func (p RosterArchived) validate() error { return requireID("rosterId", p.RosterID) }
func (p RosterRestored) validate() error { return requireID("rosterId", p.RosterID) }
func (p RosterDeleted) validate() error  { return requireID("rosterId", p.RosterID) }

// ---------------------------------------------------------------------------
// Single-player payloads
// ---------------------------------------------------------------------------

type SPDeal struct {
	RoundNo   int                      `json:"roundNo"`
	DealerID  string                   `json:"dealerId"`
	Order     []string                 `json:"order"`
	Trump     engine.Suit              `json:"trump"`
	TrumpCard engine.Card              `json:"trumpCard"`
	Hands     map[string][]engine.Card `json:"hands"`
}

type SPPhaseSet struct {
	Phase Phase `json:"phase"`
}

type SPLeaderSet struct {
	LeaderID string `json:"leaderId"`
}

type SPTrickPlayed struct {
	PlayerID string      `json:"playerId"`
	Card     engine.Card `json:"card"`
}

type SPTrickCleared struct {
	WinnerID string `json:"winnerId"`
}

type SPTrickRevealClear struct{}

type SPRoundTallySet struct {
	RoundNo int            `json:"roundNo"`
	Tallies map[string]int `json:"tallies"`
}

type SPSeedSet struct {
	Seed int64 `json:"seed"`
}

type SPHumanSet struct {
	ID string `json:"id"`
}

type SPSessionReset struct{}

// SPSummaryEnteredSet stamps when the summary screen was entered; nil clears it.
type SPSummaryEnteredSet struct {
	At *int64 `json:"at"`
}

func (SPDeal) Type() Type              { return TypeSPDeal }
func (SPPhaseSet) Type() Type          { return TypeSPPhaseSet }
func (SPLeaderSet) Type() Type         { return TypeSPLeaderSet }
func (SPTrickPlayed) Type() Type       { return TypeSPTrickPlayed }
func (SPTrickCleared) Type() Type      { return TypeSPTrickCleared }
func (SPTrickRevealClear) Type() Type  { return TypeSPTrickRevealClear }
func (SPRoundTallySet) Type() Type     { return TypeSPRoundTallySet }
func (SPSeedSet) Type() Type           { return TypeSPSeedSet }
func (SPHumanSet) Type() Type          { return TypeSPHumanSet }
func (SPSessionReset) Type() Type      { return TypeSPSessionReset }
func (SPSummaryEnteredSet) Type() Type { return TypeSPSummaryEnteredSet }

func (p SPDeal) validate() error {
	if err := requireRound("roundNo", p.RoundNo); err != nil {
		return err
	}
	if err := requireIDList("order", p.Order, false); err != nil {
		return err
	}
	if !contains(p.Order, p.DealerID) {
		return fieldErr("dealerId", "must be seated in order")
	}
	if !p.Trump.Valid() {
		return fieldErr("trump", fmt.Sprintf("unknown suit %q", p.Trump))
	}
	if !p.TrumpCard.Valid() || p.TrumpCard.Suit != p.Trump {
		return fieldErr("trumpCard", "must be a valid card of the trump suit")
	}
	if len(p.Hands) != len(p.Order) {
		return fieldErr("hands", "must hold one hand per seated player")
	}
	seen := map[engine.Card]bool{p.TrumpCard: true}
	size := -1
	for id, hand := range p.Hands {
		if !contains(p.Order, id) {
			return fieldErr("hands", fmt.Sprintf("hand for unseated player %q", id))
		}
		if size >= 0 && len(hand) != size {
			return fieldErr("hands", "hands must be the same size")
		}
		size = len(hand)
		for _, c := range hand {
			if !c.Valid() {
				return fieldErr("hands", fmt.Sprintf("invalid card %v", c))
			}
			if seen[c] {
				return fieldErr("hands", fmt.Sprintf("card %s dealt twice", c))
			}
			seen[c] = true
		}
	}
	if size < 1 {
		return fieldErr("hands", "hands must not be empty")
	}
	return nil
}

func (p SPPhaseSet) validate() error {
	if !p.Phase.Valid() {
		return fieldErr("phase", fmt.Sprintf("unknown phase %q", p.Phase))
	}
	return nil
}

func (p SPLeaderSet) validate() error { return requireID("leaderId", p.LeaderID) }

func (p SPTrickPlayed) validate() error {
	if err := requireID("playerId", p.PlayerID); err != nil {
		return err
	}
	if !p.Card.Valid() {
		return fieldErr("card", "must be a valid card")
	}
	return nil
}

func (p SPTrickCleared) validate() error { return requireID("winnerId", p.WinnerID) }

func (SPTrickRevealClear) validate() error { return nil }

func (p SPRoundTallySet) validate() error {
	if err := requireRound("roundNo", p.RoundNo); err != nil {
		return err
	}
	for id, n := range p.Tallies {
		if strings.TrimSpace(id) == "" || n < 0 {
			return fieldErr("tallies", "tallies need player ids and non-negative counts")
		}
	}
	return nil
}

func (SPSeedSet) validate() error { return nil }

func (p SPHumanSet) validate() error { return requireID("id", p.ID) }

func (SPSessionReset) validate() error { return nil }

func (p SPSummaryEnteredSet) validate() error {
	if p.At != nil && *p.At < 0 {
		return fieldErr("at", "must not be negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Field checks
// ---------------------------------------------------------------------------

// fieldErr is completed with the event type by the caller of validate.
func fieldErr(field, reason string) error {
	return &SchemaError{Field: field, Reason: reason}
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fieldErr(field, "must not be empty")
	}
	return nil
}

func requireName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fieldErr(field, "must not be blank")
	}
	return nil
}

func requireRound(field string, v int) error {
	if v < 1 {
		return fieldErr(field, "must be at least 1")
	}
	return nil
}

func requireDerived(from, to string) error {
	if err := requireID("rosterId", from); err != nil {
		return err
	}
	if err := requireID("newRosterId", to); err != nil {
		return err
	}
	if from == to {
		return fieldErr("newRosterId", "must differ from rosterId")
	}
	return nil
}

func requireIDList(field string, ids []string, allowEmpty bool) error {
	if len(ids) == 0 && !allowEmpty {
		return fieldErr(field, "must not be empty")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fieldErr(field, "ids must not be empty")
		}
		if seen[id] {
			return fieldErr(field, fmt.Sprintf("duplicate id %q", id))
		}
		seen[id] = true
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
