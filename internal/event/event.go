// Package event defines the closed set of scorekeeper events, one strongly typed
// payload per event type, and the schemas that gate them before reduction.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of an event. Values use a "domain/verb" layout.
type Type string

// Player registry events.
const (
	TypePlayerAdded      Type = "player/added"
	TypePlayerRenamed    Type = "player/renamed"
	TypePlayerTypeSet    Type = "player/type-set"
	TypePlayerDropped    Type = "player/dropped"
	TypePlayerResumed    Type = "player/resumed"
	TypePlayerRemoved    Type = "player/removed"
	TypePlayersReordered Type = "players/reordered"
)

// Round and score events.
const (
	TypeBidSet        Type = "bid/set"
	TypeMadeSet       Type = "made/set"
	TypeRoundStateSet Type = "round/state-set"
	TypeRoundFinalize Type = "round/finalize"
	TypeScoreAdded    Type = "score/added"
)

// Roster events.
const (
	TypeRosterCreated          Type = "roster/created"
	TypeRosterPlayerAdded      Type = "roster/player-added"
	TypeRosterPlayersReordered Type = "roster/players-reordered"
	TypeRosterRenamed          Type = "roster/renamed"
	TypeRosterReset            Type = "roster/reset"
	TypeRosterActivated        Type = "roster/activated"
	TypeRosterArchived         Type = "roster/archived"
	TypeRosterRestored         Type = "roster/restored"
	TypeRosterDeleted          Type = "roster/deleted"
)

// Single-player events.
const (
	TypeSPDeal              Type = "sp/deal"
	TypeSPPhaseSet          Type = "sp/phase-set"
	TypeSPLeaderSet         Type = "sp/leader-set"
	TypeSPTrickPlayed       Type = "sp/trick/played"
	TypeSPTrickCleared      Type = "sp/trick/cleared"
	TypeSPTrickRevealClear  Type = "sp/trick/reveal-clear"
	TypeSPRoundTallySet     Type = "sp/round-tally-set"
	TypeSPSeedSet           Type = "sp/seed-set"
	TypeSPHumanSet          Type = "sp/human-set"
	TypeSPSessionReset      Type = "sp/session-reset"
	TypeSPSummaryEnteredSet Type = "sp/summary-entered-set"
)

var allTypes = []Type{
	TypePlayerAdded, TypePlayerRenamed, TypePlayerTypeSet, TypePlayerDropped,
	TypePlayerResumed, TypePlayerRemoved, TypePlayersReordered,
	TypeBidSet, TypeMadeSet, TypeRoundStateSet, TypeRoundFinalize, TypeScoreAdded,
	TypeRosterCreated, TypeRosterPlayerAdded, TypeRosterPlayersReordered, TypeRosterRenamed,
	TypeRosterReset, TypeRosterActivated, TypeRosterArchived, TypeRosterRestored,
	TypeRosterDeleted,
	TypeSPDeal, TypeSPPhaseSet, TypeSPLeaderSet, TypeSPTrickPlayed, TypeSPTrickCleared,
	TypeSPTrickRevealClear, TypeSPRoundTallySet, TypeSPSeedSet, TypeSPHumanSet,
	TypeSPSessionReset, TypeSPSummaryEnteredSet,
}

// Types returns every event type in a fixed order.
func Types() []Type { return append([]Type(nil), allTypes...) }

// Known reports whether t has a schema.
func (t Type) Known() bool {
	_, ok := schemas[t]
	return ok
}

// Event is an immutable entry in the event log. Its position in the log (the
// height of the batch it was appended in) is assigned by the store.
type Event struct {
	ID      string
	Type    Type
	Payload Payload
	TS      int64 // epoch milliseconds
}

// New wraps payload in an event with a fresh id and the current time.
func New(p Payload) Event {
	return NewAt(uuid.NewString(), time.Now().UnixMilli(), p)
}

// NewAt wraps payload with a caller-chosen id and timestamp. Fixtures and
// generated bundles use it to stay reproducible.
func NewAt(id string, ts int64, p Payload) Event {
	return Event{ID: id, Type: p.Type(), Payload: p, TS: ts}
}

type wireEvent struct {
	ID      string          `json:"eventId"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"`
}

// MarshalJSON writes {eventId, type, payload, ts}.
func (e Event) MarshalJSON() ([]byte, error) {
	var payload json.RawMessage = []byte("{}")
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return json.Marshal(wireEvent{ID: e.ID, Type: e.Type, Payload: payload, TS: e.TS})
}

// UnmarshalJSON decodes and validates an event; see Decode.
func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}
