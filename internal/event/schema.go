package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSchema matches every *SchemaError via errors.Is.
var ErrSchema = errors.New("event schema violation")

// SchemaError reports an event that failed its type's schema. Field is empty
// when the failure concerns the envelope rather than a payload field.
type SchemaError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Type == "":
		return fmt.Sprintf("event: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("event %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("event %s: field %s: %s", e.Type, e.Field, e.Reason)
}

// Is lets callers match any schema failure with errors.Is(err, ErrSchema).
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

type schema struct {
	required []string
	decode   func([]byte) (Payload, error)
	zero     Payload
}

func def[T Payload](required ...string) schema {
	var zero T
	return schema{required: required, decode: decodeAs[T], zero: zero}
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// schemas maps each type to its required payload keys and decoder. A duplicate
// key here is a compile error; a missing one is caught by the schema tests.
var schemas = map[Type]schema{
	TypePlayerAdded:      def[PlayerAdded]("id", "name"),
	TypePlayerRenamed:    def[PlayerRenamed]("id", "name"),
	TypePlayerTypeSet:    def[PlayerTypeSet]("id", "type"),
	TypePlayerDropped:    def[PlayerDropped]("id", "fromRound"),
	TypePlayerResumed:    def[PlayerResumed]("id", "fromRound"),
	TypePlayerRemoved:    def[PlayerRemoved]("id"),
	TypePlayersReordered: def[PlayersReordered]("order"),

	TypeBidSet:        def[BidSet]("round", "playerId", "bid"),
	TypeMadeSet:       def[MadeSet]("round", "playerId", "made"),
	TypeRoundStateSet: def[RoundStateSet]("round", "state"),
	TypeRoundFinalize: def[RoundFinalize]("round"),
	TypeScoreAdded:    def[ScoreAdded]("playerId", "delta"),

	TypeRosterCreated:          def[RosterCreated]("rosterId", "name", "type"),
	TypeRosterPlayerAdded:      def[RosterPlayerAdded]("rosterId", "newRosterId", "playerId"),
	TypeRosterPlayersReordered: def[RosterPlayersReordered]("rosterId", "newRosterId", "order"),
	TypeRosterRenamed:          def[RosterRenamed]("rosterId", "name"),
	TypeRosterReset:            def[RosterReset]("rosterId", "newRosterId"),
	TypeRosterActivated:        def[RosterActivated]("rosterId", "mode"),
	TypeRosterArchived:         def[RosterArchived]("rosterId"),
	TypeRosterRestored:         def[RosterRestored]("rosterId"),
	TypeRosterDeleted:          def[RosterDeleted]("rosterId"),

	TypeSPDeal:              def[SPDeal]("roundNo", "dealerId", "order", "trump", "trumpCard", "hands"),
	TypeSPPhaseSet:          def[SPPhaseSet]("phase"),
	TypeSPLeaderSet:         def[SPLeaderSet]("leaderId"),
	TypeSPTrickPlayed:       def[SPTrickPlayed]("playerId", "card"),
	TypeSPTrickCleared:      def[SPTrickCleared]("winnerId"),
	TypeSPTrickRevealClear:  def[SPTrickRevealClear](),
	TypeSPRoundTallySet:     def[SPRoundTallySet]("roundNo", "tallies"),
	TypeSPSeedSet:           def[SPSeedSet]("seed"),
	TypeSPHumanSet:          def[SPHumanSet]("id"),
	TypeSPSessionReset:      def[SPSessionReset](),
	TypeSPSummaryEnteredSet: def[SPSummaryEnteredSet]("at"),
}

// Required returns the payload keys the schema for t requires.
func Required(t Type) []string {
	return append([]string(nil), schemas[t].required...)
}

// Decode parses one serialized event and validates it against the schema for
// its type. Unknown types, missing required keys, unknown payload keys and
// ill-typed values all fail with a *SchemaError.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, &SchemaError{Reason: "malformed event: " + err.Error()}
	}
	sc, ok := schemas[w.Type]
	if !ok {
		return Event{}, &SchemaError{Type: w.Type, Reason: "unknown event type"}
	}
	if w.ID == "" {
		return Event{}, &SchemaError{Type: w.Type, Field: "eventId", Reason: "must not be empty"}
	}

	raw := []byte(w.Payload)
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Event{}, &SchemaError{Type: w.Type, Field: "payload", Reason: "must be an object"}
	}
	for _, k := range sc.required {
		if _, ok := keys[k]; !ok {
			return Event{}, &SchemaError{Type: w.Type, Field: k, Reason: "required"}
		}
	}

	p, err := sc.decode(raw)
	if err != nil {
		se := &SchemaError{Type: w.Type, Reason: err.Error()}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			se.Field = te.Field
			se.Reason = fmt.Sprintf("expected %s", te.Type)
		}
		return Event{}, se
	}
	ev := Event{ID: w.ID, Type: w.Type, Payload: p, TS: w.TS}
	if err := checkPayload(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks an event built in code. It applies the same payload checks
// Decode does; required-key presence is implied by the Go types.
func Validate(ev Event) error {
	if !ev.Type.Known() {
		return &SchemaError{Type: ev.Type, Reason: "unknown event type"}
	}
	if ev.ID == "" {
		return &SchemaError{Type: ev.Type, Field: "eventId", Reason: "must not be empty"}
	}
	if ev.Payload == nil {
		return &SchemaError{Type: ev.Type, Field: "payload", Reason: "required"}
	}
	if ev.Payload.Type() != ev.Type {
		return &SchemaError{Type: ev.Type, Field: "payload",
			Reason: fmt.Sprintf("payload is for %s", ev.Payload.Type())}
	}
	return checkPayload(ev)
}

func checkPayload(ev Event) error {
	if err := ev.Payload.validate(); err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Type = ev.Type
			return se
		}
		return &SchemaError{Type: ev.Type, Reason: err.Error()}
	}
	return nil
}

// DecodeAll decodes a JSON array of events, stopping at the first failure.
func DecodeAll(data []byte) ([]Event, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &SchemaError{Reason: "malformed event list: " + err.Error()}
	}
	out := make([]Event, 0, len(raws))
	for i, r := range raws {
		ev, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
