package state

import (
	"sort"

	"github.com/jason-s-yu/scorecard/internal/event"
)

type handler func(AppState, event.Payload) AppState

// on adapts a typed reducer to the handler table. A payload of the wrong
// concrete type leaves the state unchanged.
func on[P event.Payload](f func(AppState, P) AppState) handler {
	return func(s AppState, p event.Payload) AppState {
		v, ok := p.(P)
		if !ok {
			return s
		}
		return f(s, v)
	}
}

var handlers = map[event.Type]handler{
	event.TypePlayerAdded:      on(playerAdded),
	event.TypePlayerRenamed:    on(playerRenamed),
	event.TypePlayerTypeSet:    on(playerTypeSet),
	event.TypePlayerDropped:    on(playerDropped),
	event.TypePlayerResumed:    on(playerResumed),
	event.TypePlayerRemoved:    on(playerRemoved),
	event.TypePlayersReordered: on(playersReordered),

	event.TypeBidSet:        on(bidSet),
	event.TypeMadeSet:       on(madeSet),
	event.TypeRoundStateSet: on(roundStateSet),
	event.TypeRoundFinalize: on(roundFinalize),
	event.TypeScoreAdded:    on(scoreAdded),

	event.TypeRosterCreated:          on(rosterCreated),
	event.TypeRosterPlayerAdded:      on(rosterPlayerAdded),
	event.TypeRosterPlayersReordered: on(rosterPlayersReordered),
	event.TypeRosterRenamed:          on(rosterRenamed),
	event.TypeRosterReset:            on(rosterReset),
	event.TypeRosterActivated:        on(rosterActivated),
	event.TypeRosterArchived:         on(rosterArchived),
	event.TypeRosterRestored:         on(rosterRestored),
	event.TypeRosterDeleted:          on(rosterDeleted),

	event.TypeSPDeal:              on(spDeal),
	event.TypeSPPhaseSet:          on(spPhaseSet),
	event.TypeSPLeaderSet:         on(spLeaderSet),
	event.TypeSPTrickPlayed:       on(spTrickPlayed),
	event.TypeSPTrickCleared:      on(spTrickCleared),
	event.TypeSPTrickRevealClear:  on(spRevealClear),
	event.TypeSPRoundTallySet:     on(spRoundTallySet),
	event.TypeSPSeedSet:           on(spSeedSet),
	event.TypeSPHumanSet:          on(spHumanSet),
	event.TypeSPSessionReset:      on(spSessionReset),
	event.TypeSPSummaryEnteredSet: on(spSummaryEnteredSet),
}

// Reduce applies ev to s and returns the next state. It never mutates s. Events
// that do not apply to the current state return s unchanged.
func Reduce(s AppState, ev event.Event) AppState {
	h, ok := handlers[ev.Type]
	if !ok || ev.Payload == nil {
		return s
	}
	return h(s, ev.Payload)
}

// Fold reduces evs left to right starting from s.
func Fold(s AppState, evs []event.Event) AppState {
	for _, ev := range evs {
		s = Reduce(s, ev)
	}
	return s
}

// Replay folds evs from INITIAL_STATE.
func Replay(evs []event.Event) AppState { return Fold(Initial(), evs) }

// HandledTypes lists the event types the reducer handles, sorted.
func HandledTypes() []event.Type {
	out := make([]event.Type, 0, len(handlers))
	for t := range handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
