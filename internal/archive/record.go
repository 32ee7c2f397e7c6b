// Package archive freezes finished games into immutable records and reads
// them back.
package archive

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/state"
)

// GameRecord is an archived game: the terminal summary plus every event that
// produced it.
type GameRecord struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	CreatedAt  int64   `json:"createdAt"`
	FinishedAt int64   `json:"finishedAt"`
	LastSeq    int64   `json:"lastSeq"`
	Summary    Summary `json:"summary"`
	Bundle     Bundle  `json:"bundle"`
}

// Bundle is a portable event list. LatestSeq is the height it ends at.
type Bundle struct {
	LatestSeq int64         `json:"latestSeq"`
	Events    []event.Event `json:"events"`
}

// Summary is a denormalized view of the finished game, complete enough to
// render without replaying the bundle.
type Summary struct {
	Mode         event.RosterType  `json:"mode"`
	Players      map[string]string `json:"players"`
	Order        []string          `json:"order"`
	Scores       map[string]int    `json:"scores"`
	Winners      []string          `json:"winners"`
	RoundsScored int               `json:"roundsScored"`
	Roster       *RosterSummary    `json:"roster,omitempty"`
	SP           *SPSummary        `json:"sp,omitempty"`
	SlotMapping  SlotMapping       `json:"slotMapping"`
}

// RosterSummary pins the roster version the game was played with.
type RosterSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PlayerIDs []string `json:"playerIds"`
}

// SPSummary is the single-player slice of a summary.
type SPSummary struct {
	Seed    int64                  `json:"seed"`
	HumanID string                 `json:"humanId,omitempty"`
	RoundNo int                    `json:"roundNo"`
	Phase   event.Phase            `json:"phase"`
	Tallies map[int]map[string]int `json:"tallies,omitempty"`
}

// SlotMapping records which player sat in which seat and under what name, so
// historical references resolve after later renames or reshuffles.
type SlotMapping struct {
	Slots []Slot `json:"slots"`
}

// Slot is one seat, numbered from 1.
type Slot struct {
	Slot int    `json:"slot"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Meta is caller-supplied record metadata. Zero fields get defaults.
type Meta struct {
	ID        string
	Title     string
	CreatedAt int64
}

// Build freezes s and the events that produced it into a record.
func Build(meta Meta, s state.AppState, events []event.Event, height int64, now time.Time) GameRecord {
	id := meta.ID
	if id == "" {
		id = newRecordID()
	}
	sum := Summarize(s)

	created := meta.CreatedAt
	if created == 0 && len(events) > 0 {
		created = events[0].TS
	}
	if created == 0 {
		created = now.UnixMilli()
	}
	title := meta.Title
	if title == "" {
		title = fmt.Sprintf("%s game %s", titleMode(sum.Mode), now.UTC().Format("2006-01-02 15:04"))
	}

	return GameRecord{
		ID:         id,
		Title:      title,
		CreatedAt:  created,
		FinishedAt: now.UnixMilli(),
		LastSeq:    height,
		Summary:    sum,
		Bundle:     Bundle{LatestSeq: height, Events: slices.Clone(events)},
	}
}

// newRecordID prefers time-ordered ids so records sort by creation.
func newRecordID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func titleMode(m event.RosterType) string {
	if m == event.RosterSingle {
		return "Single-player"
	}
	return "Scorecard"
}

// Summarize derives the summary of s.
func Summarize(s state.AppState) Summary {
	sum := Summary{
		Mode:         event.RosterScorecard,
		Players:      make(map[string]string, len(s.Players)),
		Order:        slices.Clone(s.Order),
		Scores:       make(map[string]int, len(s.Order)),
		Winners:      state.Winners(s),
		RoundsScored: state.RoundsScored(s),
	}
	for id, name := range s.Players {
		sum.Players[id] = name
	}
	for _, id := range s.Order {
		sum.Scores[id] = s.Scores[id]
	}
	if s.SP.RoundNo > 0 {
		sum.Mode = event.RosterSingle
		sum.SP = &SPSummary{
			Seed:    s.SP.Seed,
			HumanID: s.SP.HumanID,
			RoundNo: s.SP.RoundNo,
			Phase:   s.SP.Phase,
			Tallies: s.SP.Tallies,
		}
	}
	if r, ok := state.ActiveRoster(s, sum.Mode); ok {
		sum.Roster = &RosterSummary{ID: r.ID, Name: r.Name, PlayerIDs: slices.Clone(r.PlayerIDs)}
	}

	seats := s.Order
	if sum.SP != nil && len(s.SP.Order) > 0 {
		seats = s.SP.Order
	}
	for i, id := range seats {
		sum.SlotMapping.Slots = append(sum.SlotMapping.Slots, Slot{Slot: i + 1, ID: id, Name: s.Players[id]})
	}
	return sum
}
