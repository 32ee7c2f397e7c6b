package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/app"
	"github.com/jason-s-yu/scorecard/internal/archive"
	"github.com/jason-s-yu/scorecard/internal/single"
	"github.com/jason-s-yu/scorecard/internal/state"
)

func (c *cli) simulateCmd() *cobra.Command {
	var (
		players int
		seed    int64
		style   string
		title   string
		keep    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a full bot game and archive it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := engine.Style(style)
			if !st.Valid() {
				return fmt.Errorf("unknown style %q", style)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				sess := single.New(a.Store, single.Options{Logger: c.log})
				if _, err := sess.Start(ctx, single.Setup{Seats: botSeats(players, st), Seed: seed}); err != nil {
					return err
				}
				final, err := sess.PlayOut(ctx)
				if err != nil {
					return err
				}
				c.log.WithFields(logrus.Fields{"seed": seed, "rounds": state.RoundsScored(final)}).Info("game finished")
				if keep {
					return c.printStandings(final)
				}
				rec, err := a.Store.ArchiveCurrentGameAndReset(ctx, archive.Meta{Title: title})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "archived %s (%s)\n", rec.ID, rec.Title)
				return c.printStandings(final)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&players, "players", 4, "number of bot seats")
	f.Int64Var(&seed, "seed", 0, "session seed (0 picks one from the clock)")
	f.StringVar(&style, "style", string(engine.StyleBalanced), "bot style: cautious, balanced or aggressive")
	f.StringVar(&title, "title", "", "archive title")
	f.BoolVar(&keep, "keep", false, "leave the finished game live instead of archiving it")
	return cmd
}

func botSeats(n int, style engine.Style) []single.Seat {
	seats := make([]single.Seat, n)
	for i := range seats {
		seats[i] = single.Seat{
			ID:    fmt.Sprintf("bot-%d", i+1),
			Name:  fmt.Sprintf("Bot %d", i+1),
			Bot:   true,
			Style: style,
		}
	}
	return seats
}

func (c *cli) printStandings(st state.AppState) error {
	for _, s := range state.Standings(st) {
		if _, err := fmt.Fprintf(c.out, "%2d. %-12s %4d\n", s.Rank, s.Name, s.Score); err != nil {
			return err
		}
	}
	return nil
}
