package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jason-s-yu/scorecard/internal/app"
	"github.com/jason-s-yu/scorecard/internal/archive"
)

func (c *cli) archivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List, show and delete archived games",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived games, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				recs, err := a.Store.Archives(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tFINISHED\tROUNDS\tWINNERS")
				for _, r := range recs {
					winners := make([]string, 0, len(r.Summary.Winners))
					for _, id := range r.Summary.Winners {
						winners = append(winners, r.Summary.Players[id])
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						r.ID, r.Title,
						time.UnixMilli(r.FinishedAt).Format(time.DateTime),
						r.Summary.RoundsScored,
						strings.Join(winners, ", "))
				}
				return w.Flush()
			})
		},
	}

	var player string
	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print an archived game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				rec, err := a.Store.LoadArchive(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if player != "" {
					id, how := archive.Resolve(rec.Summary, player)
					if how == archive.MatchNone {
						return fmt.Errorf("no player %q in %s", player, rec.ID)
					}
					_, err := fmt.Fprintf(c.out, "%s -> %s (%s) score %d\n", player, id, how, rec.Summary.Scores[id])
					return err
				}
				return c.printJSON(rec)
			})
		},
	}
	show.Flags().StringVar(&player, "player", "", "resolve a player by id, name or \"player N\"")

	var full bool
	export := &cobra.Command{
		Use:   "export ID",
		Short: "Write an archived game's event bundle to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				rec, err := a.Store.LoadArchive(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if full {
					return c.printJSON(rec)
				}
				return c.printJSON(rec.Bundle)
			})
		},
	}
	export.Flags().BoolVar(&full, "full", false, "write the whole record, not just the bundle")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an archived game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				return a.Store.DeleteArchive(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(list, show, export, del)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var (
		asRecord bool
		title    string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import an event bundle into the live game or as an archive",
		Long: "Import reads a JSON bundle ({\"latestSeq\":N,\"events\":[...]}). By default the\n" +
			"events are appended to the live game, skipping any already applied.\n" +
			"With --record the bundle becomes a new archived game instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var b archive.Bundle
			if err := json.Unmarshal(data, &b); err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if asRecord {
					rec, err := a.Store.ImportRecord(cmd.Context(), b, archive.Meta{Title: title})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.out, "archived %s (%s)\n", rec.ID, rec.Title)
					return err
				}
				res, err := a.Store.SoftImport(cmd.Context(), b)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.out, "applied %d of %d events, height %d\n", res.Applied, len(b.Events), res.Height)
				if res.Warning != nil {
					c.log.WithError(res.Warning).Warn("import not yet durable")
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asRecord, "record", false, "store as an archived game instead of appending")
	cmd.Flags().StringVar(&title, "title", "", "archive title for --record")
	return cmd
}
