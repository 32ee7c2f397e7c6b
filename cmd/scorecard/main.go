// Command scorecard runs and inspects Oh Hell tables from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jason-s-yu/scorecard/internal/app"
	"github.com/jason-s-yu/scorecard/internal/config"
	"github.com/jason-s-yu/scorecard/internal/logging"
)

type cli struct {
	cfg config.Config
	log *logrus.Logger
	out io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	c := &cli{out: os.Stdout}
	root := &cobra.Command{
		Use:           "scorecard",
		Short:         "Oh Hell scorekeeper and single-player table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, log
			c.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.AddCommand(
		c.simulateCmd(),
		c.stateCmd(),
		c.archivesCmd(),
		c.importCmd(),
		c.relayCmd(),
	)
	return root
}

// withApp opens the configured instance for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := app.Open(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) stateCmd() *cobra.Command {
	var viewer string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if viewer != "" {
					v, err := a.Store.View(viewer)
					if err != nil {
						return err
					}
					return c.printJSON(v)
				}
				st, h, err := a.Store.State()
				if err != nil {
					return err
				}
				return c.printJSON(struct {
					Height int64 `json:"height"`
					State  any   `json:"state"`
				}{h, st})
			})
		},
	}
	cmd.Flags().StringVar(&viewer, "as", "", "print the table as seen by this player id")
	return cmd
}
