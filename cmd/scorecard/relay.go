package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/scorecard/internal/signal"
)

const shutdownGrace = 5 * time.Second

func (c *cli) relayCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket signal relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.cfg.RelayAddr
			}
			relay := signal.NewRelay(c.log)
			g, ctx := errgroup.WithContext(cmd.Context())
			srv := &http.Server{
				Addr:              addr,
				Handler:           relay,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			g.Go(func() error {
				c.log.WithField("addr", addr).Info("relay listening")
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				c.log.WithField("clients", relay.Clients()).Info("relay shutting down")
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default SCORECARD_RELAY_ADDR)")
	return cmd
}
