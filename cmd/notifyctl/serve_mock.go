package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sonirico/notifyws/internal/mockbackend"
)

func getServeMockCmd(gs *globalState) *cobra.Command {
	var (
		addr   string
		path   string
		every  time.Duration
		unread int
	)

	serveCmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "serve a scripted notification endpoint for local development",
		Long: `Serve a websocket endpoint that answers get_unread_count and ping like the
banking backend does and pushes a card payment notification on every interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend := mockbackend.New(path, gs.logger, mockbackend.Periodic(every, unread))
			srv := &http.Server{
				Addr:              addr,
				Handler:           backend,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errC := make(chan error, 1)
			go func() {
				errC <- srv.ListenAndServe()
			}()

			gs.logger.Infof("serving mock notifications on ws://%s%s", addr, path)

			select {
			case err := <-errC:
				return errors.Wrap(err, "mock server")
			case <-cmd.Context().Done():
			}

			backend.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return srv.Shutdown(ctx)
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	serveCmd.Flags().StringVar(&path, "path", "/ws/notifications", "endpoint path")
	serveCmd.Flags().DurationVar(&every, "every", 5*time.Second, "interval between pushed notifications")
	serveCmd.Flags().IntVar(&unread, "unread", 3, "unread count reported to clients")

	return serveCmd
}
