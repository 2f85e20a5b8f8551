package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tgbroadcast/internal/app"
	logx "tgbroadcast/pkg/logx"
)

func serveCmd() *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduled broadcasts and the config watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				a.Close()
				return err
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			fatal := a.Err()
			if fatal != nil {
				a.Logger().Error("fatal error", logx.Err(fatal))
			}
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			return fatal
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "upper bound for a graceful shutdown")
	return cmd
}
