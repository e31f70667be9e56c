package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fintrackapp/fintrack/internal/engine"
	"github.com/fintrackapp/fintrack/internal/realtime"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine until interrupted",
	Long: `Run the sync engine in the foreground.

The daemon:
  1. Performs an initial full sync
  2. Syncs periodically and after every local mutation
  3. Holds a websocket channel open for change notifications from
     other devices, reconnecting with exponential backoff
  4. Shuts down cleanly on SIGINT/SIGTERM`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		a.engine.Subscribe(func(ev engine.StatusEvent) {
			a.logger.Printf("Status: %s (pending=%d)", ev.Status, ev.Pending)
		})

		// The websocket doubles as the reachability signal: a live
		// channel means the backend is reachable, an exhausted
		// reconnect loop means it is not.
		chConfig := realtime.DefaultConfig(a.cfg.WSURL, a.creds.Token, a.creds.DeviceID)
		chConfig.BackoffBase = a.cfg.WSBackoffBase
		chConfig.BackoffCap = a.cfg.WSBackoffCap
		chConfig.MaxAttempts = a.cfg.WSMaxAttempts
		chConfig.Logger = a.logger
		chConfig.OnDown = func(err error) {
			a.logger.Printf("Realtime channel down: %v", err)
			a.engine.NotifyOnline(context.Background(), false)
		}

		var ch *realtime.Channel
		if a.cfg.WSURL != "" {
			ch, err = realtime.NewChannel(chConfig)
			if err != nil {
				return err
			}
			defer ch.Close()

			a.engine.AttachRealtime(ch)

			if err := ch.Connect(ctx); err != nil {
				// Not fatal: REST sync still works; the channel
				// retries on the next explicit connect.
				a.logger.Printf("Realtime connect failed: %v", err)
			}
		}

		a.engine.Start(ctx)
		defer a.engine.Stop()

		a.logger.Printf("Daemon running (user=%s, interval=%v)", a.creds.UserID, a.cfg.SyncInterval)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			fmt.Fprintf(os.Stderr, "\nReceived %v, shutting down\n", s)
		case <-ctx.Done():
		}

		return nil
	},
}
