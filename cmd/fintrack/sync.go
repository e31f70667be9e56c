package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fintrackapp/fintrack/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full push+pull sync cycle",
	Long: `Force a single sync cycle:

  1. Push every queued local mutation to the backend
  2. Pull the authoritative state for all tables
  3. Merge pulled records through the conflict resolver

Unlike the daemon's automatic triggers, a blocked gate (offline or
unverified account) is reported as an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		start := time.Now()
		if err := a.engine.ForceSync(ctx); err != nil {
			if errors.Is(err, engine.ErrGateClosed) {
				return fmt.Errorf("cannot sync: %w", err)
			}
			return err
		}

		pending, err := a.engine.PendingCount(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Sync complete in %v (status=%s, pending=%d)\n",
			time.Since(start).Round(time.Millisecond), a.engine.Status().Status, pending)
		return nil
	},
}
