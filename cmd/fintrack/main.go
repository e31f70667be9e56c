// Command fintrack runs the local-first sync engine for the fintrack
// personal-finance backend: a local SQLite cache of the user's data, a
// durable queue of offline mutations, and a realtime channel for low-latency
// updates from other devices.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagToken  string
)

var rootCmd = &cobra.Command{
	Use:   "fintrack",
	Short: "Local-first sync engine for fintrack",
	Long: `fintrack keeps an offline-capable local store consistent with the
fintrack backend under unreliable connectivity and concurrent edits from
multiple devices.

Local mutations are applied optimistically and queued durably; a sync cycle
pushes the queue to the backend and pulls the authoritative state back
through a last-writer-wins conflict resolver. A websocket channel delivers
change notifications from other devices with low latency.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default ~/.fintrack/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "",
		"bearer token (default $FINTRACK_TOKEN)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

// token returns the bearer token from the flag or environment.
func token() (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if t := os.Getenv("FINTRACK_TOKEN"); t != "" {
		return t, nil
	}
	return "", fmt.Errorf("no token: pass --token or set FINTRACK_TOKEN")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
