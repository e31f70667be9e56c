package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fintrackapp/fintrack/internal/config"
	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local cache and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.InitSchema(ctx); err != nil {
			return err
		}

		userID, err := st.UserID(ctx)
		if err != nil {
			return err
		}
		lastSynced, err := st.LastSyncedAt(ctx)
		if err != nil {
			return err
		}
		pending, err := st.Queue().Len(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Store:        %s\n", cfg.DBPath)
		if userID == "" {
			fmt.Println("User:         (no cached session)")
		} else {
			fmt.Printf("User:         %s\n", userID)
		}
		if lastSynced.IsZero() {
			fmt.Println("Last synced:  never")
		} else {
			fmt.Printf("Last synced:  %s\n", lastSynced.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Pending ops:  %d\n", pending)

		for _, table := range model.Tables() {
			n, err := st.Table(table).Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("  %-13s %d records\n", table+":", n)
		}

		totals, err := accountTotals(ctx, st)
		if err != nil {
			return err
		}
		if len(totals) > 0 {
			fmt.Println("Balances:")
			currencies := make([]string, 0, len(totals))
			for currency := range totals {
				currencies = append(currencies, currency)
			}
			sort.Strings(currencies)
			for _, currency := range currencies {
				fmt.Printf("  %-13s %s\n", currency+":", totals[currency].StringFixed(2))
			}
		}

		return nil
	},
}

// accountTotals sums the cached account balances per currency. A payload
// that fails to decode is skipped rather than failing the whole report.
func accountTotals(ctx context.Context, st *store.Store) (map[string]decimal.Decimal, error) {
	records, err := st.Table(model.TableAccounts).List(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, rec := range records {
		var acct model.Account
		if err := json.Unmarshal(rec.Data, &acct); err != nil {
			continue
		}
		totals[acct.Currency] = totals[acct.Currency].Add(acct.Balance)
	}
	return totals, nil
}
