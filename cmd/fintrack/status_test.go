package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/store"
)

func TestAccountTotals(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	tbl := s.Table(model.TableAccounts)
	accounts := []struct {
		id      string
		payload string
	}{
		{"a-1", `{"name":"Checking","kind":"bank","balance":"1200.50","currency":"USD"}`},
		{"a-2", `{"name":"Savings","kind":"bank","balance":"0.10","currency":"USD"}`},
		{"a-3", `{"name":"Cash","kind":"cash","balance":"75","currency":"EUR"}`},
		{"a-4", `"not an account document"`},
	}
	for _, a := range accounts {
		rec := &model.Record{ID: a.id, UpdatedAt: time.Now(), Data: json.RawMessage(a.payload)}
		if err := tbl.Put(ctx, rec); err != nil {
			t.Fatalf("Put %s failed: %v", a.id, err)
		}
	}

	totals, err := accountTotals(ctx, s)
	if err != nil {
		t.Fatalf("accountTotals failed: %v", err)
	}

	// 1200.50 + 0.10 must come out exact, not float-drifted.
	if got := totals["USD"].StringFixed(2); got != "1200.60" {
		t.Errorf("USD total = %s, want 1200.60", got)
	}
	if got := totals["EUR"].StringFixed(2); got != "75.00" {
		t.Errorf("EUR total = %s, want 75.00", got)
	}
}
