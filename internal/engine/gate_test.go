package engine

import "testing"

func TestGate(t *testing.T) {
	tests := []struct {
		name     string
		online   bool
		verified bool
		canSync  bool
		reason   GateReason
	}{
		{"both signals off", false, false, false, GateOffline},
		{"online only", true, false, false, GateUnverified},
		{"verified only", false, true, false, GateOffline},
		{"both signals on", true, true, true, GateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate()
			g.SetOnline(tt.online)
			g.SetVerified(tt.verified)

			if got := g.CanSync(); got != tt.canSync {
				t.Errorf("CanSync = %v, want %v", got, tt.canSync)
			}
			if got := g.Reason(); got != tt.reason {
				t.Errorf("Reason = %v, want %v", got, tt.reason)
			}
		})
	}
}

func TestGateSignalsFlip(t *testing.T) {
	g := NewGate()
	g.SetOnline(true)
	g.SetVerified(true)
	if !g.CanSync() {
		t.Fatal("gate should be open")
	}

	g.SetOnline(false)
	if g.CanSync() {
		t.Error("gate stayed open after going offline")
	}
	if g.Online() {
		t.Error("Online should report the last signal")
	}

	g.SetOnline(true)
	if !g.CanSync() {
		t.Error("gate should reopen when connectivity returns")
	}
}
