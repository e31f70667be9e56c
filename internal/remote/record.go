package remote

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the authoritative shape returned by the backend. Every response
// carries the remote identifier and the server-side modification time; the
// remaining entity fields stay opaque in Data.
type Record struct {
	ID        string
	UpdatedAt time.Time
	Data      json.RawMessage
}

// UnmarshalJSON lifts id and updated_at out of the response body and keeps
// the full document as Data.
func (r *Record) UnmarshalJSON(body []byte) error {
	var envelope struct {
		ID        string    `json:"id"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode remote record: %w", err)
	}
	if envelope.ID == "" {
		return fmt.Errorf("remote record has no id")
	}

	r.ID = envelope.ID
	r.UpdatedAt = envelope.UpdatedAt
	r.Data = append(r.Data[:0], body...)
	return nil
}

// MarshalJSON writes the record back out as its raw document.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Data != nil {
		return r.Data, nil
	}
	return json.Marshal(struct {
		ID        string    `json:"id"`
		UpdatedAt time.Time `json:"updated_at"`
	}{r.ID, r.UpdatedAt})
}

func decodeRecord(body []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
