// Package merge decides how a pulled remote record is applied locally.
//
// The policy is last-writer-wins by wall-clock timestamp: the side with the
// newer modification time fully overwrites the other. This is a deliberate
// availability-over-consistency choice and a known weakness: there are no
// vector clocks and no per-field merge, so clock skew between devices can
// silently drop the older write. The behavior is pinned by tests rather than
// hidden.
package merge

import (
	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/remote"
)

// Action is the resolver's verdict for one remote record.
type Action int

const (
	// ActionIgnore keeps the local record; it is expected to be pushed on
	// a subsequent cycle.
	ActionIgnore Action = iota

	// ActionInsert creates a fresh local record from the remote one.
	ActionInsert

	// ActionUpdate overwrites the local fields with the remote ones,
	// preserving the local identifiers.
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	default:
		return "ignore"
	}
}

// Resolve compares the local and remote versions of a record. local is nil
// when no record maps to the remote identifier.
//
// Pure function: no I/O, no side effects. The engine owns applying the
// verdict.
func Resolve(local *model.Record, rem remote.Record) Action {
	if local == nil {
		return ActionInsert
	}
	if rem.UpdatedAt.After(local.UpdatedAt) {
		return ActionUpdate
	}
	// Local is newer or equal: local wins, including the equal-timestamp
	// case, so a record never flaps between identical writes.
	return ActionIgnore
}

// Apply materializes the resolver's verdict into the local record shape.
// For ActionInsert, local may be nil; for ActionUpdate the local identifiers
// are kept and only fields and timestamp change. ActionIgnore returns local
// unchanged.
func Apply(action Action, local *model.Record, rem remote.Record, newLocalID string) *model.Record {
	switch action {
	case ActionInsert:
		return &model.Record{
			ID:        newLocalID,
			CloudID:   rem.ID,
			UpdatedAt: rem.UpdatedAt,
			Data:      rem.Data,
		}
	case ActionUpdate:
		merged := *local
		merged.CloudID = rem.ID
		merged.UpdatedAt = rem.UpdatedAt
		merged.Data = rem.Data
		return &merged
	default:
		return local
	}
}
