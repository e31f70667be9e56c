// Package model defines the entity tables and record shapes shared by the
// local store, the sync queue, and the remote client.
//
// A Record is the local, offline-capable shape of an entity: application
// fields live in an opaque JSON document, while the sync metadata (local ID,
// cloud ID, last local mutation time) is lifted into columns the sync engine
// can reason about without knowing the entity type.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table identifies one of the synchronized entity collections.
type Table string

const (
	TableAccounts     Table = "accounts"
	TableTransactions Table = "transactions"
	TableGoals        Table = "goals"
	TableLoans        Table = "loans"
	TableInvestments  Table = "investments"
)

// Tables returns all synchronized tables in a stable order.
func Tables() []Table {
	return []Table{
		TableAccounts,
		TableTransactions,
		TableGoals,
		TableLoans,
		TableInvestments,
	}
}

// ParseTable validates a table name received from the wire.
func ParseTable(s string) (Table, error) {
	switch Table(s) {
	case TableAccounts, TableTransactions, TableGoals, TableLoans, TableInvestments:
		return Table(s), nil
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// Op is the kind of local mutation recorded in the sync queue.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ParseOp validates an operation name read back from the durable queue.
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case OpCreate, OpUpdate, OpDelete:
		return Op(s), nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Record is the local shape of an entity row.
//
// CloudID is empty until the first successful push assigns the remote
// authoritative identifier. At most one record per table may carry a given
// CloudID; the store enforces this with a unique index.
type Record struct {
	// ID is the locally generated identifier (UUID), stable for the
	// lifetime of the record on this device.
	ID string

	// CloudID is the remote authoritative identifier, empty for records
	// that have never been pushed.
	CloudID string

	// UpdatedAt is the wall-clock time of the last local mutation.
	UpdatedAt time.Time

	// Data holds the entity fields as a JSON document.
	Data json.RawMessage
}

// Synced reports whether the record has been assigned a remote identifier.
func (r *Record) Synced() bool {
	return r.CloudID != ""
}
