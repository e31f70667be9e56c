package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity payload shapes. These are serialization contracts only; how an EMI
// is computed or how goal progress is displayed is the UI layer's concern.
// Money fields use decimal to avoid float drift across devices.

// Account is a bank account, wallet, or card.
type Account struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"` // bank, cash, card, wallet
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// Transaction is a single income or expense entry.
type Transaction struct {
	AccountID   string          `json:"account_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Direction   string          `json:"direction"` // credit, debit
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Goal is a savings target.
type Goal struct {
	Name     string          `json:"name"`
	Target   decimal.Decimal `json:"target"`
	Saved    decimal.Decimal `json:"saved"`
	Deadline time.Time       `json:"deadline,omitzero"`
}

// Loan is a borrowed amount with an installment schedule.
type Loan struct {
	Lender    string          `json:"lender"`
	Principal decimal.Decimal `json:"principal"`
	Rate      decimal.Decimal `json:"rate"`
	Months    int             `json:"months"`
	StartedAt time.Time       `json:"started_at"`
}

// Investment is a holding in an instrument.
type Investment struct {
	Symbol   string          `json:"symbol"`
	Kind     string          `json:"kind"` // stock, fund, deposit
	Units    decimal.Decimal `json:"units"`
	CostBase decimal.Decimal `json:"cost_base"`
}
