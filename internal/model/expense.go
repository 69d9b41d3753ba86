package model

import (
	"fmt"
	"strings"
	"time"
)

// ExpenseSource records how an expense entered the ledger.
type ExpenseSource string

// SourceImport marks expenses written by a statement import.
const SourceImport ExpenseSource = "import"

// Expense is a persisted shared-expense record.
type Expense struct {
	CreatedAt   time.Time
	ID          string
	CoupleID    string
	PaidBy      string
	CategoryKey string
	Source      ExpenseSource
	ReceiptRef  string
	Hash        string
	Transaction
}

// Validate checks that the expense can be written.
func (e *Expense) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil expense", ErrInvalidExpense)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidExpense)
	}
	if strings.TrimSpace(e.CoupleID) == "" {
		return fmt.Errorf("%w: missing couple ID", ErrInvalidExpense)
	}
	if err := e.Transaction.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExpense, err)
	}
	return nil
}

// ExpenseEventKind describes a change pushed to subscribers.
type ExpenseEventKind string

const (
	ExpenseAdded ExpenseEventKind = "added"
)

// ExpenseEvent is delivered to storage subscribers after a committed write.
type ExpenseEvent struct {
	Kind     ExpenseEventKind
	CoupleID string
	Expenses []Expense
}
