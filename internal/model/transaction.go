// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType carries the direction of money movement; Amount is always positive.
type TransactionType string

const (
	// TypeDebit is money leaving the account.
	TypeDebit TransactionType = "debit"
	// TypeCredit is money entering the account.
	TypeCredit TransactionType = "credit"
)

// Transaction is a candidate row parsed from a bank statement.
type Transaction struct {
	Date        time.Time
	Description string
	Type        TransactionType
	RawData     string // Original line or record, for debugging only
	Amount      decimal.Decimal
}

// NewTransaction builds a transaction from a signed amount. Negative amounts become
// credits. A zero amount or zero date yields ok=false: the row is not a transaction.
func NewTransaction(date time.Time, description string, signed decimal.Decimal, raw string) (Transaction, bool) {
	if date.IsZero() || signed.IsZero() {
		return Transaction{}, false
	}

	txnType := TypeDebit
	if signed.IsNegative() {
		txnType = TypeCredit
	}

	return Transaction{
		Date:        Day(date),
		Description: description,
		Amount:      signed.Abs(),
		Type:        txnType,
		RawData:     raw,
	}, true
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Fingerprint returns the normalized composite key used for cache lookups.
func (t Transaction) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		strings.ToLower(strings.TrimSpace(t.Description)))
}

// GenerateHash creates a stable hash of the fingerprint for storage uniqueness.
func (t Transaction) GenerateHash() string {
	hash := sha256.Sum256([]byte(t.Fingerprint()))
	return fmt.Sprintf("%x", hash)
}

// Validate checks the record-level invariants.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransaction, t.Amount)
	}
	if t.Type != TypeDebit && t.Type != TypeCredit {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.Type)
	}
	return nil
}
