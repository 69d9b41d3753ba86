// Package testutil provides shared fixtures for tests that need a real ledger
// database.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB is a migrated sqlite ledger scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a file-backed database in t.TempDir, migrates it and
// seeds the given expenses. It is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewExpense("couple-1", "2024-01-15", "Starbucks Coffee", "5.50").Build(),
//	)
func SetupTestDB(t *testing.T, seed ...model.Expense) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "tandem.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{Storage: store, t: t}
	if len(seed) > 0 {
		db.MustSave(seed...)
	}
	return db
}

// MustSave writes expenses or fails the test.
func (db *TestDB) MustSave(expenses ...model.Expense) {
	db.t.Helper()
	if _, err := db.Storage.SaveExpenses(context.Background(), expenses); err != nil {
		db.t.Fatalf("failed to seed expenses: %v", err)
	}
}

// MustCount returns how many expenses a couple has or fails the test.
func (db *TestDB) MustCount(coupleID string) int {
	db.t.Helper()
	n, err := db.Storage.CountExpenses(context.Background(), coupleID)
	if err != nil {
		db.t.Fatalf("failed to count expenses: %v", err)
	}
	return n
}

// ExpenseBuilder assembles an expense fixture.
type ExpenseBuilder struct {
	expense model.Expense
}

// NewExpense starts a debit expense. date is YYYY-MM-DD and amount a decimal
// string; both panic when malformed since fixtures are static.
func NewExpense(coupleID, date, description, amount string) *ExpenseBuilder {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return &ExpenseBuilder{expense: model.Expense{
		ID:       coupleID + "-" + date + "-" + description,
		CoupleID: coupleID,
		Source:   model.SourceImport,
		Transaction: model.Transaction{
			Date:        day,
			Description: description,
			Amount:      decimal.RequireFromString(amount),
			Type:        model.TypeDebit,
		},
	}}
}

// WithID overrides the generated ID.
func (b *ExpenseBuilder) WithID(id string) *ExpenseBuilder {
	b.expense.ID = id
	return b
}

// WithCategory sets the category key.
func (b *ExpenseBuilder) WithCategory(key string) *ExpenseBuilder {
	b.expense.CategoryKey = key
	return b
}

// PaidBy sets the paying partner.
func (b *ExpenseBuilder) PaidBy(partner string) *ExpenseBuilder {
	b.expense.PaidBy = partner
	return b
}

// AsCredit marks the expense as money coming in.
func (b *ExpenseBuilder) AsCredit() *ExpenseBuilder {
	b.expense.Type = model.TypeCredit
	return b
}

// Build returns the expense.
func (b *ExpenseBuilder) Build() model.Expense {
	return b.expense
}
