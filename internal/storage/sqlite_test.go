package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testExpense(id string, day int, desc, amount string) model.Expense {
	return model.Expense{
		ID:       id,
		CoupleID: "couple-1",
		PaidBy:   "alex",
		Source:   model.SourceImport,
		Transaction: model.Transaction{
			Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
			Description: desc,
			Amount:      decimal.RequireFromString(amount),
			Type:        model.TypeDebit,
		},
	}
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Re-running is a no-op.
	require.NoError(t, store.Migrate(ctx))

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_expenses_couple_date'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestSQLiteStorage_SaveAndQueryExpenses(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	expenses := []model.Expense{
		testExpense("e1", 5, "Starbucks Coffee", "5.50"),
		testExpense("e2", 10, "Grocery Store", "42.10"),
		testExpense("e3", 20, "Cinema", "18.00"),
	}

	n, err := store.SaveExpenses(ctx, expenses)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.GetExpensesSince(ctx, "couple-1", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
	assert.True(t, decimal.RequireFromString("42.10").Equal(got[0].Amount))
	assert.Equal(t, model.TypeDebit, got[0].Type)
	assert.Equal(t, model.SourceImport, got[0].Source)
	assert.Equal(t, expenses[1].GenerateHash(), got[0].Hash)
	assert.False(t, got[0].CreatedAt.IsZero())

	other, err := store.GetExpensesSince(ctx, "couple-2", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStorage_SaveExpensesSkipsExistingHashes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.SaveExpenses(ctx, []model.Expense{testExpense("e1", 5, "Starbucks Coffee", "5.50")})
	require.NoError(t, err)

	// Same date, amount and description under a new ID.
	n, err := store.SaveExpenses(ctx, []model.Expense{
		testExpense("e2", 5, "starbucks coffee ", "5.5"),
		testExpense("e3", 6, "Bakery", "3.10"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountExpenses(ctx, "couple-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteStorage_SaveExpensesIsAtomic(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	bad := testExpense("e2", 6, "", "3.10")
	_, err := store.SaveExpenses(ctx, []model.Expense{testExpense("e1", 5, "Coffee", "2.00"), bad})
	require.ErrorIs(t, err, model.ErrInvalidExpense)

	count, err := store.CountExpenses(ctx, "couple-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteStorage_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.SaveExpenses(ctx, nil)
	require.ErrorIs(t, err, ErrNilParameter)

	_, err = store.SaveExpenses(ctx, []model.Expense{})
	require.ErrorIs(t, err, ErrEmptySlice)

	_, err = store.GetExpensesSince(ctx, " ", time.Time{})
	require.ErrorIs(t, err, ErrEmptyString)

	//nolint:staticcheck // exercising the nil guard
	_, err = store.GetExpense(nil, "e1")
	require.ErrorIs(t, err, ErrNilContext)
}

func TestSQLiteStorage_GetExpense(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	exp := testExpense("e1", 5, "Starbucks Coffee", "5.50")
	exp.CategoryKey = "dining"
	exp.ReceiptRef = "receipts/e1.jpg"
	_, err := store.SaveExpenses(ctx, []model.Expense{exp})
	require.NoError(t, err)

	got, err := store.GetExpense(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "dining", got.CategoryKey)
	assert.Equal(t, "receipts/e1.jpg", got.ReceiptRef)
	assert.Equal(t, "alex", got.PaidBy)
	assert.Equal(t, exp.Date, got.Date)

	_, err = store.GetExpense(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_KeyValue(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Get(ctx, "queue")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.Set(ctx, "queue", []byte(`[1]`)))
	require.NoError(t, store.Set(ctx, "queue", []byte(`[1,2]`)))

	value, err := store.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(value))

	require.NoError(t, store.Delete(ctx, "queue"))
	require.NoError(t, store.Delete(ctx, "queue"))
	_, err = store.Get(ctx, "queue")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_Subscribe(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	events := store.Subscribe(ctx)

	_, err := store.SaveExpenses(context.Background(), []model.Expense{testExpense("e1", 5, "Coffee", "2.00")})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, model.ExpenseAdded, event.Kind)
		assert.Equal(t, "couple-1", event.CoupleID)
		require.Len(t, event.Expenses, 1)
		assert.Equal(t, "e1", event.Expenses[0].ID)
	case <-time.After(time.Second):
		t.Fatal("expected an expense event")
	}

	// A write that inserts nothing publishes nothing.
	_, err = store.SaveExpenses(context.Background(), []model.Expense{testExpense("e9", 5, "Coffee", "2.00")})
	require.NoError(t, err)
	select {
	case event := <-events:
		t.Fatalf("unexpected event: %+v", event)
	default:
	}

	cancel()
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSQLiteStorage_CloseEndsSubscriptions(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	events := store.Subscribe(context.Background())
	require.NoError(t, store.Close())

	_, open := <-events
	assert.False(t, open)
}
