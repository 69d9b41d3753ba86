package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/cache"
	"github.com/Veraticus/tandem/internal/categorize"
	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/dedup"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/service"
	"github.com/Veraticus/tandem/internal/statement"
	"github.com/Veraticus/tandem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementCSV = `Date,Description,Amount
2024-01-15,Starbucks Coffee,5.50
2024-01-17,Whole Foods Market,42.10
2024-01-18,Shell Gas Station,30.00
2024-01-20,Bob Smith,12.00
`

func newTestService(t *testing.T, store service.ExpenseStore) *Service {
	t.Helper()
	reader := statement.NewReader(statement.NewParser(), statement.NewCSVParser(nil), nil, nil)
	svc := New(reader, store,
		cache.NewResultCache(cache.DefaultTTL, nil),
		dedup.NewDetector(dedup.DefaultConfig()),
		categorize.NewSuggester(categorize.DefaultVocabulary()),
		DefaultConfig(), nil)
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("exp-%d", ids)
	}
	return svc
}

func existingCoffee() model.Expense {
	return testutil.NewExpense("couple-1", "2024-01-15", "Starbucks Coffee", "5.50").WithID("existing").Build()
}

func TestService_Preview(t *testing.T) {
	store := testutil.SetupTestDB(t, existingCoffee()).Storage
	ctx := context.Background()

	svc := newTestService(t, store)

	var progress []int
	preview, err := svc.Preview(ctx, PreviewRequest{
		CoupleID: "couple-1",
		Format:   statement.FormatCSV,
		Data:     []byte(statementCSV),
		Progress: func(done, _ int) { progress = append(progress, done) },
	})
	require.NoError(t, err)
	require.Len(t, preview.Rows, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.Equal(t, 1, preview.Duplicates)
	assert.Equal(t, 1, preview.AutoSkip)

	coffee := preview.Rows[0]
	assert.True(t, coffee.Duplicate.HasDuplicates)
	assert.True(t, coffee.Duplicate.AutoSkip)
	assert.InDelta(t, 1.0, coffee.Duplicate.HighestConfidence, 0.001)
	assert.False(t, coffee.Selected, "auto-skipped rows start unselected")
	assert.Equal(t, "dining", coffee.Category.CategoryKey)

	assert.Equal(t, "groceries", preview.Rows[1].Category.CategoryKey)
	assert.True(t, preview.Rows[1].Selected)
	assert.Equal(t, "transport", preview.Rows[2].Category.CategoryKey)
	assert.Equal(t, model.CategoryOther, preview.Rows[3].Category.CategoryKey)

	assert.Len(t, preview.Selected(), 3)
}

func TestService_PreviewParseError(t *testing.T) {
	svc := newTestService(t, testutil.SetupTestDB(t).Storage)

	_, err := svc.Preview(context.Background(), PreviewRequest{
		CoupleID: "couple-1",
		Format:   statement.FormatCSV,
		Data:     []byte("Date,Description,Amount\n"),
	})

	var parseErr *statement.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, statement.ErrorTypeNoTransactions, parseErr.Type)
}

func TestService_PreviewRequiresCouple(t *testing.T) {
	svc := newTestService(t, testutil.SetupTestDB(t).Storage)

	_, err := svc.Preview(context.Background(), PreviewRequest{Format: statement.FormatCSV, Data: []byte(statementCSV)})
	require.Error(t, err)
}

func TestService_Commit(t *testing.T) {
	db := testutil.SetupTestDB(t, existingCoffee())
	store := db.Storage
	ctx := context.Background()

	svc := newTestService(t, store)
	req := PreviewRequest{CoupleID: "couple-1", Format: statement.FormatCSV, Data: []byte(statementCSV)}

	preview, err := svc.Preview(ctx, req)
	require.NoError(t, err)

	result, err := svc.Commit(ctx, CommitRequest{CoupleID: "couple-1", PaidBy: "sam", Rows: preview.Rows})
	require.NoError(t, err)
	assert.Equal(t, CommitResult{Saved: 3}, result)

	saved, err := store.GetExpense(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Whole Foods Market", saved.Description)
	assert.Equal(t, "groceries", saved.CategoryKey)
	assert.Equal(t, "sam", saved.PaidBy)
	assert.Equal(t, model.SourceImport, saved.Source)

	unknown, err := store.GetExpense(ctx, "exp-3")
	require.NoError(t, err)
	assert.Empty(t, unknown.CategoryKey, "fallback categories are not applied")

	// A second preview sees the committed rows as duplicates.
	again, err := svc.Preview(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 4, again.AutoSkip)
	assert.Empty(t, again.Selected())

	// Forcing every row back in writes nothing new.
	for i := range again.Rows {
		again.Rows[i].Selected = true
	}
	result, err = svc.Commit(ctx, CommitRequest{CoupleID: "couple-1", Rows: again.Rows})
	require.NoError(t, err)
	assert.Equal(t, CommitResult{Saved: 0, Existing: 4}, result)

	assert.Equal(t, 4, db.MustCount("couple-1"))
}

func TestService_DuplicateResultsStayWithinCouple(t *testing.T) {
	ctx := context.Background()
	coupleTwo := PreviewRequest{CoupleID: "couple-2", Format: statement.FormatCSV, Data: []byte(statementCSV)}

	coldDB := testutil.SetupTestDB(t, existingCoffee())
	cold, err := newTestService(t, coldDB.Storage).Preview(ctx, coupleTwo)
	require.NoError(t, err)

	warmDB := testutil.SetupTestDB(t, existingCoffee())
	require.Equal(t, 1, warmDB.MustCount("couple-1"))
	require.Zero(t, warmDB.MustCount("couple-2"))

	warm := newTestService(t, warmDB.Storage)
	first, err := warm.Preview(ctx, PreviewRequest{CoupleID: "couple-1", Format: statement.FormatCSV, Data: []byte(statementCSV)})
	require.NoError(t, err)
	require.Equal(t, 1, first.Duplicates)

	second, err := warm.Preview(ctx, coupleTwo)
	require.NoError(t, err)

	assert.Equal(t, cold.Rows, second.Rows, "a warm cache answers the same as a cold one")
	assert.Zero(t, second.Duplicates)
	assert.Len(t, second.Selected(), 4)
}

func TestService_DuplicatesRespectDirection(t *testing.T) {
	const purchaseAndRefund = `Date,Description,Amount
2024-01-15,Starbucks Coffee,5.50
2024-01-15,Starbucks Coffee,-5.50
`
	tests := []struct {
		name        string
		history     model.Expense
		wantDupRows []bool
	}{
		{
			name:        "purchase on file",
			history:     existingCoffee(),
			wantDupRows: []bool{true, false},
		},
		{
			name: "refund on file",
			history: testutil.NewExpense("couple-1", "2024-01-15", "Starbucks Coffee", "5.50").
				WithCategory("dining").
				AsCredit().
				Build(),
			wantDupRows: []bool{false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, testutil.SetupTestDB(t, tt.history).Storage)

			preview, err := svc.Preview(context.Background(), PreviewRequest{
				CoupleID: "couple-1",
				Format:   statement.FormatCSV,
				Data:     []byte(purchaseAndRefund),
			})
			require.NoError(t, err)
			require.Len(t, preview.Rows, 2)

			got := make([]bool, len(preview.Rows))
			for i, row := range preview.Rows {
				got[i] = row.Duplicate.HasDuplicates
			}
			assert.Equal(t, tt.wantDupRows, got)
		})
	}
}

func TestService_CommitNothingSelected(t *testing.T) {
	svc := newTestService(t, testutil.SetupTestDB(t).Storage)

	_, err := svc.Commit(context.Background(), CommitRequest{
		CoupleID: "couple-1",
		Rows:     []Row{{Selected: false}},
	})
	require.ErrorIs(t, err, common.ErrNoTransactions)
}

type failingStore struct {
	err error
}

func (f failingStore) GetExpensesSince(context.Context, string, time.Time) ([]model.Expense, error) {
	return nil, f.err
}

func (f failingStore) SaveExpenses(context.Context, []model.Expense) (int, error) {
	return 0, f.err
}

func TestService_StoreErrors(t *testing.T) {
	diskErr := errors.New("disk I/O error")
	svc := newTestService(t, failingStore{err: diskErr})
	ctx := context.Background()

	_, err := svc.Preview(ctx, PreviewRequest{CoupleID: "couple-1", Format: statement.FormatCSV, Data: []byte(statementCSV)})
	require.ErrorIs(t, err, diskErr)

	_, err = svc.Commit(ctx, CommitRequest{CoupleID: "couple-1", Rows: []Row{{
		Selected:    true,
		Transaction: existingCoffee().Transaction,
	}}})
	require.ErrorIs(t, err, diskErr)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
}
