package statement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableStatement = `First Community Bank
Account Number: 1234-5678-9012
Statement Period: 01/01/2024 to 31/01/2024

Date          Description                      Amount        Balance
02/01/2024    TESCO STORES 2231                 45.20      1,954.80
03/01/2024    SALARY ACME LTD                 (2,500.00)   4,454.80
05/01/2024    NETFLIX.COM                        9.99      4,444.81
07/01/2024    SHELL   PETROL   STATION          60.00      4,384.81
09/01/2024    TOTAL WINE & MORE                 32.15      4,352.66
11/01/2024    REFUND AMAZON                     15.00CR    4,367.66
Closing balance                                            4,367.66
12/01/2024    IGNORED AFTER END                 10.00      4,357.66
`

func TestTableStrategy_Attempt(t *testing.T) {
	txns := NewTableStrategy().Attempt(tableStatement)
	require.Len(t, txns, 6)

	assert.Equal(t, "TESCO STORES 2231", txns[0].Description)
	assert.Equal(t, "45.2", txns[0].Amount.String())
	assert.Equal(t, model.TypeDebit, txns[0].Type)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), txns[0].Date)

	assert.Equal(t, "SALARY ACME LTD", txns[1].Description)
	assert.Equal(t, "2500", txns[1].Amount.String())
	assert.Equal(t, model.TypeCredit, txns[1].Type)

	assert.Equal(t, "SHELL PETROL STATION", txns[3].Description)
	assert.Equal(t, "TOTAL WINE & MORE", txns[4].Description, "rows mentioning totals still parse")

	assert.Equal(t, model.TypeCredit, txns[5].Type)
	assert.Equal(t, "15", txns[5].Amount.String())
}

func TestTableStrategy_NoHeader(t *testing.T) {
	txns := NewTableStrategy().Attempt("02/01/2024    TESCO    45.20\n")
	assert.Empty(t, txns)
}

func TestTableStrategy_ValueDateColumn(t *testing.T) {
	text := "Date  Value Date  Details  Amount\n" +
		"02/01/2024  03/01/2024  CORNER SHOP  4.50\n"

	txns := NewTableStrategy().Attempt(text)
	require.Len(t, txns, 1)
	assert.Equal(t, "CORNER SHOP", txns[0].Description)
}

func TestPatternStrategy_Attempt(t *testing.T) {
	text := `Your transactions
2024-01-15 Starbucks Coffee 5.50
2024-01-16 Grocery Store 42.10 CR 1,000.00
15/01/2024 Starbucks Coffee 5.50
17 Jan 2024 Uber Trip 12.00 DR
Jan 18, 2024 City Parking $3.00
not a transaction line 9.99`

	txns := NewPatternStrategy(DefaultPatterns()).Attempt(text)
	require.Len(t, txns, 4, "the day-first duplicate of the ISO row is dropped")

	byDesc := make(map[string]model.Transaction)
	for _, txn := range txns {
		byDesc[txn.Description] = txn
	}

	assert.Equal(t, model.TypeCredit, byDesc["Grocery Store"].Type)
	assert.Equal(t, "42.1", byDesc["Grocery Store"].Amount.String())
	assert.Equal(t, model.TypeDebit, byDesc["Uber Trip"].Type)
	assert.Equal(t, "3", byDesc["City Parking"].Amount.String())
}

func TestCompilePatterns_Invalid(t *testing.T) {
	_, err := CompilePatterns([]Pattern{{Name: "broken", Regex: `[oops`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile pattern")

	_, err = CompilePatterns([]Pattern{{Name: "groupless", Regex: `(\d+)`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define")
}

func TestPatternStrategy_CustomLayout(t *testing.T) {
	compiled, err := CompilePatterns([]Pattern{{
		Name:  "pipe",
		Regex: `(?m)^(?P<date>\d{4}-\d{2}-\d{2})\|(?P<desc>[^|\n]+)\|(?P<amount>-?\d+\.\d{2})$`,
	}})
	require.NoError(t, err)

	text := "2024-01-15|Corner Bakery|4.25\n2024-01-16|Refund Corner Bakery|-4.25\n"
	result, err := NewParser(WithStrategies(NewPatternStrategyFromCompiled(compiled))).
		ParseText(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "pattern", result.Strategy)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "Corner Bakery", result.Transactions[0].Description)
	assert.Equal(t, model.TypeDebit, result.Transactions[0].Type)
	assert.Equal(t, model.TypeCredit, result.Transactions[1].Type)
	assert.Equal(t, "4.25", result.Transactions[1].Amount.StringFixed(2))
}

func TestParser_ParseText_TablePreferred(t *testing.T) {
	result, err := NewParser().ParseText(context.Background(), tableStatement)
	require.NoError(t, err)

	assert.Equal(t, "table", result.Strategy)
	assert.Len(t, result.Transactions, 6)
	assert.Equal(t, "First Community Bank", result.Metadata.BankName)
	assert.Equal(t, "1234-5678-9012", result.Metadata.AccountNumber)
	assert.Equal(t, "01/01/2024 to 31/01/2024", result.Metadata.StatementPeriod)
}

func TestParser_ParseText_FallsBackToPatterns(t *testing.T) {
	text := `Date  Description  Amount
2024-03-01  ONE  1.00
Some narrative section
2024-03-05 Coffee House 4.20
2024-03-02 Bakery 3.10
2024-03-04 Bookshop 18.00
2024-03-03 Cinema 22.00
`
	result, err := NewParser().ParseText(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, "pattern", result.Strategy)
	require.Len(t, result.Transactions, 5)
	for i := 1; i < len(result.Transactions); i++ {
		assert.False(t, result.Transactions[i].Date.Before(result.Transactions[i-1].Date), "sorted ascending")
	}
}

func TestParser_ParseText_RoundTrip(t *testing.T) {
	text := "2024-02-03 Item C 3.00\n2024-02-01 Item A 1.00\n2024-02-02 Item B 2.00\n2024-02-01 Item A 1.00\n"

	result, err := NewParser().ParseText(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)
	assert.Equal(t, "Item A", result.Transactions[0].Description)
	assert.Equal(t, "Item C", result.Transactions[2].Description)
}

func TestParser_ParseText_Errors(t *testing.T) {
	parser := NewParser()

	_, err := parser.ParseText(context.Background(), "   \n\t")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrorTypeNoReadableData, parseErr.Type)
	assert.NotEmpty(t, parseErr.Suggestions)

	_, err = parser.ParseText(context.Background(), "Dear customer,\nthank you for banking with us.")
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrorTypeNoTransactions, parseErr.Type)
	assert.NotEmpty(t, parseErr.Suggestions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = parser.ParseText(ctx, tableStatement)
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrorTypeExtractionFailed, parseErr.Type)
	assert.ErrorIs(t, err, context.Canceled)
}

type panickyStrategy struct{}

func (panickyStrategy) Name() string { return "panicky" }

func (panickyStrategy) Attempt(string) []model.Transaction { panic("boom") }

func TestParser_ParseText_RecoversPanics(t *testing.T) {
	parser := NewParser(WithStrategies(panickyStrategy{}))

	_, err := parser.ParseText(context.Background(), "anything")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrorTypeExtractionFailed, parseErr.Type)
	assert.Contains(t, err.Error(), "boom")
}

type fixedStrategy struct {
	name string
	txns []model.Transaction
	runs *int
}

func (s fixedStrategy) Name() string { return s.name }

func (s fixedStrategy) Attempt(string) []model.Transaction {
	*s.runs++
	return s.txns
}

func makeTxns(n int) []model.Transaction {
	txns := make([]model.Transaction, n)
	for i := range txns {
		txns[i] = model.Transaction{
			Date:        time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			Description: "row",
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Type:        model.TypeDebit,
		}
	}
	return txns
}

func TestParser_StrategyOrder(t *testing.T) {
	tests := []struct {
		name       string
		first      int
		second     int
		wantWinner string
		wantRuns   int
	}{
		{name: "first meets minimum", first: 5, second: 9, wantWinner: "first", wantRuns: 1},
		{name: "second larger", first: 2, second: 3, wantWinner: "second", wantRuns: 2},
		{name: "tie keeps first", first: 3, second: 3, wantWinner: "first", wantRuns: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := 0
			parser := NewParser(WithStrategies(
				fixedStrategy{name: "first", txns: makeTxns(tt.first), runs: &runs},
				fixedStrategy{name: "second", txns: makeTxns(tt.second), runs: &runs},
			))

			result, err := parser.ParseText(context.Background(), "text")
			require.NoError(t, err)
			assert.Equal(t, tt.wantWinner, result.Strategy)
			assert.Equal(t, tt.wantRuns, runs)
		})
	}
}

func TestDedupeKey(t *testing.T) {
	txn := model.Transaction{
		Date:        time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		Description: "A VERY LONG MERCHANT DESCRIPTION THAT KEEPS GOING",
		Amount:      decimal.RequireFromString("7.5"),
	}
	assert.Equal(t, "2024-05-06|7.50|A VERY LONG MERCHANT", DedupeKey(txn))
}

func TestAsParseError(t *testing.T) {
	assert.Nil(t, AsParseError(nil))

	original := NewNoTransactionsError(FormatPDF)
	assert.Same(t, original, AsParseError(original))

	wrapped := AsParseError(errors.New("disk exploded"))
	assert.Equal(t, ErrorTypeExtractionFailed, wrapped.Type)
	assert.NotEmpty(t, wrapped.Suggestions)
	assert.Contains(t, wrapped.Error(), "disk exploded")
}
