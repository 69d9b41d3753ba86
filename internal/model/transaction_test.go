package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	date := time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name     string
		signed   decimal.Decimal
		date     time.Time
		wantOK   bool
		wantType TransactionType
		wantAmt  string
	}{
		{name: "positive is debit", signed: decimal.RequireFromString("5.50"), date: date, wantOK: true, wantType: TypeDebit, wantAmt: "5.5"},
		{name: "negative is credit", signed: decimal.RequireFromString("-42.10"), date: date, wantOK: true, wantType: TypeCredit, wantAmt: "42.1"},
		{name: "zero is skipped", signed: decimal.Zero, date: date, wantOK: false},
		{name: "missing date is skipped", signed: decimal.NewFromInt(1), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, ok := NewTransaction(tt.date, "Coffee", tt.signed, "raw")
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantType, txn.Type)
			assert.Equal(t, tt.wantAmt, txn.Amount.String())
			assert.True(t, txn.Amount.IsPositive())
			assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), txn.Date)
			require.NoError(t, txn.Validate())
		})
	}
}

func TestTransaction_Fingerprint(t *testing.T) {
	a := Transaction{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "  Starbucks Coffee ",
		Amount:      decimal.RequireFromString("5.5"),
		Type:        TypeDebit,
		RawData:     "line 1",
	}
	b := a
	b.Description = "STARBUCKS COFFEE"
	b.RawData = "line 2"

	assert.Equal(t, "2024-03-01|5.50|starbucks coffee", a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "raw data and case never affect the fingerprint")
	assert.Equal(t, a.GenerateHash(), b.GenerateHash())

	b.Amount = decimal.RequireFromString("5.51")
	assert.NotEqual(t, a.GenerateHash(), b.GenerateHash())
}

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Rent",
		Amount:      decimal.NewFromInt(1200),
		Type:        TypeDebit,
	}
	require.NoError(t, valid.Validate())

	negative := valid
	negative.Amount = decimal.NewFromInt(-3)
	assert.ErrorIs(t, negative.Validate(), ErrInvalidTransaction)

	noType := valid
	noType.Type = ""
	assert.ErrorIs(t, noType.Validate(), ErrInvalidTransaction)
}

func TestQueueItem_Exhausted(t *testing.T) {
	item := QueueItem{Status: UploadFailed, RetryCount: 3}
	assert.True(t, item.Exhausted(3))
	item.RetryCount = 2
	assert.False(t, item.Exhausted(3))
	item.Status = UploadPending
	item.RetryCount = 5
	assert.False(t, item.Exhausted(3))
}

func TestUploadPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityNormal.Rank(), UploadPriority("").Rank())
}
