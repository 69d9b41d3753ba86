package statement

import (
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/normalize"
	"github.com/shopspring/decimal"
)

var (
	tableHeaderDate = regexp.MustCompile(`(?i)\b(date|posted)\b`)
	tableHeaderDesc = regexp.MustCompile(`(?i)\b(description|details|particulars|narrative|transaction|memo|payee)\b`)
	tableEnd        = regexp.MustCompile(`(?i)\b(total|closing balance|balance summary|end of statement|statement summary)\b`)
	tableFieldSplit = regexp.MustCompile(`\t+|\s{2,}`)
	creditMarker    = regexp.MustCompile(`(?i)\s*CR$`)
	debitMarker     = regexp.MustCompile(`(?i)\s*DR$`)
)

// TableStrategy reads column-aligned transaction tables from extracted text.
type TableStrategy struct{}

// NewTableStrategy creates a table-mode strategy.
func NewTableStrategy() *TableStrategy {
	return &TableStrategy{}
}

// Name identifies the strategy in logs and results.
func (s *TableStrategy) Name() string {
	return "table"
}

// Attempt scans for header lines naming a date and a description column and
// reads rows until an end marker. Several tables per document are supported.
func (s *TableStrategy) Attempt(text string) []model.Transaction {
	var txns []model.Transaction
	inTable := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if !inTable {
			if isTableHeader(trimmed) {
				inTable = true
			}
			continue
		}

		txn, ok := parseTableRow(trimmed)
		if ok {
			txns = append(txns, txn)
			continue
		}

		if tableEnd.MatchString(trimmed) {
			inTable = false
		}
	}

	return txns
}

func isTableHeader(line string) bool {
	return tableHeaderDate.MatchString(line) && tableHeaderDesc.MatchString(line)
}

// parseTableRow reads "date  description  amount  [balance]" style rows.
func parseTableRow(line string) (model.Transaction, bool) {
	fields := tableFieldSplit.Split(line, -1)
	if len(fields) < 3 {
		return model.Transaction{}, false
	}

	date, ok := normalize.ParseDate(fields[0])
	if !ok {
		return model.Transaction{}, false
	}

	descStart := 1
	if _, valueDate := normalize.ParseDate(fields[1]); valueDate {
		descStart = 2
	}

	for j := descStart; j < len(fields); j++ {
		signed, forced, ok := parseMarkedAmount(fields[j])
		if !ok {
			continue
		}
		if j == descStart {
			return model.Transaction{}, false
		}

		desc := normalize.CleanDescription(strings.Join(fields[descStart:j], " "))
		return buildTransaction(date, desc, signed, forced, line)
	}

	return model.Transaction{}, false
}

// parseMarkedAmount parses an amount field with an optional trailing CR/DR marker.
// ok is false for unparseable or zero values.
func parseMarkedAmount(field string) (decimal.Decimal, model.TransactionType, bool) {
	var forced model.TransactionType
	value := strings.TrimSpace(field)

	switch {
	case creditMarker.MatchString(value):
		forced = model.TypeCredit
		value = creditMarker.ReplaceAllString(value, "")
	case debitMarker.MatchString(value):
		forced = model.TypeDebit
		value = debitMarker.ReplaceAllString(value, "")
	}

	amount := normalize.ParseAmount(value)
	if amount.IsZero() {
		return decimal.Zero, "", false
	}
	return amount, forced, true
}

// buildTransaction applies an explicit type marker over the amount's sign.
func buildTransaction(date time.Time, desc string, signed decimal.Decimal, forced model.TransactionType, raw string) (model.Transaction, bool) {
	if desc == "" {
		return model.Transaction{}, false
	}

	txn, ok := model.NewTransaction(date, desc, signed, raw)
	if !ok {
		return model.Transaction{}, false
	}
	if forced != "" {
		txn.Type = forced
	}
	return txn, true
}
