package statement

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/normalize"
	"github.com/shopspring/decimal"
)

const headerSearchRows = 20

var csvDelimiters = []rune{',', ';', '\t', '|'}

// Header keyword lists, strongest match first.
var (
	dateHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(transaction\s+)?date$`),
		regexp.MustCompile(`(?i)^(posted|posting|booking|trans\.?)\s*date$`),
		regexp.MustCompile(`(?i)date`),
	}
	descriptionHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^description$`),
		regexp.MustCompile(`(?i)description|details|narrative|particulars`),
		regexp.MustCompile(`(?i)payee|merchant|memo|name|reference|transaction`),
	}
	amountHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^amount$`),
		regexp.MustCompile(`(?i)amount|^value$|^sum$`),
	}
	debitHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)debit|withdrawal|paid\s*out|money\s*out|outflow|spent`),
	}
	creditHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)credit|deposit|paid\s*in|money\s*in|inflow|received`),
	}
	typeHeaders = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(type|dr/cr|cr/dr|debit/credit|credit/debit|transaction\s+type)$`),
	}
	excludedHeaders = regexp.MustCompile(`(?i)balance`)
)

// columnMapping says which CSV columns feed which transaction fields; -1 is absent.
type columnMapping struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
	txnType     int
}

func (m columnMapping) valid() bool {
	return m.date >= 0 && m.description >= 0 && (m.amount >= 0 || m.debit >= 0 || m.credit >= 0)
}

// CSVParser reads bank CSV exports using column-header heuristics.
type CSVParser struct {
	logger *slog.Logger
}

// NewCSVParser creates a CSV statement parser.
func NewCSVParser(logger *slog.Logger) *CSVParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVParser{logger: logger}
}

// Parse extracts transactions from CSV text.
func (p *CSVParser) Parse(ctx context.Context, data []byte) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = AsParseError(panicError(r))
		}
	}()

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewNoReadableDataError(FormatCSV, nil)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, AsParseError(ctxErr)
	}

	records, headerIdx, mapping := p.detectLayout(data)
	if records == nil {
		return nil, NewNoTransactionsError(FormatCSV)
	}

	var txns []model.Transaction
	for _, record := range records[headerIdx+1:] {
		if txn, ok := mapping.transaction(record); ok {
			txns = append(txns, txn)
		}
	}

	txns = SortAndDedupe(txns)
	if len(txns) == 0 {
		return nil, NewNoTransactionsError(FormatCSV)
	}

	var preamble []string
	for _, record := range records[:max(headerIdx, 0)] {
		preamble = append(preamble, strings.Join(record, " "))
	}

	p.logger.Info("Parsed CSV statement",
		"transactions", len(txns),
		"header_row", headerIdx)

	return &Result{
		Transactions: txns,
		Strategy:     "csv",
		Metadata:     ExtractMetadata(strings.Join(preamble, "\n")),
	}, nil
}

// detectLayout picks the delimiter whose header row maps the most columns. When no
// header is recognised it falls back to date, description, amount column order.
func (p *CSVParser) detectLayout(data []byte) ([][]string, int, columnMapping) {
	var (
		bestRecords [][]string
		bestHeader  = -1
		bestMapping columnMapping
		bestScore   int
	)

	for _, delim := range csvDelimiters {
		records := readRecords(data, delim)
		for i := 0; i < len(records) && i < headerSearchRows; i++ {
			mapping := mapHeader(records[i])
			if !mapping.valid() {
				continue
			}
			if score := len(records[i]); score > bestScore {
				bestRecords, bestHeader, bestMapping, bestScore = records, i, mapping, score
			}
			break
		}
	}
	if bestRecords != nil {
		return bestRecords, bestHeader, bestMapping
	}

	for _, delim := range csvDelimiters {
		records := readRecords(data, delim)
		if len(records) == 0 || len(records[0]) < 3 {
			continue
		}
		if _, ok := normalize.ParseDate(records[0][0]); !ok {
			continue
		}
		p.logger.Debug("CSV has no recognizable header, assuming date/description/amount order")
		last := len(records[0]) - 1
		return records, -1, columnMapping{date: 0, description: 1, amount: last, debit: -1, credit: -1, txnType: -1}
	}

	return nil, -1, columnMapping{}
}

func readRecords(data []byte, delim rune) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		records = append(records, record)
	}
	return records
}

func mapHeader(header []string) columnMapping {
	m := columnMapping{date: -1, description: -1, amount: -1, debit: -1, credit: -1, txnType: -1}
	used := make(map[int]bool)

	pick := func(patterns []*regexp.Regexp) int {
		for _, re := range patterns {
			for i, name := range header {
				name = strings.TrimSpace(name)
				if used[i] || name == "" || excludedHeaders.MatchString(name) {
					continue
				}
				if re.MatchString(name) {
					used[i] = true
					return i
				}
			}
		}
		return -1
	}

	m.date = pick(dateHeaders)
	m.txnType = pick(typeHeaders)
	m.debit = pick(debitHeaders)
	m.credit = pick(creditHeaders)
	m.amount = pick(amountHeaders)
	m.description = pick(descriptionHeaders)
	return m
}

func (m columnMapping) transaction(record []string) (model.Transaction, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, ok := normalize.ParseDate(field(m.date))
	if !ok {
		return model.Transaction{}, false
	}
	desc := normalize.CleanDescription(field(m.description))

	var signed decimal.Decimal
	var forced model.TransactionType
	if m.amount >= 0 {
		signed = normalize.ParseAmount(field(m.amount))
	}
	if signed.IsZero() {
		if debit := normalize.ParseAmount(field(m.debit)).Abs(); !debit.IsZero() {
			signed = debit
		} else if credit := normalize.ParseAmount(field(m.credit)).Abs(); !credit.IsZero() {
			signed = credit.Neg()
		}
	}

	switch strings.ToUpper(field(m.txnType)) {
	case "CR", "CREDIT", "C":
		forced = model.TypeCredit
	case "DR", "DEBIT", "D":
		forced = model.TypeDebit
	}

	return buildTransaction(date, desc, signed, forced, strings.Join(record, ","))
}
