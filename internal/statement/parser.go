// Package statement extracts candidate transactions from bank statement exports.
package statement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
)

// DefaultMinTransactions is the result size at which later strategies are not tried.
const DefaultMinTransactions = 5

// Strategy extracts transactions from plain statement text. Attempt returns nil
// when the strategy recognizes nothing.
type Strategy interface {
	Name() string
	Attempt(text string) []model.Transaction
}

// Result is the outcome of parsing one statement.
type Result struct {
	Metadata     Metadata
	Strategy     string
	Transactions []model.Transaction
}

// Parser runs a prioritized list of strategies over statement text.
type Parser struct {
	logger          *slog.Logger
	strategies      []Strategy
	minTransactions int
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrategies replaces the default strategy list. Order is priority.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Parser) {
		p.strategies = strategies
	}
}

// WithMinTransactions sets how many rows a strategy must yield to stop the search.
func WithMinTransactions(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.minTransactions = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a parser with table-mode then pattern-mode extraction.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		strategies:      []Strategy{NewTableStrategy(), NewPatternStrategy(DefaultPatterns())},
		minTransactions: DefaultMinTransactions,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseText extracts transactions from statement text. Strategies run in order
// until one yields at least the minimum; the largest result set wins, earlier
// strategies winning ties.
func (p *Parser) ParseText(ctx context.Context, text string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = AsParseError(panicError(r))
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, NewNoReadableDataError(FormatText, nil)
	}

	var best []model.Transaction
	bestName := ""
	for _, strategy := range p.strategies {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, AsParseError(ctxErr)
		}

		txns := strategy.Attempt(text)
		p.logger.Debug("Statement strategy attempted",
			"strategy", strategy.Name(),
			"transactions", len(txns))

		if len(txns) > len(best) {
			best = txns
			bestName = strategy.Name()
		}
		if len(best) >= p.minTransactions {
			break
		}
	}

	best = SortAndDedupe(best)
	if len(best) == 0 {
		return nil, NewNoTransactionsError(FormatText)
	}

	p.logger.Info("Parsed statement text",
		"strategy", bestName,
		"transactions", len(best))

	return &Result{
		Transactions: best,
		Strategy:     bestName,
		Metadata:     ExtractMetadata(text),
	}, nil
}

// DedupeKey identifies overlapping matches: ISO date, amount and the first
// twenty description characters.
func DedupeKey(txn model.Transaction) string {
	desc := []rune(txn.Description)
	if len(desc) > 20 {
		desc = desc[:20]
	}
	return fmt.Sprintf("%s|%s|%s", txn.Date.Format("2006-01-02"), txn.Amount.StringFixed(2), string(desc))
}

// dedupe keeps the first transaction seen for each DedupeKey.
func dedupe(txns []model.Transaction) []model.Transaction {
	seen := make(map[string]bool, len(txns))
	out := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		key := DedupeKey(txn)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, txn)
	}
	return out
}

// SortAndDedupe orders transactions by date ascending and drops overlapping duplicates.
func SortAndDedupe(txns []model.Transaction) []model.Transaction {
	sorted := make([]model.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return dedupe(sorted)
}
