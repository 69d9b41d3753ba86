// Package importer turns a statement file into an annotated preview and commits
// the rows the user keeps.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tandem/internal/cache"
	"github.com/Veraticus/tandem/internal/categorize"
	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/dedup"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/service"
	"github.com/Veraticus/tandem/internal/statement"
	"github.com/google/uuid"
)

// StatementReader parses raw statement bytes.
type StatementReader interface {
	Read(ctx context.Context, format statement.Format, data []byte) (*statement.Result, error)
}

// Config holds configuration options for the import service.
type Config struct {
	HistoryDays      int     // How far back existing expenses are loaded for duplicate checks
	WindowDays       int     // Duplicate date window; widens the history read around old statements
	DisplayThreshold float64 // Minimum confidence for a category to be applied on commit
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistoryDays:      90,
		WindowDays:       dedup.DefaultConfig().WindowDays,
		DisplayThreshold: categorize.DefaultDisplayThreshold,
	}
}

// Service orchestrates parse, annotate and commit.
type Service struct {
	reader    StatementReader
	store     service.ExpenseStore
	cache     *cache.ResultCache
	detector  *dedup.Detector
	suggester *categorize.Suggester
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	config    Config
}

// New creates an import service with the given dependencies.
func New(reader StatementReader, store service.ExpenseStore, results *cache.ResultCache,
	detector *dedup.Detector, suggester *categorize.Suggester, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HistoryDays <= 0 {
		config.HistoryDays = DefaultConfig().HistoryDays
	}
	return &Service{
		reader:    reader,
		store:     store,
		cache:     results,
		detector:  detector,
		suggester: suggester,
		config:    config,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Row is one candidate transaction with its annotations.
type Row struct {
	Category    model.CategorySuggestion
	Transaction model.Transaction
	Duplicate   model.DuplicateStatus
	Selected    bool // Starts false for auto-skipped duplicates; the user may flip it
}

// Preview is the annotated result of parsing one statement.
type Preview struct {
	Metadata   statement.Metadata
	CoupleID   string
	Strategy   string
	Rows       []Row
	Duplicates int // Rows with at least one likely match
	AutoSkip   int // Rows that start unselected
}

// Selected returns the rows currently marked for import.
func (p *Preview) Selected() []Row {
	rows := make([]Row, 0, len(p.Rows))
	for _, row := range p.Rows {
		if row.Selected {
			rows = append(rows, row)
		}
	}
	return rows
}

// PreviewRequest identifies a statement to preview.
type PreviewRequest struct {
	CoupleID string
	Format   statement.Format
	Data     []byte
	Progress func(done, total int) // Optional; called after each annotated row
}

// Preview parses the statement and annotates each transaction with duplicate and
// category results. Parse failures are returned as *statement.ParseError.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	if req.CoupleID == "" {
		return nil, fmt.Errorf("preview requires a couple ID: %w", common.ErrMissingConfig)
	}

	result, err := s.reader.Read(ctx, req.Format, req.Data)
	if err != nil {
		return nil, err
	}

	existing, err := s.history(ctx, req.CoupleID, result.Transactions)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		CoupleID: req.CoupleID,
		Strategy: result.Strategy,
		Metadata: result.Metadata,
		Rows:     make([]Row, 0, len(result.Transactions)),
	}

	for i, txn := range result.Transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := Row{
			Transaction: txn,
			Duplicate:   s.duplicateStatus(req.CoupleID, txn, existing),
			Category:    s.category(txn),
		}
		row.Selected = !row.Duplicate.AutoSkip

		if row.Duplicate.HasDuplicates {
			preview.Duplicates++
		}
		if row.Duplicate.AutoSkip {
			preview.AutoSkip++
		}
		preview.Rows = append(preview.Rows, row)

		if req.Progress != nil {
			req.Progress(i+1, len(result.Transactions))
		}
	}

	s.logger.Info("Built import preview",
		"couple_id", req.CoupleID,
		"strategy", preview.Strategy,
		"rows", len(preview.Rows),
		"duplicates", preview.Duplicates,
		"auto_skip", preview.AutoSkip)

	return preview, nil
}

// history loads existing expenses covering both the configured lookback and the
// statement's own date range.
func (s *Service) history(ctx context.Context, coupleID string, txns []model.Transaction) ([]model.Transaction, error) {
	since := model.Day(s.now()).AddDate(0, 0, -s.config.HistoryDays)
	for _, txn := range txns {
		if earliest := txn.Date.AddDate(0, 0, -s.config.WindowDays); earliest.Before(since) {
			since = earliest
		}
	}

	expenses, err := s.store.GetExpensesSince(ctx, coupleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing expenses: %w", err)
	}

	existing := make([]model.Transaction, len(expenses))
	for i := range expenses {
		existing[i] = expenses[i].Transaction
	}
	return existing, nil
}

func (s *Service) duplicateStatus(coupleID string, txn model.Transaction, existing []model.Transaction) model.DuplicateStatus {
	if status, ok := s.cache.GetCachedDuplicateResult(coupleID, txn); ok {
		return status
	}
	status := s.detector.Check(txn, existing)
	s.cache.CacheDuplicateResult(coupleID, txn, status)
	return status
}

func (s *Service) category(txn model.Transaction) model.CategorySuggestion {
	if suggestion, ok := s.cache.GetCachedCategoryResult(txn); ok {
		return suggestion
	}
	suggestion := s.suggester.Suggest(txn.Description)
	s.cache.CacheCategoryResult(txn, suggestion)
	return suggestion
}

// CommitRequest carries the reviewed rows to persist.
type CommitRequest struct {
	CoupleID string
	PaidBy   string
	Rows     []Row
}

// CommitResult reports what Commit wrote.
type CommitResult struct {
	Saved    int // New expenses written
	Existing int // Selected rows already stored from an earlier import
}

// Commit writes the selected rows as expenses in one batch. Categories below the
// display threshold are left blank for the user to fill in.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	expenses := make([]model.Expense, 0, len(req.Rows))
	for _, row := range req.Rows {
		if !row.Selected {
			continue
		}

		expense := model.Expense{
			ID:          s.newID(),
			CoupleID:    req.CoupleID,
			PaidBy:      req.PaidBy,
			Source:      model.SourceImport,
			Transaction: row.Transaction,
		}
		if row.Category.CategoryKey != model.CategoryOther && row.Category.Confident(s.config.DisplayThreshold) {
			expense.CategoryKey = row.Category.CategoryKey
		}
		expenses = append(expenses, expense)
	}

	if len(expenses) == 0 {
		return CommitResult{}, common.ErrNoTransactions
	}

	saved, err := s.store.SaveExpenses(ctx, expenses)
	if err != nil {
		return CommitResult{}, common.NewUserError("Could not save the import", err)
	}

	// Duplicate results for these rows are stale now.
	s.cache.Clear()

	s.logger.Info("Committed import",
		"couple_id", req.CoupleID,
		"saved", saved,
		"existing", len(expenses)-saved)

	return CommitResult{Saved: saved, Existing: len(expenses) - saved}, nil
}
