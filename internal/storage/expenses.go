package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const expenseColumns = `id, couple_id, hash, date, description, amount, type,
	category_key, paid_by, source, receipt_ref, raw_data, created_at`

// SaveExpenses writes expenses in one transaction. Rows whose (couple, hash)
// already exists are skipped; the number actually inserted is returned and
// subscribers receive only those.
func (s *SQLiteStorage) SaveExpenses(ctx context.Context, expenses []model.Expense) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateExpenses(expenses); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	inserted := make([]model.Expense, 0, len(expenses))
	for _, exp := range expenses {
		if exp.Hash == "" {
			exp.Hash = exp.GenerateHash()
		}
		if exp.CreatedAt.IsZero() {
			exp.CreatedAt = now
		}
		if exp.Source == "" {
			exp.Source = model.SourceImport
		}

		res, execErr := stmt.ExecContext(ctx,
			exp.ID,
			exp.CoupleID,
			exp.Hash,
			exp.Date.Format(dateLayout),
			exp.Description,
			exp.Amount.String(),
			string(exp.Type),
			exp.CategoryKey,
			exp.PaidBy,
			string(exp.Source),
			exp.ReceiptRef,
			exp.RawData,
			exp.CreatedAt,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert expense %s: %w", exp.ID, execErr)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, exp)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expenses: %w", err)
	}

	if skipped := len(expenses) - len(inserted); skipped > 0 {
		s.logger.Info("Skipped expenses already in the ledger", "skipped", skipped)
	}
	if len(inserted) > 0 {
		s.publish(model.ExpenseEvent{
			Kind:     model.ExpenseAdded,
			CoupleID: inserted[0].CoupleID,
			Expenses: inserted,
		})
	}

	return len(inserted), nil
}

// GetExpensesSince returns a couple's expenses dated on or after since, oldest first.
func (s *SQLiteStorage) GetExpensesSince(ctx context.Context, coupleID string, since time.Time) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(coupleID, "coupleID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE couple_id = ? AND date >= ?
		ORDER BY date, created_at, id
	`, coupleID, since.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.Expense
	for rows.Next() {
		exp, scanErr := scanExpense(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	return expenses, nil
}

// GetExpense fetches one expense by ID.
func (s *SQLiteStorage) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	exp, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// CountExpenses returns how many expenses a couple has.
func (s *SQLiteStorage) CountExpenses(ctx context.Context, coupleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE couple_id = ?`, coupleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (model.Expense, error) {
	var (
		exp       model.Expense
		date      string
		amount    string
		txnType   string
		source    string
		createdAt time.Time
	)

	err := row.Scan(
		&exp.ID,
		&exp.CoupleID,
		&exp.Hash,
		&date,
		&exp.Description,
		&amount,
		&txnType,
		&exp.CategoryKey,
		&exp.PaidBy,
		&source,
		&exp.ReceiptRef,
		&exp.RawData,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Expense{}, err
		}
		return model.Expense{}, fmt.Errorf("failed to scan expense: %w", err)
	}

	exp.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return model.Expense{}, fmt.Errorf("expense %s has invalid date %q: %w", exp.ID, date, err)
	}
	exp.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Expense{}, fmt.Errorf("expense %s has invalid amount %q: %w", exp.ID, amount, err)
	}
	exp.Type = model.TransactionType(txnType)
	exp.Source = model.ExpenseSource(source)
	exp.CreatedAt = createdAt.UTC()

	return exp, nil
}
