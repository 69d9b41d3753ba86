// Package service defines the interfaces shared between application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tandem/internal/model"
)

// ExpenseStore is the persistence boundary the import pipeline reads history
// from and commits into.
type ExpenseStore interface {
	// GetExpensesSince returns the couple's expenses dated on or after since.
	GetExpensesSince(ctx context.Context, coupleID string, since time.Time) ([]model.Expense, error)
	// SaveExpenses writes the batch atomically and returns how many were new.
	SaveExpenses(ctx context.Context, expenses []model.Expense) (int, error)
}

// KeyValueStore holds opaque values such as the serialized upload queue.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Storage is the full persistence layer.
type Storage interface {
	ExpenseStore
	KeyValueStore

	GetExpense(ctx context.Context, id string) (*model.Expense, error)
	CountExpenses(ctx context.Context, coupleID string) (int, error)

	// Subscribe delivers committed changes until ctx is done or the store closes.
	Subscribe(ctx context.Context) <-chan model.ExpenseEvent

	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}
