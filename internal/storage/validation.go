package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrEmptySlice   = errors.New("slice cannot be empty")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateExpenses(expenses []model.Expense) error {
	if expenses == nil {
		return fmt.Errorf("%w: expenses", ErrNilParameter)
	}
	if len(expenses) == 0 {
		return fmt.Errorf("%w: expenses", ErrEmptySlice)
	}

	for i := range expenses {
		if err := expenses[i].Validate(); err != nil {
			return fmt.Errorf("expense at index %d: %w", i, err)
		}
	}
	return nil
}
