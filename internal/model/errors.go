package model

import "errors"

// Model validation errors.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidExpense     = errors.New("invalid expense")
)
