package statement

import (
	"errors"
	"fmt"
)

// ErrorType categorises a parse failure for the import error card.
type ErrorType string

const (
	// ErrorTypeNoReadableData means the input was empty or held no extractable text.
	ErrorTypeNoReadableData ErrorType = "no_readable_data"
	// ErrorTypeNoTransactions means text was read but no strategy found a transaction.
	ErrorTypeNoTransactions ErrorType = "no_transactions"
	// ErrorTypePasswordProtected means the document is encrypted.
	ErrorTypePasswordProtected ErrorType = "password_protected"
	// ErrorTypeUnsupportedFormat means the caller asked for a format we do not read.
	ErrorTypeUnsupportedFormat ErrorType = "unsupported_format"
	// ErrorTypeExtractionFailed covers every other failure.
	ErrorTypeExtractionFailed ErrorType = "extraction_failed"
)

// ParseError is the only error shape returned by the statement parsers.
type ParseError struct {
	Err         error
	Type        ErrorType
	Message     string
	Suggestions []string
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewNoReadableDataError reports an empty or unreadable file.
func NewNoReadableDataError(format Format, err error) *ParseError {
	suggestions := []string{
		"Check that the file is not empty",
		"Export the statement again from your bank",
	}
	if format == FormatPDF {
		suggestions = append(suggestions,
			"Scanned statements contain images only; download a text PDF or try CSV instead")
	} else {
		suggestions = append(suggestions, "Try the PDF version of the statement instead")
	}

	return &ParseError{
		Type:        ErrorTypeNoReadableData,
		Message:     "The file does not contain any readable data",
		Suggestions: suggestions,
		Err:         err,
	}
}

// NewNoTransactionsError reports a readable file with no recognizable rows.
func NewNoTransactionsError(format Format) *ParseError {
	suggestions := []string{
		"Make sure the statement period contains transactions",
		"Try exporting the statement as CSV instead",
	}
	if format == FormatCSV {
		suggestions = []string{
			"Make sure the file has a header row with Date, Description and Amount columns",
			"Remove summary rows above the header and try again",
			"Try the PDF version of the statement instead",
		}
	}

	return &ParseError{
		Type:        ErrorTypeNoTransactions,
		Message:     "No transactions were found in this statement",
		Suggestions: suggestions,
	}
}

// NewPasswordProtectedError reports an encrypted document.
func NewPasswordProtectedError(err error) *ParseError {
	return &ParseError{
		Type:    ErrorTypePasswordProtected,
		Message: "The statement appears to be password protected",
		Suggestions: []string{
			"Check password protection and save an unlocked copy of the PDF",
			"Try CSV instead",
		},
		Err: err,
	}
}

// NewUnsupportedFormatError reports an unknown format.
func NewUnsupportedFormatError(format Format) *ParseError {
	return &ParseError{
		Type:    ErrorTypeUnsupportedFormat,
		Message: fmt.Sprintf("Statements in %q format are not supported", format),
		Suggestions: []string{
			"Export the statement as CSV, PDF or OFX",
		},
	}
}

// AsParseError returns err as a *ParseError, wrapping foreign errors as extraction failures.
func AsParseError(err error) *ParseError {
	if err == nil {
		return nil
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr
	}

	return &ParseError{
		Type:    ErrorTypeExtractionFailed,
		Message: "We could not read this statement",
		Suggestions: []string{
			"Try again in a moment",
			"Try CSV instead",
			"Check password protection on the file",
		},
		Err: err,
	}
}
