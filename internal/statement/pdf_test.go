package statement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	err  error
	text string
}

func (f fakeExtractor) ExtractText(context.Context, []byte) (string, error) {
	return f.text, f.err
}

func TestPDFParser_Parse(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		extractor fakeExtractor
		wantType  ErrorType
		wantCount int
	}{
		{
			name:      "table statement",
			data:      []byte("%PDF-1.7"),
			extractor: fakeExtractor{text: tableStatement},
			wantCount: 6,
		},
		{
			name:     "empty file",
			data:     nil,
			wantType: ErrorTypeNoReadableData,
		},
		{
			name:      "scanned pages without text",
			data:      []byte("%PDF-1.7"),
			extractor: fakeExtractor{text: "\n\n  \n"},
			wantType:  ErrorTypeNoReadableData,
		},
		{
			name:      "encrypted",
			data:      []byte("%PDF-1.7"),
			extractor: fakeExtractor{err: ErrEncrypted},
			wantType:  ErrorTypePasswordProtected,
		},
		{
			name:      "corrupt",
			data:      []byte("%PDF-1.7"),
			extractor: fakeExtractor{err: errors.New("xref table broken")},
			wantType:  ErrorTypeExtractionFailed,
		},
		{
			name:      "text without transactions",
			data:      []byte("%PDF-1.7"),
			extractor: fakeExtractor{text: "Important notice about your account terms."},
			wantType:  ErrorTypeNoTransactions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewPDFParser(tt.extractor, NewParser(), nil)

			result, err := parser.Parse(context.Background(), tt.data)
			if tt.wantType != "" {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, tt.wantType, parseErr.Type)
				assert.NotEmpty(t, parseErr.Suggestions)
				return
			}

			require.NoError(t, err)
			assert.Len(t, result.Transactions, tt.wantCount)
		})
	}
}

func TestPDFParser_SuggestionsMentionAlternatives(t *testing.T) {
	parser := NewPDFParser(fakeExtractor{text: "nothing to see"}, NewParser(), nil)

	_, err := parser.Parse(context.Background(), []byte("%PDF"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Suggestions, "Try exporting the statement as CSV instead")
}
