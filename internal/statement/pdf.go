package statement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// DefaultMaxPages bounds text extraction on very large PDFs.
const DefaultMaxPages = 50

// ErrEncrypted is returned by extractors for password-protected documents.
var ErrEncrypted = errors.New("document is encrypted")

// TextExtractor turns document bytes into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// FitzExtractor extracts PDF text with MuPDF.
type FitzExtractor struct {
	MaxPages int
}

// ExtractText reads up to MaxPages pages, checking ctx between pages.
func (e FitzExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return "", fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	limit := doc.NumPage()
	if e.MaxPages > 0 && e.MaxPages < limit {
		limit = e.MaxPages
	}

	var b strings.Builder
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", i+1, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// PDFParser extracts text from a PDF and hands it to the text strategies.
type PDFParser struct {
	extractor TextExtractor
	parser    *Parser
	logger    *slog.Logger
}

// NewPDFParser creates a PDF statement parser.
func NewPDFParser(extractor TextExtractor, parser *Parser, logger *slog.Logger) *PDFParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFParser{extractor: extractor, parser: parser, logger: logger}
}

// Parse extracts transactions from PDF bytes.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = AsParseError(panicError(r))
		}
	}()

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewNoReadableDataError(FormatPDF, nil)
	}

	text, err := p.extractor.ExtractText(ctx, data)
	if err != nil {
		p.logger.Warn("PDF text extraction failed", "error", err)
		if errors.Is(err, ErrEncrypted) {
			return nil, NewPasswordProtectedError(err)
		}
		return nil, AsParseError(err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, NewNoReadableDataError(FormatPDF, nil)
	}

	result, err = p.parser.ParseText(ctx, text)
	if err != nil {
		parseErr := AsParseError(err)
		if parseErr.Type == ErrorTypeNoTransactions {
			return nil, NewNoTransactionsError(FormatPDF)
		}
		return nil, parseErr
	}
	return result, nil
}
