package statement

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the kind of statement file. The caller decides it before parsing.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatOFX  Format = "ofx"
	FormatText Format = "text"
)

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".pdf":
		return FormatPDF
	case ".ofx", ".qfx":
		return FormatOFX
	case ".txt":
		return FormatText
	}
	return ""
}

// Reader dispatches statement bytes to the parser for their format.
type Reader struct {
	csv  *CSVParser
	pdf  *PDFParser
	ofx  *OFXParser
	text *Parser
}

// NewReader wires the per-format parsers around a shared text parser.
func NewReader(text *Parser, csv *CSVParser, pdf *PDFParser, ofx *OFXParser) *Reader {
	return &Reader{text: text, csv: csv, pdf: pdf, ofx: ofx}
}

// Read parses data in the given format. Every error is a *ParseError.
func (r *Reader) Read(ctx context.Context, format Format, data []byte) (*Result, error) {
	var (
		result *Result
		err    error
	)

	switch format {
	case FormatCSV:
		result, err = r.csv.Parse(ctx, data)
	case FormatPDF:
		result, err = r.pdf.Parse(ctx, data)
	case FormatOFX:
		result, err = r.ofx.Parse(ctx, bytes.NewReader(data))
	case FormatText:
		result, err = r.text.ParseText(ctx, string(data))
	default:
		return nil, NewUnsupportedFormatError(format)
	}

	if err != nil {
		return nil, AsParseError(err)
	}
	return result, nil
}

func panicError(r any) error {
	return fmt.Errorf("statement parser panic: %v", r)
}
