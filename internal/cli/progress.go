package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Progress draws a progress bar for a known amount of work.
type Progress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewProgress creates a bar of total steps that writes to w.
func NewProgress(w io.Writer, total int, description string) *Progress {
	p := &Progress{writer: w}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Set moves the bar to done of total, resizing it when total changed.
func (p *Progress) Set(done, total int) {
	if int64(total) != p.bar.GetMax64() {
		p.bar.ChangeMax(total)
	}
	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar.
func (p *Progress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
