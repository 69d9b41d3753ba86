package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/tandem/internal/importer"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/queue"
	"github.com/Veraticus/tandem/internal/statement"
)

const descriptionWidth = 32

// RenderError renders err as a card. Statement parse errors show their
// suggestions; everything else shows the message alone.
func RenderError(err error) string {
	var parseErr *statement.ParseError
	if !errors.As(err, &parseErr) {
		return ErrorBoxStyle.Render(FormatError(err.Error()))
	}

	var b strings.Builder
	b.WriteString(SubtleStyle.Render(string(parseErr.Type)))
	if parseErr.Err != nil {
		b.WriteString("\n" + SubtleStyle.Render(parseErr.Err.Error()))
	}
	if len(parseErr.Suggestions) > 0 {
		b.WriteString("\n\n" + BoldStyle.Render("Things to try:"))
		for _, suggestion := range parseErr.Suggestions {
			b.WriteString("\n  • " + suggestion)
		}
	}

	return renderBox(ErrorBoxStyle, FormatError(parseErr.Message), b.String())
}

// RenderPreview renders the annotated rows of an import preview. Categories
// below threshold are shown as "?".
func RenderPreview(preview *importer.Preview, threshold float64) string {
	var b strings.Builder

	title := "Statement preview"
	if preview.Metadata.BankName != "" {
		title += ": " + preview.Metadata.BankName
	}
	b.WriteString(FormatTitle(title) + "\n")
	if preview.Metadata.AccountNumber != "" || preview.Metadata.StatementPeriod != "" {
		b.WriteString(SubtleStyle.Render(strings.TrimSpace(fmt.Sprintf("%s  %s",
			preview.Metadata.AccountNumber, preview.Metadata.StatementPeriod))) + "\n")
	}

	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("    %-10s  %-*s  %10s  %-14s  %s",
		"Date", descriptionWidth, "Description", "Amount", "Category", "Duplicate")) + "\n")

	for _, row := range preview.Rows {
		b.WriteString(FormatRow(row, threshold) + "\n")
	}

	b.WriteString("\n" + SubtleStyle.Render(fmt.Sprintf("%d rows via %s, %d likely duplicates, %d selected",
		len(preview.Rows), preview.Strategy, preview.Duplicates, len(preview.Selected()))))
	return b.String()
}

// FormatRow renders one preview row on a single line.
func FormatRow(row importer.Row, threshold float64) string {
	check := "[x]"
	if !row.Selected {
		check = "[ ]"
	}

	txn := row.Transaction
	amount := txn.Amount.StringFixed(2)
	if txn.Type == model.TypeCredit {
		amount = "+" + amount
	}

	category := "?"
	if row.Category.Confident(threshold) {
		category = row.Category.CategoryKey
	}

	duplicate := ""
	if row.Duplicate.HasDuplicates {
		duplicate = fmt.Sprintf("%s %.0f%%", DuplicateIcon, row.Duplicate.HighestConfidence*100)
	}

	line := fmt.Sprintf("%s %-10s  %-*s  %10s  %-14s  %s",
		check,
		txn.Date.Format("2006-01-02"),
		descriptionWidth, truncate(txn.Description, descriptionWidth),
		amount,
		category,
		duplicate)

	switch {
	case row.Duplicate.AutoSkip:
		return SubtleStyle.Render(line)
	case row.Duplicate.HasDuplicates:
		return WarningStyle.Render(line)
	}
	return line
}

// RenderCommit summarises a committed import.
func RenderCommit(result importer.CommitResult) string {
	msg := FormatSuccess(fmt.Sprintf("Imported %d expenses", result.Saved))
	if result.Existing > 0 {
		msg += "\n" + FormatInfo(fmt.Sprintf("%d were already in the ledger", result.Existing))
	}
	return msg
}

// RenderQueueStats renders the upload queue summary.
func RenderQueueStats(stats queue.Stats, online bool) string {
	network := SuccessStyle.Render("online")
	if !online {
		network = WarningStyle.Render("offline")
	}

	lines := []string{
		fmt.Sprintf("Network:    %s", network),
		fmt.Sprintf("Queued:     %d", stats.Total),
		fmt.Sprintf("Pending:    %d", stats.Pending),
		fmt.Sprintf("Uploading:  %d", stats.Uploading),
		fmt.Sprintf("Failed:     %d", stats.Failed),
	}
	if stats.Skipped > 0 {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("Skipped:    %d (retries exhausted; remove or retry manually)", stats.Skipped)))
	} else {
		lines = append(lines, fmt.Sprintf("Skipped:    %d", stats.Skipped))
	}

	if stats.Total > 0 {
		lines = append(lines,
			fmt.Sprintf("Oldest:     %s", stats.OldestWait.Round(time.Second)),
			fmt.Sprintf("Avg wait:   %s", stats.AverageWait.Round(time.Second)))

		priorities := make([]string, 0, len(stats.ByPriority))
		for p, n := range stats.ByPriority {
			priorities = append(priorities, fmt.Sprintf("%s=%d", p, n))
		}
		sort.Strings(priorities)
		lines = append(lines, SubtleStyle.Render("Priority:   "+strings.Join(priorities, " ")))
	}

	return RenderBox(UploadIcon+" Upload queue", strings.Join(lines, "\n"))
}

// RenderQueueItems lists queue items one per line.
func RenderQueueItems(items []model.QueueItem, maxRetries int) string {
	if len(items) == 0 {
		return SubtleStyle.Render("Queue is empty")
	}

	var b strings.Builder
	for _, item := range items {
		status := string(item.Status)
		if item.Exhausted(maxRetries) {
			status = "skipped"
		}
		line := fmt.Sprintf("%-36s  %-9s  %-6s  retries=%d  %s",
			item.ID, status, item.Priority, item.RetryCount, item.Upload.ImageRef)
		if item.LastError != "" {
			line += "\n" + SubtleStyle.Render("    last error: "+item.LastError)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
