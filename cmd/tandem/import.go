package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/tandem/internal/cache"
	"github.com/Veraticus/tandem/internal/cli"
	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/importer"
	"github.com/Veraticus/tandem/internal/statement"
	"github.com/Veraticus/tandem/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <statement>",
		Short: "Import a bank statement",
		Long: `Parse a PDF, CSV or OFX bank statement, flag transactions that were already
imported, suggest categories and save the reviewed rows as shared expenses.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("couple", "", "couple the expenses belong to (required)")
	cmd.Flags().String("paid-by", "", "partner who paid")
	cmd.Flags().String("format", "", "statement format: csv, pdf, ofx or text (default: from extension)")
	cmd.Flags().Bool("dry-run", false, "show the preview without saving")
	cmd.Flags().BoolP("yes", "y", false, "import the default selection without asking")
	cmd.Flags().Bool("no-tui", false, "review with a plain confirmation prompt")
	_ = cmd.MarkFlagRequired("couple")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := args[0]

	coupleID, _ := cmd.Flags().GetString("couple")
	paidBy, _ := cmd.Flags().GetString("paid-by")
	formatFlag, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	assumeYes, _ := cmd.Flags().GetBool("yes")
	noTUI, _ := cmd.Flags().GetBool("no-tui")

	format := statement.Format(strings.ToLower(formatFlag))
	if format == "" {
		format = statement.FormatFromPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read statement: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(out, "Import cancelled, nothing was saved")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Warn("Failed to close database", "error", closeErr)
		}
	}()

	results := cache.NewResultCache(cfg.Cache.TTL, slog.Default())
	results.StartJanitor(ctx, cfg.Cache.CleanupInterval)

	svc, err := newImporter(cfg, store, results)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, cli.FormatTitle("Importing "+path))

	var progress *cli.Progress
	preview, err := svc.Preview(ctx, importer.PreviewRequest{
		CoupleID: coupleID,
		Format:   format,
		Data:     data,
		Progress: func(done, total int) {
			if progress == nil {
				progress = cli.NewProgress(cmd.ErrOrStderr(), total, "Checking transactions")
			}
			progress.Set(done, total)
		},
	})
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		var parseErr *statement.ParseError
		if errors.As(err, &parseErr) {
			_, _ = fmt.Fprintln(out, cli.RenderError(err))
			return errors.New("statement could not be imported")
		}
		return err
	}

	common.LogDebug("Statement preview ready", common.Fields{
		"rows":       len(preview.Rows),
		"strategy":   preview.Strategy,
		"duplicates": preview.Duplicates,
		"auto_skip":  preview.AutoSkip,
	})

	threshold := cfg.Categories.DisplayThreshold
	rows := preview.Rows

	switch {
	case dryRun:
		_, _ = fmt.Fprintln(out, cli.RenderPreview(preview, threshold))
		_, _ = fmt.Fprintln(out, cli.FormatWarning("Dry run, nothing was saved"))
		return nil
	case assumeYes:
		_, _ = fmt.Fprintln(out, cli.RenderPreview(preview, threshold))
	case noTUI || !isTerminal():
		_, _ = fmt.Fprintln(out, cli.RenderPreview(preview, threshold))
		question := fmt.Sprintf("Import %d of %d transactions?", len(preview.Selected()), len(preview.Rows))
		ok, confirmErr := cli.Confirm(ctx, cli.NewNonBlockingReader(cmd.InOrStdin()), out, question)
		if confirmErr != nil {
			if handler.WasInterrupted() {
				return nil
			}
			return confirmErr
		}
		if !ok {
			_, _ = fmt.Fprintln(out, cli.FormatInfo("Import cancelled"))
			return nil
		}
	default:
		reviewed, accepted, reviewErr := tui.RunReview(ctx, preview, threshold)
		if reviewErr != nil {
			if handler.WasInterrupted() {
				return nil
			}
			return fmt.Errorf("review failed: %w", reviewErr)
		}
		if !accepted {
			_, _ = fmt.Fprintln(out, cli.FormatInfo("Import cancelled"))
			return nil
		}
		rows = reviewed
	}

	events := store.Subscribe(ctx)

	result, err := svc.Commit(ctx, importer.CommitRequest{
		CoupleID: coupleID,
		PaidBy:   paidBy,
		Rows:     rows,
	})
	if errors.Is(err, common.ErrNoTransactions) {
		_, _ = fmt.Fprintln(out, cli.FormatInfo("No transactions selected, nothing to import"))
		return nil
	}
	if err != nil {
		_, _ = fmt.Fprintln(out, cli.RenderError(err))
		return errors.New("import failed")
	}

	// Events are published before SaveExpenses returns.
	select {
	case event := <-events:
		common.LogDebug("Ledger updated", common.Fields{
			"kind":     event.Kind,
			"couple":   event.CoupleID,
			"expenses": len(event.Expenses),
		})
	default:
	}

	common.LogInfo("Imported statement", common.Fields{
		"file":     path,
		"couple":   coupleID,
		"saved":    result.Saved,
		"existing": result.Existing,
	})
	_, _ = fmt.Fprintln(out, cli.RenderCommit(result))
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
