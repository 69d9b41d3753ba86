package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/tandem/internal/cli"
	"github.com/Veraticus/tandem/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every command migrates on startup; run this to check or prepare a database
ahead of time.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current schema version without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dbPath := cfg.Database.Path

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, cli.RenderBox("Database Migration Status", fmt.Sprintf(
			"Database: %s\nCurrent version: %d\nLatest version: %d",
			dbPath, current, storage.ExpectedSchemaVersion)))
		if current < storage.ExpectedSchemaVersion {
			_, _ = fmt.Fprintln(out, cli.FormatWarning("Migrations pending, run tandem migrate"))
		}
		return nil
	}

	slog.Info("Running database migrations", "database", dbPath)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	_, _ = fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed"))
	return nil
}
