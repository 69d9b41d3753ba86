package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/tandem/internal/cache"
	"github.com/Veraticus/tandem/internal/categorize"
	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/config"
	"github.com/Veraticus/tandem/internal/dedup"
	"github.com/Veraticus/tandem/internal/importer"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/queue"
	"github.com/Veraticus/tandem/internal/statement"
	"github.com/Veraticus/tandem/internal/storage"
	"github.com/Veraticus/tandem/internal/uploads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newImporter(cfg config.Config, store *storage.SQLiteStorage, results *cache.ResultCache) (*importer.Service, error) {
	vocabulary := categorize.DefaultVocabulary()
	if cfg.Categories.VocabularyFile != "" {
		loaded, err := categorize.LoadVocabulary(cfg.Categories.VocabularyFile)
		if err != nil {
			return nil, err
		}
		vocabulary = loaded
	}

	logger := slog.Default()
	textParser := statement.NewParser(
		statement.WithMinTransactions(cfg.Import.MinTableTransactions),
		statement.WithLogger(logger))
	reader := statement.NewReader(
		textParser,
		statement.NewCSVParser(logger),
		statement.NewPDFParser(statement.FitzExtractor{MaxPages: cfg.Import.PDFMaxPages}, textParser, logger),
		statement.NewOFXParser(logger))

	detector := dedup.NewDetector(dedup.Config{
		WindowDays:        cfg.Import.DuplicateWindowDays,
		MatchThreshold:    cfg.Import.MatchThreshold,
		AutoSkipThreshold: cfg.Import.AutoSkipThreshold,
	})

	return importer.New(reader, store, results, detector, categorize.NewSuggester(vocabulary),
		importer.Config{
			HistoryDays:      cfg.Import.HistoryDays,
			WindowDays:       cfg.Import.DuplicateWindowDays,
			DisplayThreshold: cfg.Categories.DisplayThreshold,
		}, logger), nil
}

// queueEnv is everything the queue commands need.
type queueEnv struct {
	queue    *queue.Queue
	monitor  *queue.Monitor
	registry *prometheus.Registry
	metrics  *queue.Metrics
	closers  []func() error
	config   config.Config
}

func (e *queueEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
}

// openQueue wires the upload queue to its repository, uploader and network
// monitor. The monitor has been probed once when this returns. Commands that
// only inspect the queue pass upload=false and need no bucket credentials.
func openQueue(ctx context.Context, upload bool) (*queueEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	env := &queueEnv{config: cfg, registry: prometheus.NewRegistry()}
	env.metrics = queue.NewMetrics(env.registry)

	var repo queue.Repository
	switch cfg.Queue.Backend {
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Queue.BoltPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
		bolt, err := queue.NewBoltRepository(cfg.Queue.BoltPath)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, bolt.Close)
		repo = bolt
	default:
		store, err := initStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, store.Close)
		repo = queue.NewKVRepository(store, queue.DefaultStorageKey)
	}

	var uploader queue.Uploader = unconfiguredUploader{}
	if upload {
		gcs, err := uploads.NewGCSUploader(ctx, uploads.Config{
			Bucket:          cfg.Uploads.Bucket,
			Prefix:          cfg.Uploads.Prefix,
			CredentialsFile: cfg.Uploads.CredentialsFile,
			ClientID:        cfg.Uploads.ClientID,
			ClientSecret:    cfg.Uploads.ClientSecret,
			RefreshToken:    cfg.Uploads.RefreshToken,
			Endpoint:        cfg.Uploads.Endpoint,
		}, slog.Default())
		if err != nil {
			env.Close()
			return nil, err
		}
		uploader = gcs
	}

	env.monitor = queue.NewMonitor(queue.MonitorConfig{
		URL:      cfg.Network.ProbeURL,
		Interval: cfg.Network.Interval,
		Timeout:  cfg.Network.Timeout,
	}, slog.Default(), env.metrics)
	env.monitor.Check(ctx)

	env.queue = queue.New(repo, uploader, env.monitor, queue.Config{
		MaxRetries:     cfg.Queue.MaxRetries,
		MaxAge:         cfg.Queue.MaxAge,
		BaseDelay:      cfg.Queue.BaseDelay,
		SortByPriority: cfg.Queue.SortByPriority,
		Backoff:        cfg.Queue.Backoff,
		AutoProcess:    cfg.Queue.AutoProcess,
	}, queue.WithLogger(slog.Default()), queue.WithMetrics(env.metrics))

	return env, nil
}

// unconfiguredUploader stands in for read-only queue commands.
type unconfiguredUploader struct{}

func (unconfiguredUploader) Upload(context.Context, model.Upload) (string, error) {
	return "", &common.RetryableError{Err: fmt.Errorf("uploads: %w", common.ErrMissingConfig), Retryable: true}
}
