package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Veraticus/tandem/internal/cli"
	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the offline receipt upload queue",
	}

	cmd.AddCommand(queueAddCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Upload every pending receipt",
		RunE:  runQueueProcess,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Retry failed uploads that are under the retry limit",
		RunE:  runQueueRetry,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show queue statistics and items",
		RunE:  runQueueStatus,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Drop one item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueueRemove,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every queued upload",
		RunE:  runQueueClear,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Process the queue whenever the network comes back",
		Long: `Poll network reachability and process the queue on every offline to online
transition. When metrics.addr is set, /healthz and /metrics are served there.`,
		RunE: runQueueWatch,
	})

	return cmd
}

func queueAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <image>",
		Short: "Upload a receipt now, or queue it when offline",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueueAdd,
	}
	cmd.Flags().String("owner", "", "partner who owns the receipt (required)")
	cmd.Flags().String("context", "", "expense or couple the receipt belongs to (required)")
	cmd.Flags().String("priority", string(model.PriorityNormal), "priority: high, medium, normal or low")
	cmd.Flags().String("content-type", "", "image MIME type (default: detected)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func parsePriority(s string) (model.UploadPriority, error) {
	switch p := model.UploadPriority(s); p {
	case model.PriorityHigh, model.PriorityMedium, model.PriorityNormal, model.PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	contextID, _ := cmd.Flags().GetString("context")
	contentType, _ := cmd.Flags().GetString("content-type")
	priorityFlag, _ := cmd.Flags().GetString("priority")

	priority, err := parsePriority(priorityFlag)
	if err != nil {
		return err
	}

	imageRef, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve image path: %w", err)
	}

	ctx := cmd.Context()
	env, err := openQueue(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.queue.Enqueue(ctx, model.Upload{
		ImageRef:    imageRef,
		OwnerID:     owner,
		ContextID:   contextID,
		ContentType: contentType,
	}, priority)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Uploaded {
		_, _ = fmt.Fprintln(out, cli.FormatSuccess("Uploaded "+result.Ref))
		return nil
	}
	_, _ = fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Queued as %s, it will upload when back online", result.ID)))
	return nil
}

func runQueueProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.queue.ProcessUploadQueue(ctx)
	if err != nil {
		return queueError(err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf(
		"Processed %d: %d uploaded, %d failed, %d expired",
		result.Processed, result.Succeeded, result.Failed, result.Expired)))
	return nil
}

func runQueueRetry(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.queue.RetryFailedUploads(ctx)
	if err != nil {
		return queueError(err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf(
		"Retried %d: %d uploaded, %d failed, %d past the retry limit",
		result.Retried, result.Successful, result.Failed, result.Skipped)))
	if err := result.Err(); err != nil {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(
			fmt.Sprintf("%v; remove them with 'tandem queue remove <id>'", err)))
	}
	return nil
}

func runQueueStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	stats, err := env.queue.Stats(ctx)
	if err != nil {
		return err
	}
	items, err := env.queue.Items(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, cli.RenderQueueStats(stats, env.monitor.Online()))
	if len(items) > 0 {
		_, _ = fmt.Fprintln(out, cli.RenderQueueItems(items, env.config.Queue.MaxRetries))
	}
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.queue.Remove(ctx, args[0]); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("no queued upload with id %s", args[0])
		}
		return queueError(err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Removed "+args[0]))
	return nil
}

func runQueueClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.queue.Clear(ctx)
	if err != nil {
		return queueError(err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Cleared %d queued uploads", n)))
	return nil
}

func runQueueWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openQueue(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	env.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var server *http.Server
	if addr := env.config.Metrics.Addr; addr != "" {
		server = &http.Server{
			Addr:              addr,
			Handler:           queue.Handler(env.queue, env.monitor, prometheus.Gatherer(env.registry)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Serving queue status", "addr", addr)
			if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				common.LogError(serveErr, "Status server failed", common.Fields{"addr": addr})
			}
		}()
	}

	// Drain anything left from the last session before waiting for transitions.
	if env.monitor.Online() {
		if _, err := env.queue.ProcessUploadQueue(ctx); err != nil && !errors.Is(err, common.ErrQueueBusy) {
			slog.Warn("Initial queue pass failed", "error", err)
		}
	}

	// Subscribe before the monitor starts checking so the first transition reaches Watch.
	changes := env.monitor.Changes(ctx)
	go env.monitor.Run(ctx)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Watching network, press Ctrl+C to stop"))
	env.queue.Watch(ctx, changes)
	<-ctx.Done()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Status server shutdown failed", "error", err)
		}
	}
	return nil
}

func queueError(err error) error {
	switch {
	case errors.Is(err, common.ErrOffline):
		return errors.New("offline, uploads stay queued until the network is back")
	case errors.Is(err, common.ErrQueueBusy):
		return errors.New("the queue is already being processed")
	}
	return err
}
