// Package queue holds receipt uploads until the network can take them.
//
// Items move pending -> uploading -> removed on success, or -> failed with an
// incremented retry count. Failed items are retried until MaxRetries, after
// which they are reported as skipped and stay queued until removed.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
	"github.com/google/uuid"
)

// Uploader sends one receipt image and returns its stored reference.
type Uploader interface {
	Upload(ctx context.Context, upload model.Upload) (string, error)
}

// Config tunes queue behavior.
type Config struct {
	MaxRetries     int
	MaxAge         time.Duration // Zero keeps items forever
	BaseDelay      time.Duration // Backoff unit; the nth retry waits BaseDelay * 2^n
	SortByPriority bool
	Backoff        bool
	AutoProcess    bool // Process on offline -> online transitions in Watch
}

// DefaultConfig returns the standard queue settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		MaxAge:         7 * 24 * time.Hour,
		BaseDelay:      time.Second,
		SortByPriority: true,
		Backoff:        true,
		AutoProcess:    true,
	}
}

// Queue is the offline upload queue. A Queue is safe for concurrent use; only
// one processing pass runs at a time.
type Queue struct {
	repo       Repository
	uploader   Uploader
	network    Reachability
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string
	cfg        Config
	mu         sync.Mutex // Serialises repository load/save cycles
	processing atomic.Bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithMetrics records queue activity.
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = sleep }
}

// New creates a queue.
func New(repo Repository, uploader Uploader, network Reachability, cfg Config, opts ...Option) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}

	q := &Queue{
		repo:     repo,
		uploader: uploader,
		network:  network,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    common.Sleep,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueResult says what happened to an enqueued upload.
type EnqueueResult struct {
	ID       string
	Ref      string // Stored reference when the upload went out immediately
	Uploaded bool
}

// Enqueue uploads immediately when online. When offline, or when the immediate
// attempt fails, the upload is persisted as a pending item instead; upload
// errors are never returned to the caller.
func (q *Queue) Enqueue(ctx context.Context, upload model.Upload, priority model.UploadPriority) (EnqueueResult, error) {
	if priority == "" {
		priority = model.PriorityNormal
	}
	item := model.QueueItem{
		ID:        q.newID(),
		Status:    model.UploadPending,
		Priority:  priority,
		Upload:    upload,
		Timestamp: q.now(),
	}

	if q.network.Online() {
		ref, err := q.uploader.Upload(ctx, upload)
		q.metrics.recordAttempt(err)
		if err == nil {
			q.metrics.recordEnqueue("uploaded")
			q.logger.Debug("Uploaded receipt immediately", "id", item.ID, "ref", ref)
			return EnqueueResult{ID: item.ID, Ref: ref, Uploaded: true}, nil
		}

		q.logger.Warn("Immediate upload failed, queuing for later",
			"id", item.ID,
			"error", err)
		item.LastError = err.Error()
		item.LastAttempt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.repo.Load(ctx)
	if err != nil {
		return EnqueueResult{}, err
	}
	items = append(items, item)
	if err := q.repo.Save(ctx, items); err != nil {
		return EnqueueResult{}, err
	}

	q.metrics.recordEnqueue("queued")
	q.logger.Info("Queued receipt upload",
		"id", item.ID,
		"priority", item.Priority,
		"queue_size", len(items))

	return EnqueueResult{ID: item.ID}, nil
}

// ProcessResult summarises a ProcessUploadQueue pass.
type ProcessResult struct {
	Processed int
	Succeeded int
	Failed    int
	Expired   int
}

// ProcessUploadQueue uploads every pending item. Items older than MaxAge are
// dropped first. It returns common.ErrQueueBusy if a pass is already running
// and common.ErrOffline when the network is down.
func (q *Queue) ProcessUploadQueue(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult

	err := q.exclusive(ctx, true, func(p *pass) error {
		result.Expired = p.dropExpired(q.now(), q.cfg.MaxAge)
		if result.Expired > 0 {
			if err := p.persist(ctx); err != nil {
				return err
			}
		}

		for _, id := range p.ordered(model.UploadPending, q.cfg.SortByPriority) {
			if err := ctx.Err(); err != nil {
				return err
			}

			uploadErr, err := q.attempt(ctx, p, id)
			if err != nil {
				return err
			}

			result.Processed++
			if uploadErr != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
		}
		return nil
	})

	if err == nil {
		q.logger.Info("Processed upload queue",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"expired", result.Expired)
	}
	return result, err
}

// RetryResult summarises a RetryFailedUploads pass.
type RetryResult struct {
	Retried    int
	Successful int
	Failed     int
	Skipped    int // Items at the retry cap; they are not attempted
}

// Err reports items stuck at the retry cap as an ErrMaxRetries error, or nil.
func (r RetryResult) Err() error {
	if r.Skipped == 0 {
		return nil
	}
	return fmt.Errorf("%d uploads: %w", r.Skipped, common.ErrMaxRetries)
}

// RetryFailedUploads re-attempts failed items under the retry cap, waiting
// BaseDelay * 2^retryCount before each attempt when Backoff is enabled.
func (q *Queue) RetryFailedUploads(ctx context.Context) (RetryResult, error) {
	var result RetryResult

	err := q.exclusive(ctx, true, func(p *pass) error {
		for _, id := range p.ordered(model.UploadFailed, q.cfg.SortByPriority) {
			idx := indexOf(p.items, id)
			if p.items[idx].Exhausted(q.cfg.MaxRetries) {
				result.Skipped++
				continue
			}

			if q.cfg.Backoff {
				delay := common.Backoff(p.items[idx].RetryCount, q.cfg.BaseDelay, 0)
				if err := q.sleep(ctx, delay); err != nil {
					return err
				}
			}

			uploadErr, err := q.attempt(ctx, p, id)
			if err != nil {
				return err
			}

			result.Retried++
			if uploadErr != nil {
				result.Failed++
			} else {
				result.Successful++
			}
		}
		return nil
	})

	if err == nil {
		q.logger.Info("Retried failed uploads",
			"retried", result.Retried,
			"successful", result.Successful,
			"failed", result.Failed,
			"skipped", result.Skipped)
	}
	return result, err
}

// exclusive runs fn over the loaded queue while holding the processing flag.
// Items left uploading by an interrupted pass are reset to pending.
func (q *Queue) exclusive(ctx context.Context, needOnline bool, fn func(p *pass) error) error {
	if !q.processing.CompareAndSwap(false, true) {
		return common.ErrQueueBusy
	}
	defer q.processing.Store(false)

	if needOnline && !q.network.Online() {
		return common.ErrOffline
	}

	q.mu.Lock()
	items, err := q.repo.Load(ctx)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	p := &pass{q: q, items: items, seen: make(map[string]bool, len(items))}
	for i := range p.items {
		p.seen[p.items[i].ID] = true
		if p.items[i].Status == model.UploadUploading {
			p.items[i].Status = model.UploadPending
		}
	}

	err = fn(p)
	q.metrics.recordDepth(p.items, q.cfg.MaxRetries)
	return err
}

// attempt uploads one item, persisting the uploading state before the network
// call and the outcome after it. uploadErr is the upload's error; err is a
// storage failure that should end the pass.
func (q *Queue) attempt(ctx context.Context, p *pass, id string) (uploadErr, err error) {
	idx := indexOf(p.items, id)
	if idx < 0 {
		return nil, nil
	}

	previous := p.items[idx].Status
	p.items[idx].Status = model.UploadUploading
	p.items[idx].LastAttempt = q.now()
	if err := p.persist(ctx); err != nil {
		return nil, err
	}

	ref, uploadErr := q.uploader.Upload(ctx, p.items[idx].Upload)

	// An interrupted upload is not a failure: restore the item untouched and
	// save it even though ctx is done.
	if uploadErr != nil && ctx.Err() != nil {
		p.items[idx].Status = previous
		q.logger.Info("Upload interrupted, item kept", "id", id, "status", previous)
		if err := p.persist(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		return nil, ctx.Err()
	}
	q.metrics.recordAttempt(uploadErr)

	if uploadErr == nil {
		q.logger.Debug("Uploaded queued receipt", "id", id, "ref", ref)
		p.items = append(p.items[:idx], p.items[idx+1:]...)
	} else {
		item := &p.items[idx]
		item.Status = model.UploadFailed
		item.RetryCount++
		item.LastError = uploadErr.Error()
		if !common.IsRetryable(uploadErr) {
			item.RetryCount = max(item.RetryCount, q.cfg.MaxRetries)
		}
		q.logger.Warn("Queued upload failed",
			"id", id,
			"retry_count", item.RetryCount,
			"error", uploadErr)
	}

	if err := p.persist(ctx); err != nil {
		return uploadErr, err
	}
	return uploadErr, nil
}

// pass is the in-memory queue during one processing run.
type pass struct {
	q     *Queue
	seen  map[string]bool
	items []model.QueueItem
}

// persist saves the pass's items, first adopting any item Enqueue stored
// since the pass began.
func (p *pass) persist(ctx context.Context) error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()

	stored, err := p.q.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload upload queue: %w", err)
	}
	for _, item := range stored {
		if !p.seen[item.ID] {
			p.seen[item.ID] = true
			p.items = append(p.items, item)
		}
	}
	return p.q.repo.Save(ctx, p.items)
}

func (p *pass) dropExpired(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	kept := p.items[:0]
	expired := 0
	for _, item := range p.items {
		if age := now.Sub(item.Timestamp); age > maxAge {
			expired++
			p.q.logger.Info("Dropping expired upload", "id", item.ID, "age", age)
			continue
		}
		kept = append(kept, item)
	}
	p.items = kept
	return expired
}

// ordered lists the IDs of items with status in processing order.
func (p *pass) ordered(status model.UploadStatus, byPriority bool) []string {
	selected := make([]model.QueueItem, 0, len(p.items))
	for _, item := range p.items {
		if item.Status == status {
			selected = append(selected, item)
		}
	}

	if byPriority {
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Priority.Rank() < selected[j].Priority.Rank()
		})
	}

	ids := make([]string, len(selected))
	for i, item := range selected {
		ids[i] = item.ID
	}
	return ids
}

func indexOf(items []model.QueueItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
