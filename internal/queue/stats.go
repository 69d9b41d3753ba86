package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
)

// Stats describes the queue for status displays.
type Stats struct {
	ByPriority  map[model.UploadPriority]int
	Total       int
	Pending     int
	Uploading   int
	Failed      int // Failed items still under the retry cap
	Skipped     int // Failed items that exhausted their retries
	OldestWait  time.Duration
	AverageWait time.Duration
}

// Stats summarises the current queue.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	items, err := q.Items(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:      len(items),
		ByPriority: make(map[model.UploadPriority]int),
	}
	now := q.now()
	var totalWait time.Duration

	for _, item := range items {
		switch {
		case item.Exhausted(q.cfg.MaxRetries):
			stats.Skipped++
		case item.Status == model.UploadFailed:
			stats.Failed++
		case item.Status == model.UploadUploading:
			stats.Uploading++
		default:
			stats.Pending++
		}
		stats.ByPriority[item.Priority]++

		wait := now.Sub(item.Timestamp)
		totalWait += wait
		stats.OldestWait = max(stats.OldestWait, wait)
	}

	if len(items) > 0 {
		stats.AverageWait = totalWait / time.Duration(len(items))
	}
	return stats, nil
}

// Items returns a snapshot of the queue.
func (q *Queue) Items(ctx context.Context) ([]model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repo.Load(ctx)
}

// Remove deletes one item, typically a skipped upload the user gave up on.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.exclusive(ctx, false, func(p *pass) error {
		idx := indexOf(p.items, id)
		if idx < 0 {
			return fmt.Errorf("upload %s: %w", id, common.ErrNotFound)
		}
		p.items = append(p.items[:idx], p.items[idx+1:]...)
		return p.persist(ctx)
	})
}

// Clear empties the queue and returns how many items it held.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	var n int
	err := q.exclusive(ctx, false, func(p *pass) error {
		n = len(p.items)
		p.items = nil
		return p.persist(ctx)
	})
	return n, err
}

// Watch processes the queue on every offline to online transition delivered on
// changes, until changes is closed. Subscribe before the monitor starts checking
// so the first transition is not missed. It does nothing when AutoProcess is off.
func (q *Queue) Watch(ctx context.Context, changes <-chan bool) {
	if !q.cfg.AutoProcess {
		return
	}

	for online := range changes {
		if !online {
			continue
		}

		q.logger.Info("Back online, processing upload queue")
		if _, err := q.ProcessUploadQueue(ctx); err != nil {
			q.logger.Warn("Upload queue processing failed", "error", err)
			continue
		}
		result, err := q.RetryFailedUploads(ctx)
		if err != nil {
			q.logger.Warn("Retrying failed uploads failed", "error", err)
		} else if err := result.Err(); err != nil {
			q.logger.Warn("Uploads need attention", "error", err)
		}
	}
}
