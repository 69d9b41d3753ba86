package storage

import (
	"context"

	"github.com/Veraticus/tandem/internal/model"
)

const subscriberBuffer = 16

// Subscribe delivers an event after every committed write that added expenses.
// The channel closes when ctx is done or the storage is closed. Slow
// subscribers miss events rather than blocking writers.
func (s *SQLiteStorage) Subscribe(ctx context.Context) <-chan model.ExpenseEvent {
	ch := make(chan model.ExpenseEvent, subscriberBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}()

	return ch
}

func (s *SQLiteStorage) publish(event model.ExpenseEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("Dropping expense event for slow subscriber",
				"couple_id", event.CoupleID,
				"expenses", len(event.Expenses))
		}
	}
}
