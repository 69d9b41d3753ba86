package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
)

// Repository persists the whole queue as one opaque list.
type Repository interface {
	Load(ctx context.Context) ([]model.QueueItem, error)
	Save(ctx context.Context, items []model.QueueItem) error
}

// KVStore is the durable key/value store the default repository writes to.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// DefaultStorageKey is where KVRepository keeps the serialized queue.
const DefaultStorageKey = "upload_queue"

// KVRepository stores the queue as JSON under a single key.
type KVRepository struct {
	store KVStore
	key   string
}

// NewKVRepository creates a repository over store; an empty key uses DefaultStorageKey.
func NewKVRepository(store KVStore, key string) *KVRepository {
	if key == "" {
		key = DefaultStorageKey
	}
	return &KVRepository{store: store, key: key}
}

// Load returns the stored items; a missing key is an empty queue.
func (r *KVRepository) Load(ctx context.Context) ([]model.QueueItem, error) {
	data, err := r.store.Get(ctx, r.key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload queue: %w", err)
	}
	return decodeItems(data)
}

// Save replaces the stored items.
func (r *KVRepository) Save(ctx context.Context, items []model.QueueItem) error {
	data, err := encodeItems(items)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to save upload queue: %w", err)
	}
	return nil
}

// MemoryRepository keeps the queue in process memory. Useful in tests.
type MemoryRepository struct {
	items []model.QueueItem
	saves int
	mu    sync.Mutex
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Load returns a copy of the stored items.
func (r *MemoryRepository) Load(_ context.Context) ([]model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.QueueItem(nil), r.items...), nil
}

// Save replaces the stored items.
func (r *MemoryRepository) Save(_ context.Context, items []model.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]model.QueueItem(nil), items...)
	r.saves++
	return nil
}

// Saves counts Save calls.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func encodeItems(items []model.QueueItem) ([]byte, error) {
	if items == nil {
		items = []model.QueueItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshaling upload queue: %w", err)
	}
	return data, nil
}

func decodeItems(data []byte) ([]model.QueueItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []model.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling upload queue: %w", err)
	}
	return items, nil
}
