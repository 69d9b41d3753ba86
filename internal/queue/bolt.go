package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tandem/internal/model"
	"go.etcd.io/bbolt"
)

const (
	boltBucket = "upload_queue"
	boltKey    = "items"
)

// BoltRepository persists the queue in a standalone bbolt file, for setups
// that keep the upload queue apart from the expense database.
type BoltRepository struct {
	db *bbolt.DB
}

// NewBoltRepository opens (creating if needed) the bbolt file at path.
func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

// Load returns the stored items.
func (r *BoltRepository) Load(_ context.Context) ([]model.QueueItem, error) {
	var items []model.QueueItem
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(boltBucket)).Get([]byte(boltKey))
		decoded, err := decodeItems(data)
		if err != nil {
			return err
		}
		items = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Save replaces the stored items.
func (r *BoltRepository) Save(_ context.Context, items []model.QueueItem) error {
	data, err := encodeItems(items)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(boltKey), data)
	})
}

// Close releases the bbolt file lock.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}
