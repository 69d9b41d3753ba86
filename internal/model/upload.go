package model

import "time"

// UploadStatus is the state of a queued receipt upload.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadFailed    UploadStatus = "failed"
)

// UploadPriority orders queue processing when priority sorting is enabled.
type UploadPriority string

const (
	PriorityHigh   UploadPriority = "high"
	PriorityMedium UploadPriority = "medium"
	PriorityNormal UploadPriority = "normal"
	PriorityLow    UploadPriority = "low"
)

// Rank returns a sort weight; lower ranks are processed first.
func (p UploadPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Upload is the payload of a receipt upload.
type Upload struct {
	ImageRef    string `json:"image_ref"`
	OwnerID     string `json:"owner_id"`
	ContextID   string `json:"context_id"` // Expense or couple the receipt belongs to
	ContentType string `json:"content_type,omitempty"`
}

// QueueItem is a pending or failed upload persisted across restarts.
type QueueItem struct {
	Timestamp   time.Time      `json:"timestamp"`
	LastAttempt time.Time      `json:"last_attempt,omitzero"`
	ID          string         `json:"id"`
	Status      UploadStatus   `json:"status"`
	Priority    UploadPriority `json:"priority"`
	LastError   string         `json:"last_error,omitempty"`
	Upload      Upload         `json:"upload"`
	RetryCount  int            `json:"retry_count"`
}

// Exhausted reports whether the item has used up its automatic retries.
func (i QueueItem) Exhausted(maxRetries int) bool {
	return i.Status == UploadFailed && i.RetryCount >= maxRetries
}
