package model

// DuplicateStatus summarises how likely a candidate already exists.
type DuplicateStatus struct {
	DuplicateCount    int
	HighestConfidence float64
	HasDuplicates     bool
	AutoSkip          bool // Default the row to unselected in review
}
