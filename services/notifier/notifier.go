package notifier

import "time"

// Summary describes the outcome of one catalog run. It is what gets
// pushed to downstream consumers after a run that changed anything.
type Summary struct {
	Action        string    `json:"action"`
	AddedCount    int       `json:"addedCount"`
	RemovedCount  int       `json:"removedCount"`
	UpdatedCount  int       `json:"updatedCount"`
	TotalProducts int       `json:"totalProducts"`
	Categories    []string  `json:"categories"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier represents a service for publishing run summaries
type Notifier interface {
	// Notify publishes a run summary
	Notify(summary Summary) error

	// TrimStream trims the stream to the configured maximum length
	TrimStream() error

	// Close closes the notifier connection
	Close() error
}
