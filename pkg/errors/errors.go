package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page navigation failures (timeouts, network)
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction represents HTML extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeStorage represents catalog storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRateLimit represents rate limiting by the scraped site
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNotify represents notification publishing errors
	ErrorTypeNotify ErrorType = "notify"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// SyncError represents an error raised somewhere in the sync pipeline,
// tagged with the category being walked when it happened.
type SyncError struct {
	Type     ErrorType
	Category string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Category, e.Message)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is worth retrying. Navigation
// failures are transient; a rate limit means back off, not retry.
func (e *SyncError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNavigation:
		return true
	default:
		return false
	}
}

// New creates a new SyncError
func New(errType ErrorType, category, message string, err error) *SyncError {
	return &SyncError{
		Type:     errType,
		Category: category,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(category, message string, err error) *SyncError {
	return New(ErrorTypeNavigation, category, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(category, message string, err error) *SyncError {
	return New(ErrorTypeExtraction, category, message, err)
}

// NewStorage creates a new storage error
func NewStorage(category, message string, err error) *SyncError {
	return New(ErrorTypeStorage, category, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(category string, duration time.Duration) *SyncError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, category, message, nil)
}

// NewNotify creates a new notification error
func NewNotify(message string, err error) *SyncError {
	return New(ErrorTypeNotify, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *SyncError {
	return New(ErrorTypeConfiguration, "", message, err)
}
