package domain

import (
	"context"
	"time"
)

// RecordStatus enumerates the customer-facing lifecycle of a generation request.
type RecordStatus string

const (
	RecordQueued    RecordStatus = "QUEUED"
	RecordRunning   RecordStatus = "RUNNING"
	RecordSucceeded RecordStatus = "SUCCEEDED"
	// RecordFailed is only used for hard failures where not even a placeholder could be written.
	RecordFailed RecordStatus = "FAILED"
)

// GenerationRecord is the persisted view of a request and its result.
type GenerationRecord struct {
	ID            string
	OrderID       string
	Prompt        string
	Duration      int
	AspectRatio   AspectRatio
	ImageKey      string
	ImageMIME     string
	Status        RecordStatus
	ProviderUsed  string
	VideoLocation string
	ErrorDetail   string
	ElapsedMS     int64
	Attempts      []Attempt
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GenerationRepository persists generation records.
type GenerationRepository interface {
	Create(ctx context.Context, rec *GenerationRecord) error
	Get(ctx context.Context, id string) (*GenerationRecord, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, result *GenerationResult) error
	Fail(ctx context.Context, id, detail string, attempts []Attempt) error
	// Requeue moves a RUNNING record back to QUEUED after an interrupted run.
	Requeue(ctx context.Context, id string) error
}
