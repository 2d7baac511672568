package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGenerationRepository creates a repository backed by PostgreSQL.
func NewGenerationRepository(db infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{db: db}
}

// Create inserts a QUEUED record and fills its timestamps.
func (r *GenerationRepositoryPG) Create(ctx context.Context, rec *domain.GenerationRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return domain.ErrInvalidArgs
	}
	if rec.AspectRatio == "" {
		rec.AspectRatio = domain.AspectLandscape
	}
	if rec.Duration <= 0 {
		rec.Duration = domain.DefaultDurationSeconds
	}
	err := r.db.QueryRow(ctx, sqlinline.QInsertGeneration,
		rec.ID,
		rec.OrderID,
		rec.Prompt,
		rec.Duration,
		string(rec.AspectRatio),
		rec.ImageKey,
		rec.ImageMIME,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	rec.Status = domain.RecordQueued
	return nil
}

// Get fetches a record by id.
func (r *GenerationRepositoryPG) Get(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	var (
		rec      domain.GenerationRecord
		aspect   string
		status   string
		attempts []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QSelectGeneration, id).Scan(
		&rec.ID,
		&rec.OrderID,
		&rec.Prompt,
		&rec.Duration,
		&aspect,
		&rec.ImageKey,
		&rec.ImageMIME,
		&status,
		&rec.ProviderUsed,
		&rec.VideoLocation,
		&rec.ErrorDetail,
		&rec.ElapsedMS,
		&attempts,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select generation: %w", err)
	}
	rec.AspectRatio = domain.AspectRatio(aspect)
	rec.Status = domain.RecordStatus(status)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return &rec, nil
}

// MarkRunning claims a QUEUED record. A record already RUNNING is reclaimed so an
// interrupted worker's request is not stuck.
func (r *GenerationRepositoryPG) MarkRunning(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QMarkGenerationRunning, id)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete stores the successful result.
func (r *GenerationRepositoryPG) Complete(ctx context.Context, result *domain.GenerationResult) error {
	if result == nil || !result.Success {
		return domain.ErrInvalidArgs
	}
	attempts, err := encodeAttempts(result.Attempts)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QCompleteGeneration,
		result.RequestID,
		result.ProviderUsed,
		result.VideoLocation,
		result.StorageKey,
		result.MIME,
		result.Elapsed.Milliseconds(),
		attempts,
	)
	if err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Fail marks the record FAILED with a user-visible detail.
func (r *GenerationRepositoryPG) Fail(ctx context.Context, id, detail string, attempts []domain.Attempt) error {
	var payload []byte
	if attempts != nil {
		var err error
		if payload, err = encodeAttempts(attempts); err != nil {
			return err
		}
	}
	tag, err := r.db.Exec(ctx, sqlinline.QFailGeneration, id, detail, payload)
	if err != nil {
		return fmt.Errorf("fail generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Requeue returns a RUNNING record to QUEUED.
func (r *GenerationRepositoryPG) Requeue(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QRequeueGeneration, id); err != nil {
		return fmt.Errorf("requeue generation: %w", err)
	}
	return nil
}

func encodeAttempts(attempts []domain.Attempt) ([]byte, error) {
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	b, err := json.Marshal(attempts)
	if err != nil {
		return nil, fmt.Errorf("encode attempts: %w", err)
	}
	return b, nil
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
