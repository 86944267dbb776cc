package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// UploadBatchRepository — доступ к таблице upload_batches.
type UploadBatchRepository interface {
	// Create создаёт запись пакета в статусе processing.
	Create(ctx context.Context, b *model.UploadBatch) error
	// Complete записывает итоговые счётчики и переводит пакет в completed.
	Complete(ctx context.Context, b *model.UploadBatch) error
	// GetByID возвращает пакет по идентификатору.
	GetByID(ctx context.Context, id string) (*model.UploadBatch, error)
}

type uploadBatchRepo struct {
	db DBTX
}

// NewUploadBatchRepository создаёт репозиторий пакетов загрузки.
func NewUploadBatchRepository(db DBTX) UploadBatchRepository {
	return &uploadBatchRepo{db: db}
}

func (r *uploadBatchRepo) Create(ctx context.Context, b *model.UploadBatch) error {
	if b.Status == "" {
		b.Status = model.BatchProcessing
	}
	query := `
		INSERT INTO upload_batches (id, anlage_id, user_id, total_files, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.FacilityID, b.UserID, b.TotalFiles, string(b.Status),
	).Scan(&b.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пакет %s", ErrConflict, b.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: объект %d или пользователь %d", ErrNotFound, b.FacilityID, b.UserID)
		}
		return fmt.Errorf("ошибка создания пакета: %w", err)
	}
	return nil
}

func (r *uploadBatchRepo) Complete(ctx context.Context, b *model.UploadBatch) error {
	query := `
		UPDATE upload_batches
		SET processed_files = $2, successful_files = $3, failed_files = $4,
			status = 'completed', completed_at = NOW()
		WHERE id = $1
		RETURNING completed_at`

	var completedAt time.Time
	err := r.db.QueryRow(ctx, query,
		b.ID, b.ProcessedFiles, b.SuccessfulFiles, b.FailedFiles,
	).Scan(&completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка завершения пакета: %w", err)
	}
	b.Status = model.BatchCompleted
	b.CompletedAt = &completedAt
	return nil
}

func (r *uploadBatchRepo) GetByID(ctx context.Context, id string) (*model.UploadBatch, error) {
	query := `
		SELECT id, anlage_id, user_id, total_files, processed_files, successful_files,
			failed_files, status, started_at, completed_at
		FROM upload_batches
		WHERE id = $1`

	b := &model.UploadBatch{}
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.FacilityID, &b.UserID, &b.TotalFiles, &b.ProcessedFiles,
		&b.SuccessfulFiles, &b.FailedFiles, &status, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пакета: %w", err)
	}
	b.Status = model.BatchStatus(status)
	return b, nil
}
