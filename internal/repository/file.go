package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// FileRepository — доступ к таблице files.
// Записи только добавляются, обновления не предусмотрены.
type FileRepository interface {
	// Insert добавляет запись о файле, заполняет ID и CreatedAt.
	Insert(ctx context.Context, f *model.File) error
	// ListByFacility возвращает файлы объекта, новые первыми.
	ListByFacility(ctx context.Context, facilityID int64) ([]*model.File, error)
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Insert(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (anlage_id, filename, original_filename, mimetype, size,
			remote_storage_id, batch_id, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.FacilityID, f.Filename, f.OriginalFilename, f.MimeType, f.Size,
		f.RemoteStorageID, f.BatchID, f.UploadedBy,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: объект %d или пользователь %d", ErrNotFound, f.FacilityID, f.UploadedBy)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

func (r *fileRepo) ListByFacility(ctx context.Context, facilityID int64) ([]*model.File, error) {
	query := `
		SELECT id, anlage_id, filename, original_filename, mimetype, size,
			remote_storage_id, COALESCE(batch_id, ''), uploaded_by, created_at
		FROM files
		WHERE anlage_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f := &model.File{}
		if err := rows.Scan(
			&f.ID, &f.FacilityID, &f.Filename, &f.OriginalFilename, &f.MimeType, &f.Size,
			&f.RemoteStorageID, &f.BatchID, &f.UploadedBy, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации файлов: %w", err)
	}
	return result, nil
}
