package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// FacilityRepository — доступ к таблице anlagen.
type FacilityRepository interface {
	// Create создаёт объект, заполняет ID и CreatedAt.
	Create(ctx context.Context, f *model.Facility) error
	// GetByID возвращает объект по ID (в том числе неактивный).
	GetByID(ctx context.Context, id int64) (*model.Facility, error)
	// List возвращает активные объекты, отсортированные по имени.
	List(ctx context.Context) ([]*model.Facility, error)
	// Stats возвращает агрегированную статистику файлов объекта.
	Stats(ctx context.Context, id int64) (*model.FacilityStats, error)
}

type facilityRepo struct {
	db DBTX
}

// NewFacilityRepository создаёт репозиторий объектов.
func NewFacilityRepository(db DBTX) FacilityRepository {
	return &facilityRepo{db: db}
}

const facilityColumns = `id, name, address, description, remote_folder_id, created_by, active, created_at`

func (r *facilityRepo) Create(ctx context.Context, f *model.Facility) error {
	query := `
		INSERT INTO anlagen (name, address, description, remote_folder_id, created_by, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, active, created_at`

	err := r.db.QueryRow(ctx, query,
		f.Name, f.Address, f.Description, f.RemoteFolderID, f.CreatedBy,
	).Scan(&f.ID, &f.Active, &f.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пользователь %d", ErrNotFound, f.CreatedBy)
		}
		return fmt.Errorf("ошибка создания объекта: %w", err)
	}
	return nil
}

func (r *facilityRepo) GetByID(ctx context.Context, id int64) (*model.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM anlagen WHERE id = $1`

	f := &model.Facility{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.Name, &f.Address, &f.Description, &f.RemoteFolderID,
		&f.CreatedBy, &f.Active, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения объекта: %w", err)
	}
	return f, nil
}

func (r *facilityRepo) List(ctx context.Context) ([]*model.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM anlagen WHERE active ORDER BY name, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка объектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Facility
	for rows.Next() {
		f := &model.Facility{}
		if err := rows.Scan(
			&f.ID, &f.Name, &f.Address, &f.Description, &f.RemoteFolderID,
			&f.CreatedBy, &f.Active, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования объекта: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации объектов: %w", err)
	}
	return result, nil
}

func (r *facilityRepo) Stats(ctx context.Context, id int64) (*model.FacilityStats, error) {
	query := `
		SELECT split_part(mimetype, '/', 1) AS category, COUNT(*), COALESCE(SUM(size), 0)
		FROM files
		WHERE anlage_id = $1
		GROUP BY category`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики объекта: %w", err)
	}
	defer rows.Close()

	stats := &model.FacilityStats{FacilityID: id, ByCategory: map[string]int{}}
	for rows.Next() {
		var (
			category string
			count    int
			size     int64
		)
		if err := rows.Scan(&category, &count, &size); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		stats.ByCategory[category] = count
		stats.TotalFiles += count
		stats.TotalSize += size
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации статистики: %w", err)
	}
	return stats, nil
}
