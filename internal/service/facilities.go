// facilities.go — объекты (Anlagen) и чтение их файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/repository"
)

// Ограничения длины полей объекта (соответствуют схеме БД).
const (
	maxFacilityNameLen   = 255
	maxRemoteFolderIDLen = 255
)

// FacilityService — объекты и их файлы.
type FacilityService struct {
	facilities repository.FacilityRepository
	files      repository.FileRepository
	logger     *slog.Logger
}

// NewFacilityService создаёт сервис объектов.
func NewFacilityService(
	facilities repository.FacilityRepository,
	files repository.FileRepository,
	logger *slog.Logger,
) *FacilityService {
	return &FacilityService{
		facilities: facilities,
		files:      files,
		logger:     logger.With(slog.String("component", "facility_service")),
	}
}

// CreateFacilityParams — параметры создания объекта.
type CreateFacilityParams struct {
	Name           string
	Address        string
	Description    *string
	RemoteFolderID *string
	CreatedBy      int64
}

// FileListing — файлы объекта с агрегатами.
type FileListing struct {
	FacilityID int64
	TotalFiles int
	TotalSize  int64
	Files      []*model.File
}

// List возвращает активные объекты. Пустой результат — пустой срез.
func (s *FacilityService) List(ctx context.Context) ([]*model.Facility, error) {
	list, err := s.facilities.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Facility{}
	}
	return list, nil
}

// Create проверяет параметры и создаёт объект.
func (s *FacilityService) Create(ctx context.Context, p CreateFacilityParams) (*model.Facility, error) {
	name := strings.TrimSpace(p.Name)
	address := strings.TrimSpace(p.Address)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name обязателен", ErrValidation)
	case utf8.RuneCountInString(name) > maxFacilityNameLen:
		return nil, fmt.Errorf("%w: name длиннее %d символов", ErrValidation, maxFacilityNameLen)
	case address == "":
		return nil, fmt.Errorf("%w: address обязателен", ErrValidation)
	case p.RemoteFolderID != nil && utf8.RuneCountInString(*p.RemoteFolderID) > maxRemoteFolderIDLen:
		return nil, fmt.Errorf("%w: remote_folder_id длиннее %d символов", ErrValidation, maxRemoteFolderIDLen)
	}

	f := &model.Facility{
		Name:           name,
		Address:        address,
		Description:    trimOptional(p.Description),
		RemoteFolderID: trimOptional(p.RemoteFolderID),
		CreatedBy:      p.CreatedBy,
	}
	if err := s.facilities.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: создатель объекта не найден", ErrValidation)
		}
		return nil, err
	}

	s.logger.Info("Объект создан",
		slog.Int64("facility_id", f.ID),
		slog.String("name", f.Name),
		slog.Int64("created_by", f.CreatedBy),
	)
	return f, nil
}

// Get возвращает активный объект или ErrFacilityNotFound.
func (s *FacilityService) Get(ctx context.Context, id int64) (*model.Facility, error) {
	f, err := s.facilities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}
	if !f.Active {
		return nil, ErrFacilityNotFound
	}
	return f, nil
}

// Files возвращает файлы объекта (новые первыми) с количеством и суммарным размером.
// Для объекта без файлов — нулевые агрегаты и пустой срез.
func (s *FacilityService) Files(ctx context.Context, facilityID int64) (*FileListing, error) {
	if _, err := s.Get(ctx, facilityID); err != nil {
		return nil, err
	}

	files, err := s.files.ListByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	listing := &FileListing{FacilityID: facilityID, Files: make([]*model.File, 0, len(files))}
	for _, f := range files {
		listing.Files = append(listing.Files, f)
		listing.TotalSize += f.Size
	}
	listing.TotalFiles = len(listing.Files)
	return listing, nil
}

// Stats возвращает агрегированную статистику файлов объекта.
func (s *FacilityService) Stats(ctx context.Context, facilityID int64) (*model.FacilityStats, error) {
	if _, err := s.Get(ctx, facilityID); err != nil {
		return nil, err
	}
	return s.facilities.Stats(ctx, facilityID)
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
