// dto.go — JSON-представления доменных моделей.
package handlers

import (
	"time"

	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/service"
)

type userDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func mapIdentity(id model.Identity) userDTO {
	return userDTO{ID: id.UserID, Email: id.Email, Name: id.Name, Role: string(id.Role)}
}

type fileDTO struct {
	ID               int64     `json:"id"`
	AnlageID         int64     `json:"anlage_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mimetype"`
	Size             int64     `json:"size"`
	GoogleDriveID    string    `json:"google_drive_id"`
	BatchID          string    `json:"batch_id,omitempty"`
	UploadedBy       int64     `json:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at"`
}

func mapFile(f *model.File) fileDTO {
	return fileDTO{
		ID:               f.ID,
		AnlageID:         f.FacilityID,
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		MimeType:         f.MimeType,
		Size:             f.Size,
		GoogleDriveID:    f.RemoteStorageID,
		BatchID:          f.BatchID,
		UploadedBy:       f.UploadedBy,
		CreatedAt:        f.CreatedAt,
	}
}

func mapFiles(files []*model.File) []fileDTO {
	out := make([]fileDTO, len(files))
	for i, f := range files {
		out[i] = mapFile(f)
	}
	return out
}

type facilityDTO struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Address             string    `json:"address"`
	Description         *string   `json:"description"`
	GoogleDriveFolderID *string   `json:"google_drive_folder_id"`
	CreatedBy           int64     `json:"created_by"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
}

func mapFacility(f *model.Facility) facilityDTO {
	return facilityDTO{
		ID:                  f.ID,
		Name:                f.Name,
		Address:             f.Address,
		Description:         f.Description,
		GoogleDriveFolderID: f.RemoteFolderID,
		CreatedBy:           f.CreatedBy,
		Active:              f.Active,
		CreatedAt:           f.CreatedAt,
	}
}

// --- upload ---

type batchDTO struct {
	ID         string `json:"id"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

type failedFileDTO struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type uploadFilesDTO struct {
	Successful []fileDTO       `json:"successful"`
	Failed     []failedFileDTO `json:"failed"`
}

type statisticsDTO struct {
	TotalSize        int64    `json:"total_size"`
	ProcessingTimeMS int64    `json:"processing_time"`
	FileTypes        []string `json:"file_types"`
}

type uploadResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Batch      batchDTO       `json:"batch"`
	Files      uploadFilesDTO `json:"files"`
	Statistics statisticsDTO  `json:"statistics"`
}

func mapManifest(m *service.Manifest, message string) uploadResponse {
	failed := make([]failedFileDTO, len(m.Failed))
	for i, f := range m.Failed {
		failed[i] = failedFileDTO{Filename: f.Filename, Error: f.Error}
	}
	fileTypes := m.Statistics.FileTypes
	if fileTypes == nil {
		fileTypes = []string{}
	}
	return uploadResponse{
		Success: true,
		Message: message,
		Batch: batchDTO{
			ID:         m.Batch.ID,
			Total:      m.Batch.Total,
			Successful: m.Batch.Successful,
			Failed:     m.Batch.Failed,
		},
		Files: uploadFilesDTO{
			Successful: mapFiles(m.Successful),
			Failed:     failed,
		},
		Statistics: statisticsDTO{
			TotalSize:        m.Statistics.TotalSize,
			ProcessingTimeMS: m.Statistics.ProcessingTime.Milliseconds(),
			FileTypes:        fileTypes,
		},
	}
}

// --- progress ---

type progressErrorDTO struct {
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type progressDTO struct {
	BatchID         string             `json:"batchId"`
	Status          string             `json:"status"`
	FilesTotal      int                `json:"files_total"`
	FilesProcessed  int                `json:"files_processed"`
	FilesSuccessful int                `json:"files_successful"`
	FilesFailed     int                `json:"files_failed"`
	ProgressPercent int                `json:"progress_percent"`
	Errors          []progressErrorDTO `json:"errors"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

func mapProgress(p service.Progress) progressDTO {
	errs := make([]progressErrorDTO, len(p.Errors))
	for i, e := range p.Errors {
		errs[i] = progressErrorDTO{Filename: e.Filename, Error: e.Message, Timestamp: e.Timestamp}
	}
	return progressDTO{
		BatchID:         p.BatchID,
		Status:          string(p.Status),
		FilesTotal:      p.Total,
		FilesProcessed:  p.Processed,
		FilesSuccessful: p.Success,
		FilesFailed:     p.Failed,
		ProgressPercent: p.Percent(),
		Errors:          errs,
		StartedAt:       p.StartedAt,
		CompletedAt:     p.CompletedAt,
	}
}
