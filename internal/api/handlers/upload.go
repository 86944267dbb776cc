// upload.go — пакетная загрузка файлов и опрос прогресса.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/intake"
	"github.com/bigkaa/objektpro/internal/service"
)

// BatchIDHeader — заголовок с идентификатором пакета, выбранным клиентом.
const BatchIDHeader = "X-Batch-ID"

var batchIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// UploadFiles — POST /api/files/upload/{anlageId}.
// Порядок: объект → резерв пакета в реестре прогресса → приём файлов
// на диск → регистрация в БД. Отказ приёма отклоняет запрос целиком,
// ошибки отдельных файлов при регистрации попадают в список failed.
func (h *APIHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется авторизация")
		return
	}

	facilityID, err := pathInt64(r, "anlageId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	batchID := r.Header.Get(BatchIDHeader)
	if batchID == "" {
		batchID = service.NewBatchID()
	} else if !batchIDPattern.MatchString(batchID) {
		apierrors.ValidationError(w, "Некорректный "+BatchIDHeader+": допустимы A-Z, a-z, 0-9, _ и -, до 64 символов")
		return
	}

	if _, err := h.facilities.Get(r.Context(), facilityID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Объект не найден")
			return
		}
		h.logger.Error("Ошибка получения объекта", "anlage_id", facilityID, "error", err)
		h.systemError(w, "Ошибка получения объекта", err)
		return
	}

	if err := h.ingest.Reserve(batchID); err != nil {
		apierrors.Conflict(w, fmt.Sprintf("Пакет %s уже существует", batchID))
		return
	}

	h.intake.LimitBody(w, r)
	files, err := h.intake.Accept(r, batchID)
	if err != nil {
		ie, ok := intake.AsError(err)
		if !ok {
			ie = &intake.Error{Kind: intake.KindSystem, Message: "ошибка приёма файлов", Err: err}
		}
		h.ingest.Abandon(batchID, ie.Message)
		h.writeIntakeError(w, ie)
		return
	}

	manifest, err := h.ingest.Ingest(r.Context(), service.IngestRequest{
		BatchID:    batchID,
		FacilityID: facilityID,
		UserID:     identity.UserID,
		Files:      files,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoFilesUploaded):
			apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeNoFilesUploaded, "Файлы не загружены")
		case errors.Is(err, service.ErrFacilityNotFound):
			apierrors.NotFound(w, "Объект не найден")
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, fmt.Sprintf("Пакет %s уже существует", batchID))
		default:
			h.logger.Error("Ошибка регистрации пакета", "batch_id", batchID, "error", err)
			h.systemError(w, "Ошибка сохранения пакета", err)
		}
		return
	}

	message := fmt.Sprintf("Загружено файлов: %d из %d", manifest.Batch.Successful, manifest.Batch.Total)
	writeJSON(w, http.StatusOK, mapManifest(manifest, message))
}

// writeIntakeError отвечает на отказ приёма с ограничениями политики.
func (h *APIHandler) writeIntakeError(w http.ResponseWriter, ie *intake.Error) {
	policy := h.intake.Policy()
	extra := map[string]any{
		"supported_types": policy.AllowedTypes,
		"max_file_size":   policy.MaxFileSize,
		"max_files":       policy.MaxFiles,
	}

	status := http.StatusBadRequest
	message := ie.Message
	switch ie.Kind {
	case intake.KindFileTooLarge, intake.KindTooManyFiles:
		status = http.StatusRequestEntityTooLarge
	case intake.KindSystem:
		status = http.StatusInternalServerError
		h.logger.Error("Ошибка приёма файлов", "error", ie.Error())
		if h.diagnostic && ie.Err != nil {
			message = fmt.Sprintf("%s: %v", ie.Message, ie.Err)
		}
	}

	apierrors.WriteErrorWith(w, status, string(ie.Kind), message, extra)
}

// GetProgress — GET /api/upload/progress/{batchId}.
func (h *APIHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	p, err := h.progress.Get(batchID)
	if err != nil {
		apierrors.NotFound(w, "Пакет не найден")
		return
	}

	writeJSON(w, http.StatusOK, mapProgress(p))
}
