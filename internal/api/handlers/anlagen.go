// anlagen.go — обработчики /api/anlagen endpoints.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/service"
)

type createFacilityRequest struct {
	Name                string  `json:"name"`
	Address             string  `json:"address"`
	Description         *string `json:"description"`
	GoogleDriveFolderID *string `json:"google_drive_folder_id"`
}

type facilityStatsResponse struct {
	AnlageID   int64          `json:"anlage_id"`
	TotalFiles int            `json:"total_files"`
	TotalSize  int64          `json:"total_size"`
	ByCategory map[string]int `json:"by_category"`
}

// ListFacilities — GET /api/anlagen.
// Активные объекты, отсортированные по имени.
func (h *APIHandler) ListFacilities(w http.ResponseWriter, r *http.Request) {
	list, err := h.facilities.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения объектов", "error", err)
		h.systemError(w, "Ошибка получения объектов", err)
		return
	}

	items := make([]facilityDTO, len(list))
	for i, f := range list {
		items[i] = mapFacility(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"anlagen": items,
		"total":   len(items),
	})
}

// CreateFacility — POST /api/anlagen.
// Доступ: admin (RequireAdmin на маршруте).
func (h *APIHandler) CreateFacility(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется авторизация")
		return
	}

	var req createFacilityRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	f, err := h.facilities.Create(r.Context(), service.CreateFacilityParams{
		Name:           req.Name,
		Address:        req.Address,
		Description:    req.Description,
		RemoteFolderID: req.GoogleDriveFolderID,
		CreatedBy:      identity.UserID,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка создания объекта", "error", err)
		h.systemError(w, "Ошибка создания объекта", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapFacility(f))
}

// FacilityStats — GET /api/anlagen/{anlageId}/stats.
func (h *APIHandler) FacilityStats(w http.ResponseWriter, r *http.Request) {
	facilityID, err := pathInt64(r, "anlageId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	stats, err := h.facilities.Stats(r.Context(), facilityID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Объект не найден")
			return
		}
		h.logger.Error("Ошибка получения статистики", "anlage_id", facilityID, "error", err)
		h.systemError(w, "Ошибка получения статистики", err)
		return
	}

	byCategory := stats.ByCategory
	if byCategory == nil {
		byCategory = map[string]int{}
	}
	writeJSON(w, http.StatusOK, facilityStatsResponse{
		AnlageID:   stats.FacilityID,
		TotalFiles: stats.TotalFiles,
		TotalSize:  stats.TotalSize,
		ByCategory: byCategory,
	})
}
