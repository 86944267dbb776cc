// files.go — чтение файлов объекта.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/service"
)

type fileListingResponse struct {
	AnlageID   int64     `json:"anlage_id"`
	TotalFiles int       `json:"total_files"`
	TotalSize  int64     `json:"total_size"`
	Files      []fileDTO `json:"files"`
}

// ListFiles — GET /api/files/{anlageId}.
// Файлы объекта, новые первыми, с количеством и суммарным размером.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	facilityID, err := pathInt64(r, "anlageId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	listing, err := h.facilities.Files(r.Context(), facilityID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Объект не найден")
			return
		}
		h.logger.Error("Ошибка получения файлов", "anlage_id", facilityID, "error", err)
		h.systemError(w, "Ошибка получения файлов", err)
		return
	}

	writeJSON(w, http.StatusOK, fileListingResponse{
		AnlageID:   listing.FacilityID,
		TotalFiles: listing.TotalFiles,
		TotalSize:  listing.TotalSize,
		Files:      mapFiles(listing.Files),
	})
}
