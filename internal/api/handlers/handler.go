// handler.go — основной обработчик API objektpro.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/intake"
	"github.com/bigkaa/objektpro/internal/service"
)

// APIHandler — основной обработчик API.
type APIHandler struct {
	health     *HealthHandler
	auth       *service.AuthService
	facilities *service.FacilityService
	ingest     *service.IngestService
	progress   *service.ProgressRegistry
	intake     *intake.Intake
	diagnostic bool
	logger     *slog.Logger
}

// Deps — зависимости APIHandler.
type Deps struct {
	Health     *HealthHandler
	Auth       *service.AuthService
	Facilities *service.FacilityService
	Ingest     *service.IngestService
	Progress   *service.ProgressRegistry
	Intake     *intake.Intake
	// Diagnostic — включать текст внутренних ошибок в ответы 500.
	Diagnostic bool
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(deps Deps, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:     deps.Health,
		auth:       deps.Auth,
		facilities: deps.Facilities,
		ingest:     deps.Ingest,
		progress:   deps.Progress,
		intake:     deps.Intake,
		diagnostic: deps.Diagnostic,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// Health возвращает обработчик health endpoints.
func (h *APIHandler) Health() *HealthHandler {
	return h.health
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// systemError — 500 SYSTEM_ERROR. Текст ошибки попадает в ответ
// только в диагностическом режиме.
func (h *APIHandler) systemError(w http.ResponseWriter, message string, err error) {
	if h.diagnostic && err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	apierrors.SystemError(w, message)
}

// pathInt64 извлекает положительный целочисленный path-параметр.
func pathInt64(r *http.Request, name string) (int64, error) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		return 0, fmt.Errorf("некорректный параметр %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("некорректный параметр %s: ожидается положительное число", name)
	}
	return v, nil
}

// decodeJSON декодирует JSON-тело запроса, запрещая неизвестные поля.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
