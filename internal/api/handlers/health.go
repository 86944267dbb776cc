// health.go — обработчики health endpoints objektpro.
// /health — сводка: процесс, память, система загрузки
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL доступен)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/objektpro/internal/config"
	"github.com/bigkaa/objektpro/internal/database"
)

// ReadinessChecker — интерфейс проверки готовности PostgreSQL.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "fail") и сообщение.
	CheckReady() (status string, message string)
	// Stats возвращает состояние пула соединений.
	Stats() database.PoolStats
}

// DependencyHealth — состояние зависимостей из topologymetrics.
// Реализуется *service.DephealthService.
type DependencyHealth interface {
	Health() map[string]bool
}

// UploadSystemInfo — сведения о системе загрузки для /health.
type UploadSystemInfo struct {
	UploadDir      string   `json:"upload_dir"`
	BatchDirs      bool     `json:"batch_dirs"`
	MaxFiles       int      `json:"max_files"`
	MaxFileSize    int64    `json:"max_file_size"`
	SupportedTypes []string `json:"supported_types"`
	IngestWorkers  int      `json:"ingest_workers"`
}

// ProgressCounter — счётчики реестра прогресса.
type ProgressCounter interface {
	Len() int
	Active() int
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	deps        DependencyHealth
	progress    ProgressCounter
	upload      UploadSystemInfo
	environment string
	startedAt   time.Time
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker может быть nil (readiness вернёт "fail"), deps — nil,
// если мониторинг зависимостей не запущен.
func NewHealthHandler(
	pgChecker ReadinessChecker,
	deps DependencyHealth,
	progress ProgressCounter,
	upload UploadSystemInfo,
	environment string,
) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		deps:        deps,
		progress:    progress,
		upload:      upload,
		environment: environment,
		startedAt:   time.Now(),
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Pool    *database.PoolStats `json:"pool,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
	} `json:"checks"`
}

type memoryInfo struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGC          uint32 `json:"num_gc"`
	Goroutines     int    `json:"goroutines"`
}

type uploadSystemResponse struct {
	UploadSystemInfo
	TrackedBatches int `json:"tracked_batches"`
	ActiveBatches  int `json:"active_batches"`
}

// healthResponse — ответ /health.
type healthResponse struct {
	Status        string               `json:"status"`
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	Service       string               `json:"service"`
	Environment   string               `json:"environment"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Memory        memoryInfo           `json:"memory"`
	UploadSystem  uploadSystemResponse `json:"upload_system"`
	Dependencies  map[string]bool      `json:"dependencies,omitempty"`
}

// Health — GET /health. Сводка состояния процесса и системы загрузки.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	resp := healthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       config.Version,
		Service:       "objektpro",
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Memory: memoryInfo{
			AllocBytes:     ms.Alloc,
			HeapInuseBytes: ms.HeapInuse,
			SysBytes:       ms.Sys,
			NumGC:          ms.NumGC,
			Goroutines:     runtime.NumGoroutine(),
		},
		UploadSystem: uploadSystemResponse{UploadSystemInfo: h.upload},
	}
	if h.progress != nil {
		resp.UploadSystem.TrackedBatches = h.progress.Len()
		resp.UploadSystem.ActiveBatches = h.progress.Active()
	}
	if h.deps != nil {
		resp.Dependencies = h.deps.Health()
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "objektpro",
	})
}

// HealthReady — readiness probe. Проверяет PostgreSQL.
// Возвращает 200 (ok) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "objektpro",
	}

	if h.pgChecker != nil {
		pgStatus, pgMsg := h.pgChecker.CheckReady()
		stats := h.pgChecker.Stats()
		resp.Checks.PostgreSQL = healthCheckResult{Status: pgStatus, Message: pgMsg, Pool: &stats}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}

	resp.Status = overallStatus(resp.Checks.PostgreSQL.Status)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "fail" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Root — GET /. Описание API, если SPA не подключено.
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "objektpro",
		"version": config.Version,
		"endpoints": map[string]string{
			"login":    "POST /api/auth/login",
			"me":       "GET /api/auth/me",
			"upload":   "POST /api/files/upload/{anlageId}",
			"files":    "GET /api/files/{anlageId}",
			"progress": "GET /api/upload/progress/{batchId}",
			"anlagen":  "GET /api/anlagen",
			"health":   "GET /health",
			"openapi":  "GET /api/openapi.yaml",
		},
	})
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
