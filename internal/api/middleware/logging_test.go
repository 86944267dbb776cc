package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// logRecord — строка журнала в JSON-формате slog.
type logRecord struct {
	Level   string `json:"level"`
	Msg     string `json:"msg"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Route   string `json:"route"`
	Status  int    `json:"status"`
	Bytes   int64  `json:"bytes"`
	BatchID string `json:"batch_id"`
	UserID  int64  `json:"user_id"`
}

// captureLogger пишет JSON-журнал в буфер, уровень DEBUG и выше.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) logRecord {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec logRecord
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("некорректная строка журнала: %v (%s)", err, buf.String())
	}
	return rec
}

func TestRequestLogger_UserAndBatch(t *testing.T) {
	logger, buf := captureLogger()

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.With(NewFixedIdentityGuard(memberIdentity).Middleware()).
		Post("/api/files/upload/{anlageId}", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true}`))
		})

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/3", strings.NewReader("data"))
	req.Header.Set("X-Batch-ID", "batch-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := lastRecord(t, buf)
	if rec.Msg != "HTTP запрос" || rec.Level != "INFO" {
		t.Errorf("msg=%q level=%q", rec.Msg, rec.Level)
	}
	if rec.Route != "/api/files/upload/{anlageId}" || rec.Path != "/api/files/upload/3" {
		t.Errorf("route=%q path=%q", rec.Route, rec.Path)
	}
	if rec.UserID != memberIdentity.UserID {
		t.Errorf("user_id = %d, ожидался %d", rec.UserID, memberIdentity.UserID)
	}
	if rec.BatchID != "batch-42" {
		t.Errorf("batch_id = %q", rec.BatchID)
	}
	if rec.Status != http.StatusOK || rec.Bytes != int64(len(`{"success":true}`)) {
		t.Errorf("status=%d bytes=%d", rec.Status, rec.Bytes)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"успешный запрос", "/api/anlagen", http.StatusOK, "INFO"},
		{"проба готовности", "/health/ready", http.StatusOK, "DEBUG"},
		{"проба с ошибкой", "/health/ready", http.StatusServiceUnavailable, "ERROR"},
		{"ошибка клиента", "/api/anlagen", http.StatusNotFound, "WARN"},
		{"ошибка сервера", "/api/anlagen", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := captureLogger()
			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			rec := lastRecord(t, buf)
			if rec.Level != tt.want {
				t.Errorf("level = %q, ожидался %q", rec.Level, tt.want)
			}
			if rec.Status != tt.status {
				t.Errorf("status = %d, ожидался %d", rec.Status, tt.status)
			}
			if rec.UserID != 0 {
				t.Errorf("user_id = %d без аутентификации", rec.UserID)
			}
			if rec.Route != "unmatched" {
				t.Errorf("route = %q вне chi", rec.Route)
			}
		})
	}
}
