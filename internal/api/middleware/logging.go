// logging.go — журнал HTTP-запросов objektpro через slog.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// batchIDHeader совпадает с handlers.BatchIDHeader.
const batchIDHeader = "X-Batch-ID"

const requestEntryKey contextKey = "request_entry"

// requestEntry — данные запроса, которые становятся известны только
// внутри цепочки (субъект выставляет Guard).
type requestEntry struct {
	userID int64
}

// noteUser запоминает субъекта для строки журнала.
func noteUser(ctx context.Context, userID int64) {
	if e, ok := ctx.Value(requestEntryKey).(*requestEntry); ok {
		e.userID = userID
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush, дедлайны при загрузке).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestLogger пишет одну строку на запрос. Пробы /health/* идут в DEBUG,
// остальные по статусу: 5xx ERROR, 4xx WARN, иначе INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &requestEntry{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestEntryKey, entry)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
			}
			if batchID := r.Header.Get(batchIDHeader); batchID != "" {
				attrs = append(attrs, slog.String("batch_id", batchID))
			}
			if entry.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", entry.userID))
			}

			logger.LogAttrs(r.Context(), logLevel(r.URL.Path, rec.status), "HTTP запрос", attrs...)
		})
	}
}

func logLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
