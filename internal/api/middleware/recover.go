// recover.go — перехват паник в обработчиках.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
)

// Recoverer возвращает middleware, превращающий панику обработчика
// в ответ 500 SYSTEM_ERROR. http.ErrAbortHandler пробрасывается дальше.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // сравнение значения паники
					panic(rec)
				}
				logger.Error("Паника в обработчике",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				apierrors.SystemError(w, "Внутренняя ошибка сервера")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
