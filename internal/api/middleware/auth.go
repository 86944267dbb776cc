// auth.go — Access Guard: аутентификация запросов и проверка роли.
// Стратегия выбирается при сборке приложения: TokenGuard проверяет
// Bearer-токен, FixedIdentityGuard подставляет заданного субъекта
// (подключается только в сборке с тегом devauth).
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/token"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyIdentity — аутентифицированный субъект в контексте запроса.
	ContextKeyIdentity contextKey = "identity"
)

// Guard — стратегия аутентификации запросов.
// Middleware помещает model.Identity в контекст или отвечает 401/403.
type Guard interface {
	Middleware() func(http.Handler) http.Handler
}

// TokenVerifier проверяет токен сессии. Реализуется *token.Verifier.
type TokenVerifier interface {
	Verify(tokenString string) (model.Identity, error)
}

// TokenGuard — проверка Bearer-токена из заголовка Authorization.
type TokenGuard struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewTokenGuard создаёт guard, проверяющий подписанные токены.
func NewTokenGuard(verifier TokenVerifier, logger *slog.Logger) *TokenGuard {
	return &TokenGuard{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "token_guard")),
	}
}

// Middleware возвращает HTTP middleware.
// Нет заголовка или токен нечитаем — 401; подпись, срок действия или issuer
// не прошли проверку — 403.
func (g *TokenGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Требуется авторизация")
				return
			}

			identity, err := g.verifier.Verify(tokenString)
			if err != nil {
				g.logger.Debug("Токен отклонён",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				if errors.Is(err, token.ErrTokenMalformed) {
					apierrors.Unauthorized(w, "Невалидный токен")
					return
				}
				apierrors.Forbidden(w, "Токен недействителен или просрочен")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, tokenString, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tokenString = strings.TrimSpace(tokenString)
	return tokenString, tokenString != ""
}

// FixedIdentityGuard подставляет фиксированного субъекта во все запросы.
// Предназначен для локальной разработки и тестов.
type FixedIdentityGuard struct {
	identity model.Identity
}

// NewFixedIdentityGuard создаёт guard с фиксированным субъектом.
func NewFixedIdentityGuard(identity model.Identity) *FixedIdentityGuard {
	return &FixedIdentityGuard{identity: identity}
}

// Middleware возвращает HTTP middleware.
func (g *FixedIdentityGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), g.identity)))
		})
	}
}

// --- RBAC middleware helpers ---

// RequireAdmin возвращает middleware, пропускающий только субъектов с ролью admin.
// Должен использоваться ПОСЛЕ Guard.Middleware().
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Требуется авторизация")
				return
			}
			if !identity.IsAdmin() {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль admin")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// WithIdentity помещает субъекта в контекст и отмечает его в журнале запроса.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	noteUser(ctx, identity.UserID)
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

// IdentityFromContext извлекает субъекта из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(model.Identity)
	return identity, ok
}
