// auth.go — обработчики /api/auth endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	User      userDTO   `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login — POST /api/auth/login.
// Проверяет email и пароль, выпускает токен сессии.
// Любая пара email/пароль, не совпавшая с учётной записью (в том числе
// пустая или с лишними полями), — 401 INVALID_CREDENTIALS.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			apierrors.InvalidCredentials(w, "Неверный email или пароль")
			return
		}
		h.logger.Error("Ошибка входа", "error", err)
		h.systemError(w, "Ошибка входа", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		User:      mapIdentity(res.Identity),
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

// Me — GET /api/auth/me.
// Возвращает актуальные данные текущего пользователя.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется авторизация")
		return
	}

	current, err := h.auth.Current(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.Unauthorized(w, "Пользователь не найден или неактивен")
			return
		}
		h.logger.Error("Ошибка получения пользователя", "user_id", identity.UserID, "error", err)
		h.systemError(w, "Ошибка получения пользователя", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    mapIdentity(current),
	})
}
