// auth.go — аутентификация пользователей по email и паролю.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/repository"
	"github.com/bigkaa/objektpro/internal/token"
)

// bcryptCost — стоимость хэширования паролей при provisioning.
const bcryptCost = 10

// dummyHash — хэш для сравнения при неизвестном email,
// чтобы время ответа не зависело от существования пользователя.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("objektpro-dummy-password"), bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt: %v", err))
	}
	return h
})

// LoginResult — результат успешного входа.
type LoginResult struct {
	Identity  model.Identity
	Token     string
	ExpiresAt time.Time
}

// AuthService — проверка учётных данных и выпуск токенов.
type AuthService struct {
	users  repository.UserRepository
	issuer *token.Issuer
	logger *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(users repository.UserRepository, issuer *token.Issuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		issuer: issuer,
		logger: logger.With(slog.String("component", "auth_service")),
	}
}

// Authenticate проверяет email и пароль. При успехе возвращает
// публичное представление пользователя (без хэша пароля).
// Email сравнивается точно, без приведения регистра.
// Любое несовпадение — ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	if email == "" || password == "" {
		return model.Identity{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			s.logger.Info("Неудачный вход", slog.String("reason", "unknown_email"))
			return model.Identity{}, ErrInvalidCredentials
		}
		return model.Identity{}, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Неудачный вход",
			slog.String("reason", "password_mismatch"),
			slog.Int64("user_id", user.ID),
		)
		return model.Identity{}, ErrInvalidCredentials
	}

	if !user.Active {
		s.logger.Info("Неудачный вход",
			slog.String("reason", "inactive"),
			slog.Int64("user_id", user.ID),
		)
		return model.Identity{}, ErrInvalidCredentials
	}

	return user.Identity(), nil
}

// Login аутентифицирует пользователя и выпускает токен сессии.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	tok, expiresAt, err := s.issuer.Issue(identity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Успешный вход",
		slog.Int64("user_id", identity.UserID),
		slog.String("role", string(identity.Role)),
	)

	return &LoginResult{Identity: identity, Token: tok, ExpiresAt: expiresAt}, nil
}

// Current возвращает актуальное представление пользователя по ID.
// Неактивный или удалённый пользователь — ErrNotFound.
func (s *AuthService) Current(ctx context.Context, userID int64) (model.Identity, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Identity{}, ErrNotFound
		}
		return model.Identity{}, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	if !user.Active {
		return model.Identity{}, ErrNotFound
	}
	return user.Identity(), nil
}

// ProvisionAdmin создаёт или обновляет администратора (идемпотентно).
// Вызывается при старте, если заданы OP_BOOTSTRAP_ADMIN_*.
func (s *AuthService) ProvisionAdmin(ctx context.Context, email, password, name string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email и пароль обязательны", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         model.RoleAdmin,
		Active:       true,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("Администратор подготовлен",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}
