// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidCredentials — неверная пара email/пароль.
	// Причина (нет пользователя или неверный пароль) намеренно не различается.
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrNoFilesUploaded — в запросе загрузки нет ни одного файла.
	ErrNoFilesUploaded = errors.New("файлы не загружены")
	// ErrFacilityNotFound — объект не найден или неактивен.
	ErrFacilityNotFound = fmt.Errorf("объект не найден: %w", ErrNotFound)
)
