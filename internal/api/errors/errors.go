// Пакет errors — конструкторы стандартных ошибок API objektpro.
// Единый формат: {"success": false, "error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeNoFilesUploaded    = "NO_FILES_UPLOADED"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeTooManyFiles       = "TOO_MANY_FILES"
	CodeUnsupportedType    = "UNSUPPORTED_TYPE"
	CodeUnexpectedField    = "UNEXPECTED_FIELD"
	CodeSystemError        = "SYSTEM_ERROR"
)

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorWith(w, statusCode, code, message, nil)
}

// WriteErrorWith записывает ответ ошибки с дополнительными полями верхнего уровня
// (например, ограничения загрузки). Поля success и error не переопределяются.
func WriteErrorWith(w http.ResponseWriter, statusCode int, code, message string, extra map[string]any) {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["success"] = false
	body["error"] = errorDetail{Code: code, Message: message}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// InvalidCredentials — 401 неверная пара email/пароль.
func InvalidCredentials(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав или токен отклонён.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// SystemError — 500 внутренняя ошибка.
func SystemError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeSystemError, message)
}
