package intake

import (
	"errors"
	"fmt"
)

// Kind — класс отказа intake, совпадает с кодом ошибки API.
type Kind string

const (
	KindFileTooLarge    Kind = "FILE_TOO_LARGE"
	KindTooManyFiles    Kind = "TOO_MANY_FILES"
	KindUnsupportedType Kind = "UNSUPPORTED_TYPE"
	KindUnexpectedField Kind = "UNEXPECTED_FIELD"
	// KindBadRequest — тело запроса не является multipart/form-data.
	KindBadRequest Kind = "VALIDATION_ERROR"
	KindSystem     Kind = "SYSTEM_ERROR"
)

// Error — отказ в приёме запроса целиком.
type Error struct {
	Kind    Kind
	Message string
	// Err — исходная ошибка (для KindSystem).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func systemError(message string, err error) *Error {
	return &Error{Kind: KindSystem, Message: message, Err: err}
}
