package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error представляет типизированную доменную ошибку с HTTP-кодом
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is позволяет сравнивать ошибки по коду через errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap добавляет контекст к существующей ошибке
func Wrap(err error, base *Error) *Error {
	return &Error{Code: base.Code, Status: base.Status, Message: base.Message, Err: err}
}

// Базовый набор ошибок доступа и валидации.
// Сообщения Authorization/NotFound намеренно общие, чтобы не подтверждать
// существование ресурса анонимным клиентам.
var (
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrAuthorization          = New("AUTHORIZATION_ERROR", http.StatusForbidden, "authorization required")
	ErrAuthenticationRequired = New("AUTHENTICATION_REQUIRED", http.StatusUnauthorized, "authentication required")
	ErrInvalidRequest         = New("INVALID_REQUEST", http.StatusBadRequest, "request cannot be processed")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError приводит произвольную ошибку к *Error
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal)
}

// Clone возвращает копию ошибки с переопределенным сообщением
func Clone(base *Error, message string) *Error {
	if base == nil {
		return nil
	}
	clone := *base
	if message != "" {
		clone.Message = message
	}
	return &clone
}
