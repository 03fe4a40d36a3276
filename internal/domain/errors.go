package domain

import (
	"errors"
	"fmt"
)

// ErrCacheMiss возвращается кэшем, если ключ не найден.
var ErrCacheMiss = errors.New("cache miss")

// ErrorKind классифицирует ошибки выгрузки.
type ErrorKind string

const (
	KindLoader  ErrorKind = "LoaderError"
	KindAuth    ErrorKind = "AuthError"
	KindAccess  ErrorKind = "AccessError"
	KindNetwork ErrorKind = "NetworkError"
	KindConfig  ErrorKind = "ConfigError"
)

const (
	authSuggestion    = "Check your TELEGRAM_API_ID and TELEGRAM_API_HASH in .env file"
	networkSuggestion = "Check your internet connection and try again"
)

// Error ошибка с подсказкой для пользователя.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	// Channel заполняется для AccessError.
	Channel string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthError ошибка авторизации.
func NewAuthError(message string, cause error) *Error {
	if message == "" {
		message = "Authentication failed"
	}
	return &Error{Kind: KindAuth, Message: message, Suggestion: authSuggestion, Err: cause}
}

// NewAccessError канал приватный, не найден или не является каналом.
func NewAccessError(channel, message string, cause error) *Error {
	if message == "" {
		message = "Access denied"
	}
	return &Error{
		Kind:       KindAccess,
		Message:    message,
		Suggestion: fmt.Sprintf("Make sure you have access to the channel '%s'", channel),
		Channel:    channel,
		Err:        cause,
	}
}

// NewNetworkError транспортная ошибка.
func NewNetworkError(message string, cause error) *Error {
	if message == "" {
		message = "Network error"
	}
	return &Error{Kind: KindNetwork, Message: message, Suggestion: networkSuggestion, Err: cause}
}

// NewLoaderError прочие ошибки выгрузки.
func NewLoaderError(message string, cause error) *Error {
	return &Error{Kind: KindLoader, Message: message, Err: cause}
}

// NewConfigError ошибка конфигурации, сообщается до подключения.
func NewConfigError(message string) *Error {
	return &Error{Kind: KindConfig, Message: message}
}

// Classify приводит произвольную ошибку к таксономии. Неизвестные ошибки
// становятся LoaderError.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return NewLoaderError(err.Error(), err)
}

// FormatError рендерит сообщение об ошибке для stderr.
func FormatError(kind ErrorKind, message, suggestion string) string {
	result := fmt.Sprintf("Error [%s]: %s", kind, message)
	if suggestion != "" {
		result += "\nSuggestion: " + suggestion
	}
	return result
}

// Render рендерит ошибку таксономии.
func (e *Error) Render() string {
	return FormatError(e.Kind, e.Error(), e.Suggestion)
}
