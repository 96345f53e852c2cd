// ABOUTME: Authentication error values surfaced to the UI
// ABOUTME: Each reason carries the localized message shown inline on auth forms

package session

import (
	"errors"
	"strings"

	"github.com/markalston/novorio/internal/client"
)

// Reason identifies why an auth operation failed.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonEmailRegistered    Reason = "email_already_registered"
	ReasonValidation         Reason = "validation_error"
	ReasonNetwork            Reason = "network_error"
	ReasonServer             Reason = "server_error"
	ReasonStorage            Reason = "storage_error"
	ReasonExpired            Reason = "token_expired"
	ReasonInvalidToken       Reason = "token_invalid"
)

// AuthError is returned by Login and Register and recorded on the Snapshot.
// Error() yields the message meant for display.
type AuthError struct {
	Reason  Reason
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches on Reason so callers can use the sentinels below.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials     = &AuthError{Reason: ReasonInvalidCredentials, Message: msgInvalidCredentials}
	ErrEmailAlreadyRegistered = &AuthError{Reason: ReasonEmailRegistered, Message: msgEmailRegistered}
	ErrValidation             = &AuthError{Reason: ReasonValidation, Message: msgValidation}
	ErrNetwork                = &AuthError{Reason: ReasonNetwork, Message: msgNetwork}
	ErrTokenExpired           = &AuthError{Reason: ReasonExpired, Message: msgExpired}
	ErrTokenInvalid           = &AuthError{Reason: ReasonInvalidToken, Message: msgInvalidToken}
)

// ErrSuperseded is returned when a logout or newer login overtook an
// in-flight Login or Register.
var ErrSuperseded = errors.New("session: superseded by a newer session change")

const (
	msgInvalidCredentials = "Credenciais inválidas"
	msgEmailRegistered    = "Este email já está registrado. Tente fazer login."
	msgValidation         = "Dados inválidos"
	msgNetwork            = "Erro de conexão com o servidor. Verifique sua internet e tente novamente."
	msgLoginFailed        = "Erro ao fazer login. Tente novamente."
	msgRegisterFailed     = "Erro ao criar conta. Tente novamente."
	msgStorage            = "Não foi possível salvar a sessão"
	msgExpired            = "Sua sessão expirou. Faça login novamente."
	msgInvalidToken       = "Sessão inválida. Faça login novamente."
)

func loginError(err error) *AuthError {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return &AuthError{Reason: ReasonServer, Message: msgLoginFailed, Err: err}
	}
	switch {
	case apiErr.Kind == client.KindNetwork:
		return &AuthError{Reason: ReasonNetwork, Message: msgNetwork, Err: err}
	case apiErr.Kind == client.KindUnauthorized,
		apiErr.Kind == client.KindValidation,
		apiErr.Status == 400:
		return &AuthError{Reason: ReasonInvalidCredentials, Message: msgInvalidCredentials, Err: err}
	}
	return &AuthError{Reason: ReasonServer, Message: msgLoginFailed, Err: err}
}

func registerError(err error) *AuthError {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return &AuthError{Reason: ReasonServer, Message: msgRegisterFailed, Err: err}
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Kind == client.KindNetwork:
		return &AuthError{Reason: ReasonNetwork, Message: msgNetwork, Err: err}
	case apiErr.Status == 409,
		apiErr.Status == 400 && (strings.Contains(msg, "already") || strings.Contains(msg, "exist")):
		return &AuthError{Reason: ReasonEmailRegistered, Message: msgEmailRegistered, Err: err}
	case apiErr.Kind == client.KindValidation:
		return &AuthError{Reason: ReasonValidation, Message: msgValidation, Fields: apiErr.Fields, Err: err}
	}
	return &AuthError{Reason: ReasonServer, Message: msgRegisterFailed, Err: err}
}
