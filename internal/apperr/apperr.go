package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation         Kind = "validation"
	NotFound           Kind = "not_found"
	Unauthorized       Kind = "unauthorized"
	Conflict           Kind = "conflict"
	GatewayTransient   Kind = "gateway_transient"
	GatewayUnavailable Kind = "gateway_unavailable"
	GatewayRejected    Kind = "gateway_rejected"
	Persistence        Kind = "persistence"
)

type AppError struct {
	Kind   Kind
	Msg    string
	Fields map[string]string // per-field validation messages
	Err    error
}

func (e *AppError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt against the gateway.
func (e *AppError) Retryable() bool { return e.Kind == GatewayTransient }

func ValidationErr(msg string, fields map[string]string) *AppError {
	return &AppError{Kind: Validation, Msg: msg, Fields: fields}
}

func NotFoundErr(msg string) *AppError {
	return &AppError{Kind: NotFound, Msg: msg}
}

func UnauthorizedErr(msg string) *AppError {
	return &AppError{Kind: Unauthorized, Msg: msg}
}

func ConflictErr(msg string) *AppError {
	return &AppError{Kind: Conflict, Msg: msg}
}

func TransientErr(msg string, err error) *AppError {
	return &AppError{Kind: GatewayTransient, Msg: msg, Err: err}
}

func UnavailableErr(err error) *AppError {
	return &AppError{Kind: GatewayUnavailable, Msg: "gateway unavailable", Err: err}
}

func RejectedErr(msg string, err error) *AppError {
	return &AppError{Kind: GatewayRejected, Msg: msg, Err: err}
}

func PersistenceErr(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: Persistence, Msg: "store failure", Err: err}
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case GatewayRejected:
		return http.StatusBadGateway
	case GatewayTransient, GatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
