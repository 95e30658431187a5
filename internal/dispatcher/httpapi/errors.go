package httpapi

import "net/http"

// Code is the closed set of error codes spec §6 names for the error
// envelope: { error: { code, message, details? } }.
type Code string

const (
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "RESOURCE_NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeUnavailable    Code = "SERVICE_UNAVAILABLE"
)

// APIError is the dispatcher's closed error type, generalizing the
// teacher's internal/api/errors.AppError to exactly the code set spec §6
// requires.
type APIError struct {
	HTTPStatus int                    `json:"-"`
	ErrCode    Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

func newError(status int, code Code, message string) *APIError {
	return &APIError{HTTPStatus: status, ErrCode: code, Message: message}
}

func ErrBadRequest(message string) *APIError {
	return newError(http.StatusBadRequest, CodeBadRequest, message)
}

func ErrUnauthorized(message string) *APIError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message)
}

func ErrNotFound(message string) *APIError {
	return newError(http.StatusNotFound, CodeNotFound, message)
}

func ErrUnavailable(message string) *APIError {
	return newError(http.StatusServiceUnavailable, CodeUnavailable, message)
}

func ErrInternal(err error) *APIError {
	e := newError(http.StatusInternalServerError, CodeInternal, "an internal error occurred")
	if err != nil {
		e.Details = map[string]interface{}{"cause": err.Error()}
	}
	return e
}
