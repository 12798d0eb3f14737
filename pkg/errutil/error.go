package errutil

import "fmt"

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BaseError is the error shape the HTTP layer knows how to render. The
// wrapped cause is kept for logs and errors.Is chains but never leaks
// into client-facing JSON on its own; only Message and Details do.
type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func New(code CoreStatus, message string, err error) error {
	return BaseError{Code: code, Message: message, Err: err}
}

func BadRequest(msg string, err error) error {
	return New(StatusBadRequest, msg, err)
}

func Unauthorized(msg string, err error) error {
	return New(StatusUnauthorized, msg, err)
}

func Forbidden(msg string, err error) error {
	return New(StatusForbidden, msg, err)
}

func NotFound(msg string, err error) error {
	return New(StatusNotFound, msg, err)
}

func Conflict(msg string, err error) error {
	return New(StatusConflict, msg, err)
}

func UnprocessableEntity(msg string, err error) error {
	return New(StatusUnprocessableEntity, msg, err)
}
