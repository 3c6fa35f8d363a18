package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validation is bad input shape, type or size.
func Validation(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

// RepositoryUnavailable is returned only by endpoints that cannot work without
// the metadata database.
func RepositoryUnavailable() *Error {
	return New(http.StatusServiceUnavailable, "repository_unavailable", errors.New("Metadata database is not configured"))
}

func FeatureDisabled(feature string) *Error {
	return New(http.StatusServiceUnavailable, "feature_disabled", fmt.Errorf("%s is disabled", feature))
}

// Upstream wraps object store and media tool failures.
func Upstream(code string, err error) *Error {
	return New(http.StatusInternalServerError, code, err)
}

func Unsatisfiable(err error) *Error {
	return New(http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable", err)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}
