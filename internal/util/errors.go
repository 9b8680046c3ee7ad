package util

import (
	"errors"
	"fmt"
	"net/http"
)

type MyResponseError struct {
	Msg    string
	Status int
}

func (e MyResponseError) Error() string { return e.Msg }

func NewResponseError(status int, format string, args ...interface{}) error {
	return MyResponseError{
		Msg:    fmt.Sprintf(format, args...),
		Status: status,
	}
}

// ResponseStatus returns the HTTP status carried by err, or 500 if it carries none.
func ResponseStatus(err error) int {
	var respErr MyResponseError
	if errors.As(err, &respErr) {
		return respErr.Status
	}
	return http.StatusInternalServerError
}
