package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ArgumentParseError is returned when a call's arguments are not a JSON object.
type ArgumentParseError struct {
	Function string
	Err      error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("invalid arguments for function %s: %v", e.Function, e.Err)
}

func (e *ArgumentParseError) Unwrap() error { return e.Err }

// FunctionNotFoundError is returned when no selected tool defines the function.
type FunctionNotFoundError struct {
	Function string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %s not found", e.Function)
}

// MissingParameterError is returned when a path parameter has no value.
type MissingParameterError struct {
	Function  string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("parameter %s not found for function %s", e.Parameter, e.Function)
}

// ArgumentValidationError lists schema violations found when argument
// validation is enabled.
type ArgumentValidationError struct {
	Function string
	Problems []string
}

func (e *ArgumentValidationError) Error() string {
	return fmt.Sprintf("arguments for function %s do not match its schema: %s",
		e.Function, strings.Join(e.Problems, "; "))
}

// IsStructural reports whether err means the call itself was malformed, as
// opposed to a transport or upstream failure.
func IsStructural(err error) bool {
	var (
		pe *ArgumentParseError
		nf *FunctionNotFoundError
		mp *MissingParameterError
		ve *ArgumentValidationError
	)
	return errors.As(err, &pe) || errors.As(err, &nf) || errors.As(err, &mp) || errors.As(err, &ve)
}

// ErrorResult is returned in place of a response body when the remote API
// answers with a non-2xx status.
type ErrorResult struct {
	Error string `json:"error"`
}
