package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/ram-browser/pkg/model"
)

// ErrorClass represents a classification of remote call failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies or resource URLs that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassServer represents non-2xx responses.
	ErrorClassServer ErrorClass = "server"
)

// APIError is a classified failure of a remote call.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Class, e.StatusCode, e.Message, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Class, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Class, e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify converts any failure of a remote call into an *APIError.
// APIErrors pass through unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, model.ErrMalformedURL),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return &APIError{Class: ErrorClassDecode, Message: "decode", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Class: ErrorClassNetwork, Message: "timeout", Err: err}
	case errors.Is(err, context.Canceled):
		return &APIError{Class: ErrorClassNetwork, Message: "cancelled", Err: err}
	default:
		return &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
}

// ClassOf returns the class of a classified error, or "" for nil.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(Classify(err), &apiErr) {
		return apiErr.Class
	}
	return ""
}

func statusError(resp *http.Response) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Class:      ErrorClassServer,
		Message:    http.StatusText(resp.StatusCode),
	}
}
