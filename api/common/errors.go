package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBadRequest is returned when the provided HTTP request
	// is malformed.
	ErrBadRequest = errors.New("invalid request parameters")
	// ErrNotFound is returned when handling a request for an item that
	// does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrStorageDisabled is returned by endpoints that read indexed data
	// when no storage is configured.
	ErrStorageDisabled = errors.New("indexed storage is not configured")
)

// ErrStorageError is returned when the underlying storage suffers
// from an internal error.
type ErrStorageError struct{ Err error }

func (e ErrStorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error: %s", e.Err.Error())
	}
	return "storage error: internal bug, incorrectly instantiated error object with nil"
}

func (e ErrStorageError) Unwrap() error {
	return e.Err
}

// ErrorResponse is a JSON error.
type ErrorResponse struct {
	Msg string `json:"msg"`
}

// HttpCodeForError maps err to the status code it is reported with.
func HttpCodeForError(err error) int {
	var storageErr ErrStorageError
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStorageDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ReplyWithError replies to an HTTP request with an error
// as JSON.
func ReplyWithError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(HttpCodeForError(err))
	_ = json.NewEncoder(w).Encode(ErrorResponse{Msg: err.Error()})
}
