package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHttpCodeForError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad address", ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: no receipt", ErrNotFound), http.StatusNotFound},
		{ErrStorageDisabled, http.StatusServiceUnavailable},
		{ErrStorageError{Err: errors.New("conn reset")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		require.Equal(t, tc.code, HttpCodeForError(tc.err), tc.err.Error())
	}
}

func TestReplyWithError(t *testing.T) {
	w := httptest.NewRecorder()
	ReplyWithError(w, fmt.Errorf("%w: limit", ErrBadRequest))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "invalid request parameters: limit", resp.Msg)
}
