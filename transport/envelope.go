// Package transport exposes the HTTP and websocket surface. It translates
// between wire shapes and service calls and holds no business rules.
package transport

import (
	"encoding/json"
	"net/http"

	apperrors "dm-lab/errors"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: data})
}

// writeError maps service errors to HTTP statuses. Retryable marks the
// failures a client should back off and retry, as opposed to rejections
// that will fail identically forever.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	retryable := true

	switch err {
	case apperrors.ErrEmptyMessage, apperrors.ErrInvalidSignup, apperrors.ErrEmptyProfilePic:
		status, retryable = http.StatusBadRequest, false
	case apperrors.ErrInvalidCredentials:
		status, retryable = http.StatusUnauthorized, false
	case apperrors.ErrForbidden:
		status, retryable = http.StatusForbidden, false
	case apperrors.ErrNotFound:
		status, retryable = http.StatusNotFound, false
	case apperrors.ErrUserAlreadyExists:
		status, retryable = http.StatusConflict, false
	case apperrors.ErrPersistenceFailed, apperrors.ErrMediaUploadFailed:
		status, retryable = http.StatusServiceUnavailable, true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorBody{Message: err.Error(), Retryable: retryable},
	})
}
